package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cdcgov/blob-relay/internal/aadtoken"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	value string
	err   error
	calls int
}

func (s *staticTokens) Acquire(_ context.Context) (aadtoken.AccessToken, error) {
	s.calls++
	if s.err != nil {
		return aadtoken.AccessToken{}, s.err
	}
	return aadtoken.AccessToken{Value: s.value, Scope: aadtoken.StorageScope, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func blobServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(BlobAPIVersionHeader) != "2020-04-08" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("x-ms-request-id", "req-1")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAzureHTTPSourceFetch(t *testing.T) {
	ts := blobServer(t, http.StatusOK, "hello from blob")
	src := NewAzureHTTPSource(&staticTokens{value: "test-token"}, "2020-04-08", 5*time.Second)

	obj, err := src.Fetch(context.Background(), ts.URL+"/stc-sample/test34.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello from blob", string(obj.Content))
	assert.Equal(t, "application/xml", obj.ContentType)
}

func TestAzureHTTPSourceStatusError(t *testing.T) {
	errBody := `<?xml version="1.0" encoding="utf-8"?><Error><Code>BlobNotFound</Code></Error>`
	ts := blobServer(t, http.StatusNotFound, errBody)
	src := NewAzureHTTPSource(&staticTokens{value: "test-token"}, "2020-04-08", 5*time.Second)

	_, err := src.Fetch(context.Background(), ts.URL+"/c/missing.txt")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, errBody, string(se.Body))
	assert.Equal(t, "req-1", se.Header.Get("x-ms-request-id"))
	assert.ErrorIs(t, err, ErrFetchFailure)
	assert.Equal(t, ClassFetchFailure, ErrorClass(err))
}

func TestAzureHTTPSourceInvalidatesCachedTokenOnAuthStatus(t *testing.T) {
	ts := blobServer(t, http.StatusOK, "data")
	next := &staticTokens{value: "stale-token"}
	cache := aadtoken.NewCachingAcquirer(next)
	src := NewAzureHTTPSource(cache, "2020-04-08", 5*time.Second)

	_, err := src.Fetch(context.Background(), ts.URL+"/c/o.txt")
	require.Error(t, err)
	_, err = src.Fetch(context.Background(), ts.URL+"/c/o.txt")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestAzureHTTPSourceAuthFailure(t *testing.T) {
	ts := blobServer(t, http.StatusOK, "data")
	tokens := &staticTokens{err: fmt.Errorf("%w: invalid_client", aadtoken.ErrAuthFailure)}
	src := NewAzureHTTPSource(tokens, "2020-04-08", 5*time.Second)

	_, err := src.Fetch(context.Background(), ts.URL+"/c/o.txt")
	assert.ErrorIs(t, err, aadtoken.ErrAuthFailure)
	assert.Equal(t, ClassAuthFailure, ErrorClass(err))
}

func TestAzureHTTPSourceTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	src := NewAzureHTTPSource(&staticTokens{value: "test-token"}, "2020-04-08", time.Second)

	_, err := src.Fetch(context.Background(), ts.URL+"/c/o.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFetchFailure)
	assert.Equal(t, ClassTransportFailure, ErrorClass(err))
}

// well known emulator account key
const emulatorKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

func sdkSource(t *testing.T, handler http.HandlerFunc) *AzureSDKSource {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	conn := fmt.Sprintf("DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=%s;BlobEndpoint=%s/devstoreaccount1;", emulatorKey, ts.URL)
	client, err := storeaz.NewBlobClientFromConnectionString(conn, nil)
	require.NoError(t, err)
	return &AzureSDKSource{Client: client}
}

func TestAzureSDKSourceFetch(t *testing.T) {
	var path string
	src := sdkSource(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("a,b\n1,2\n"))
	})

	obj, err := src.Fetch(context.Background(), "https://devstoreaccount1.blob.core.windows.net/stc-sample/folder/test34.csv")
	require.NoError(t, err)
	assert.Equal(t, "/devstoreaccount1/stc-sample/folder/test34.csv", path)
	assert.Equal(t, "a,b\n1,2\n", string(obj.Content))
	assert.Equal(t, "text/csv", obj.ContentType)
}

func TestAzureSDKSourceStatusError(t *testing.T) {
	notFound := `<?xml version="1.0" encoding="utf-8"?><Error><Code>BlobNotFound</Code><Message>The specified blob does not exist.</Message></Error>`

	type testCase struct {
		status int
		body   string
	}
	cases := map[string]testCase{
		"not found with body":    {status: http.StatusNotFound, body: notFound},
		"forbidden without body": {status: http.StatusForbidden},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			src := sdkSource(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("x-ms-request-id", "req-2")
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			})

			_, err := src.Fetch(context.Background(), "https://devstoreaccount1.blob.core.windows.net/c/missing.txt")
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, c.status, se.StatusCode)
			assert.Equal(t, c.body, string(se.Body))
			assert.Equal(t, "req-2", se.Header.Get("x-ms-request-id"))
			assert.Equal(t, ClassFetchFailure, ErrorClass(err))
		})
	}
}

func TestAzureSDKSourceRejectsOtherAccount(t *testing.T) {
	called := false
	src := sdkSource(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	_, err := src.Fetch(context.Background(), "https://otheraccount.blob.core.windows.net/c/o.txt")
	assert.ErrorIs(t, err, storeaz.ErrInvalidURL)
	assert.Equal(t, ClassInvalidURL, ErrorClass(err))
	assert.False(t, called)
}

func TestClientAccount(t *testing.T) {
	cases := map[string]string{
		"https://acct1.blob.core.windows.net/":     "acct1",
		"http://127.0.0.1:10000/devstoreaccount1/": "devstoreaccount1",
	}
	for serviceURL, want := range cases {
		got, err := clientAccount(serviceURL)
		require.NoError(t, err)
		assert.Equal(t, want, got, serviceURL)
	}
}

func TestStageAndRemove(t *testing.T) {
	dir := t.TempDir()
	staged, err := Stage(dir, []byte("content"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(staged.Path, ".tmp"))
	info, err := os.Stat(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, StagedFileMode, info.Mode().Perm())
	b, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(b))

	require.NoError(t, staged.Remove())
	require.NoError(t, staged.Remove())
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestWithStagedFileRemovesOnError(t *testing.T) {
	dir := t.TempDir()
	useErr := errors.New("upload exploded")
	var seen string

	err := WithStagedFile(dir, []byte("x"), func(p string) error {
		seen = p
		_, statErr := os.Stat(p)
		require.NoError(t, statErr)
		return useErr
	})
	assert.ErrorIs(t, err, useErr)
	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
}

type recordingDestination struct {
	t       *testing.T
	objects map[string][]byte
	err     error
}

func (d *recordingDestination) Upload(_ context.Context, localPath string, objectName string) error {
	b, err := os.ReadFile(localPath)
	require.NoError(d.t, err)
	if d.objects == nil {
		d.objects = map[string][]byte{}
	}
	d.objects[objectName] = b
	return d.err
}

type fakeSource struct {
	obj *Object
	err error
}

func (s *fakeSource) Fetch(_ context.Context, _ string) (*Object, error) {
	return s.obj, s.err
}

func TestRelayTransfer(t *testing.T) {
	dir := t.TempDir()
	dest := &recordingDestination{t: t}
	r := &Relay{
		Source:        &fakeSource{obj: &Object{Content: []byte("payload")}},
		Destination:   dest,
		Target:        "test",
		StagingDir:    dir,
		FetchTimeout:  time.Second,
		UploadTimeout: time.Second,
	}

	obj, err := r.Transfer(context.Background(), "https://acct1.blob.core.windows.net/mycontainer/folder/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(obj.Content))
	assert.Equal(t, "payload", string(dest.objects["file.txt"]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRelayDeliverFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	r := &Relay{
		Destination: &recordingDestination{t: t, err: fmt.Errorf("%w: bucket gone", ErrUploadFailure)},
		Target:      "test",
		StagingDir:  dir,
	}

	job, err := r.Deliver(context.Background(), "https://acct1.blob.core.windows.net/c/o.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrUploadFailure)
	assert.Equal(t, ClassUploadFailure, ErrorClass(err))
	assert.Equal(t, "o.txt", job.ObjectName)
	assert.NotEmpty(t, job.StagingPath)

	_, statErr := os.Stat(job.StagingPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRelayFetchEmptyContent(t *testing.T) {
	r := &Relay{Source: &fakeSource{obj: &Object{}}}

	_, err := r.Fetch(context.Background(), "https://acct1.blob.core.windows.net/c/o.txt")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.ErrorIs(t, err, ErrFetchFailure)
}

type bufferWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return b.closeErr
}

type fakeBucket struct {
	writers  map[string]*bufferWriter
	closeErr error
}

func (f *fakeBucket) NewWriter(_ context.Context, object string) io.WriteCloser {
	w := &bufferWriter{closeErr: f.closeErr}
	if f.writers == nil {
		f.writers = map[string]*bufferWriter{}
	}
	f.writers[object] = w
	return w
}

func TestGCSDestinationUpload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "staged.tmp")
	require.NoError(t, os.WriteFile(p, []byte("bucket bytes"), 0600))

	bucket := &fakeBucket{}
	d := &GCSDestination{Bucket: bucket, BucketName: "relay-bucket"}
	require.NoError(t, d.Upload(context.Background(), p, "test34.txt"))

	w := bucket.writers["test34.txt"]
	require.NotNil(t, w)
	assert.True(t, w.closed)
	assert.Equal(t, "bucket bytes", w.String())
}

func TestGCSDestinationFinalizeFailure(t *testing.T) {
	p := filepath.Join(t.TempDir(), "staged.tmp")
	require.NoError(t, os.WriteFile(p, []byte("bucket bytes"), 0600))

	d := &GCSDestination{Bucket: &fakeBucket{closeErr: errors.New("googleapi: Error 403")}, BucketName: "relay-bucket"}
	err := d.Upload(context.Background(), p, "test34.txt")
	assert.ErrorIs(t, err, ErrUploadFailure)
	assert.Contains(t, err.Error(), "gs://relay-bucket/test34.txt")
}

func TestGCSDestinationMissingStagedFile(t *testing.T) {
	d := &GCSDestination{Bucket: &fakeBucket{}, BucketName: "relay-bucket"}
	err := d.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.tmp"), "o.txt")
	assert.ErrorIs(t, err, ErrUploadFailure)
}

func TestFileDestination(t *testing.T) {
	src := filepath.Join(t.TempDir(), "staged.tmp")
	require.NoError(t, os.WriteFile(src, []byte("local"), 0600))

	fd := &FileDestination{ToPath: filepath.Join(t.TempDir(), "deliveries"), Name: "local"}
	require.NoError(t, fd.Upload(context.Background(), src, "test34.txt"))

	b, err := os.ReadFile(filepath.Join(fd.ToPath, "test34.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(b))
	assert.Equal(t, "UP", fd.Health(context.Background()).Status)
}

func TestObjectName(t *testing.T) {
	cases := map[string]string{
		"https://ste2isaic2do5jq.blob.core.windows.net/stc-sample/test34.txt": "test34.txt",
		"https://acct1.blob.core.windows.net/mycontainer/folder/file.txt":     "file.txt",
		"https://acct1.blob.core.windows.net/c/o.txt?sv=2020&sig=abc":         "o.txt",
		"folder/raw-name.csv":                                                 "raw-name.csv",
	}
	for in, expected := range cases {
		assert.Equal(t, expected, ObjectName(in), in)
	}
}

func TestErrorClass(t *testing.T) {
	_, invalidURL := storeaz.ParseBlobURL("http://acct1.blob.core.windows.net/c/o")
	_, invalidPath := storeaz.ParseBlobURL("https://acct1.blob.core.windows.net/c")

	cases := map[string]error{
		ClassInvalidURL:       invalidURL,
		ClassInvalidPath:      invalidPath,
		ClassAuthFailure:      fmt.Errorf("wrapped: %w", aadtoken.ErrAuthFailure),
		ClassFetchFailure:     &StatusError{StatusCode: http.StatusForbidden},
		ClassUploadFailure:    fmt.Errorf("%w: closed", ErrUploadFailure),
		ClassTransportFailure: errors.New("dial tcp: connection refused"),
	}
	for class, err := range cases {
		assert.Equal(t, class, ErrorClass(err), err.Error())
	}
}
