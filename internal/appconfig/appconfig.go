package appconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/sethvargo/go-envconfig"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	RUN_MODE_CLOUD = "cloud"
	RUN_MODE_LOCAL = "local"

	FETCH_STRATEGY_HTTP = "http"
	FETCH_STRATEGY_SDK  = "sdk"

	// DefaultFileURL is the default input when no file_url is supplied to the http trigger.
	DefaultFileURL = "https://ste2isaic2do5jq.blob.core.windows.net/stc-sample/test34.txt"
)

var runModes = []string{RUN_MODE_CLOUD, RUN_MODE_LOCAL}
var fetchStrategies = []string{FETCH_STRATEGY_HTTP, FETCH_STRATEGY_SDK}

type RootResp struct {
	System     string `json:"system"`
	DexProduct string `json:"dex_product"`
	DexApp     string `json:"dex_app"`
	ServerTime string `json:"server_time"`
} // .rootResp

type AppConfig struct {

	// App and for Logger
	LoggerDebugOn  bool   `env:"LOGGER_DEBUG_ON"`
	Environment    string `env:"ENVIRONMENT, default=DEV"`
	TracingEnabled bool   `env:"TRACING_ENABLED, default=false"`

	// Server
	ServerPort          string `env:"SERVER_PORT, default=8080"`
	CustomHandlerPort   string `env:"FUNCTIONS_CUSTOMHANDLER_PORT"`
	RunMode             string `env:"RUN_MODE, default=cloud"`
	FetchStrategy       string `env:"FETCH_STRATEGY, default=http"`
	DefaultFileURL      string `env:"DEFAULT_FILE_URL"`
	ErrorMarkerSniffing bool   `env:"ERROR_MARKER_SNIFFING, default=true"`
	HTTPUploadEnabled   bool   `env:"HTTP_UPLOAD_ENABLED, default=true"`
	EventUploadEnabled  bool   `env:"EVENT_UPLOAD_ENABLED, default=false"`

	// Transfer
	StagingDir          string        `env:"STAGING_DIR"`
	LocalDeliveryFolder string        `env:"LOCAL_DELIVERY_FOLDER, default=./deliveries"`
	FetchTimeout        time.Duration `env:"FETCH_TIMEOUT, default=30s"`
	UploadTimeout       time.Duration `env:"UPLOAD_TIMEOUT, default=5m"`
	TokenCacheEnabled   bool          `env:"TOKEN_CACHE_ENABLED, default=false"`
	BlobAPIVersion      string        `env:"BLOB_API_VERSION, default=2020-04-08"`

	// Bulk copy
	CopyScriptPath    string        `env:"COPY_SCRIPT_PATH, default=./script/copy_to_bucket.sh"`
	CopyScriptTimeout time.Duration `env:"COPY_SCRIPT_TIMEOUT, default=10m"`

	// Azure source config
	AzureApp     AzureAppConfig     `env:", prefix=AZURE_"`
	BlobStorage  BlobStorageConfig  `env:", prefix=BLOB_STORAGE_"`
	GoogleBucket GoogleBucketConfig `env:", prefix=GOOGLE_"`

	SubscriberConnection *AzureQueueConfig `env:", prefix=SUBSCRIBER_, noinit"`

	// oauth
	OauthConfig *OauthConfig `env:", prefix=OAUTH_"`
} // .AppConfig

// AzureAppConfig holds the service principal used to read from blob storage.
type AzureAppConfig struct {
	ClientID      string `env:"APP_SERVICE_CLIENT_ID"`
	TenantID      string `env:"TENANT_ID"`
	ClientSecret  string `env:"APP_SERVICE_CLIENT_SECRET"`
	AuthorityHost string `env:"AUTHORITY_HOST, default=https://login.microsoftonline.com/"`
} // .AzureAppConfig

// Authority is the identity provider authority for the configured tenant.
func (c AzureAppConfig) Authority() string {
	return strings.TrimSuffix(c.AuthorityHost, "/") + "/" + c.TenantID
}

type BlobStorageConfig struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	ContainerName    string `env:"CONTAINER_NAME"`
}

type GoogleBucketConfig struct {
	BucketName string `env:"BUCKET_NAME"`
	KeyFile    string `env:"CICD_CLIENT_KEY_FILE"`
}

type AzureQueueConfig struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	Topic            string `env:"TOPIC"`
	Queue            string `env:"QUEUE"`
	Subscription     string `env:"SUBSCRIPTION"`
	MaxMessages      int    `env:"MAX_MESSAGES"`
}

type OauthConfig struct {
	AuthEnabled    bool   `env:"AUTH_ENABLED, default=false"`
	IssuerUrl      string `env:"ISSUER_URL"`
	RequiredScopes string `env:"REQUIRED_SCOPES"`
}

// Port returns the port the server should listen on; the functions host port wins when set.
func (conf AppConfig) Port() string {
	if conf.CustomHandlerPort != "" {
		return conf.CustomHandlerPort
	}
	return conf.ServerPort
}

func (conf *AppConfig) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jsonResp, err := json.Marshal(RootResp{
		System:     "DEX",
		DexProduct: "BLOB RELAY",
		DexApp:     "relay server",
		ServerTime: time.Now().Format(time.RFC3339Nano),
	}) // .jsonResp
	if err != nil {
		errMsg := "error marshal json for root response"
		logger.Error(errMsg, "error", err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	} // .if

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonResp)
}

// Check reports every missing or invalid value at once.
func (conf AppConfig) Check() error {
	errs := []error{}

	if !slices.Contains(runModes, conf.RunMode) {
		errs = append(errs, fmt.Errorf("RUN_MODE %q not recognized, expected one of %v", conf.RunMode, runModes))
	}
	if !slices.Contains(fetchStrategies, conf.FetchStrategy) {
		errs = append(errs, fmt.Errorf("FETCH_STRATEGY %q not recognized, expected one of %v", conf.FetchStrategy, fetchStrategies))
	}

	if conf.FetchStrategy == FETCH_STRATEGY_HTTP {
		errs = append(errs, required(map[string]string{
			"AZURE_APP_SERVICE_CLIENT_ID":     conf.AzureApp.ClientID,
			"AZURE_TENANT_ID":                 conf.AzureApp.TenantID,
			"AZURE_APP_SERVICE_CLIENT_SECRET": conf.AzureApp.ClientSecret,
		})...)
	}
	if conf.FetchStrategy == FETCH_STRATEGY_SDK {
		errs = append(errs, required(map[string]string{
			"BLOB_STORAGE_CONNECTION_STRING": conf.BlobStorage.ConnectionString,
		})...)
	}
	if conf.RunMode == RUN_MODE_CLOUD {
		errs = append(errs, required(map[string]string{
			"GOOGLE_BUCKET_NAME":          conf.GoogleBucket.BucketName,
			"GOOGLE_CICD_CLIENT_KEY_FILE": conf.GoogleBucket.KeyFile,
		})...)
	}

	if conf.SubscriberConnection != nil {
		if conf.SubscriberConnection.ConnectionString == "" {
			errs = append(errs, &MissingConfigError{ConfigName: "SUBSCRIBER_CONNECTION_STRING"})
		}
		if conf.SubscriberConnection.Queue == "" && (conf.SubscriberConnection.Topic == "" || conf.SubscriberConnection.Subscription == "") {
			errs = append(errs, &MissingConfigError{ConfigName: "SUBSCRIBER_QUEUE or SUBSCRIBER_TOPIC/SUBSCRIBER_SUBSCRIPTION"})
		}
	}

	if conf.OauthConfig != nil && conf.OauthConfig.AuthEnabled && conf.OauthConfig.IssuerUrl == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "OAUTH_ISSUER_URL"})
	}

	return errors.Join(errs...)
}

func required(values map[string]string) []error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	errs := []error{}
	for _, name := range names {
		if strings.TrimSpace(values[name]) == "" {
			errs = append(errs, &MissingConfigError{ConfigName: name})
		}
	}
	return errs
}

var LoadedConfig = &AppConfig{}

func Handler() http.Handler {
	return LoadedConfig
}

// ParseConfig loads app configuration based on environment variables and returns AppConfig struct
func ParseConfig(ctx context.Context) (AppConfig, error) {
	return ParseConfigWith(ctx, envconfig.OsLookuper())
} // .ParseConfig

// ParseConfigWith loads app configuration from the given lookuper, fills derived defaults and validates it.
func ParseConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (AppConfig, error) {

	var ac AppConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &ac,
		Lookuper: lookuper,
	}); err != nil {
		return AppConfig{}, err
	} // .if

	if ac.DefaultFileURL == "" {
		ac.DefaultFileURL = DefaultFileURL
	}

	if err := ac.Check(); err != nil {
		return AppConfig{}, err
	}

	LoadedConfig = &ac
	return ac, nil
} // .ParseConfigWith
