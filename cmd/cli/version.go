package cli

import (
	"encoding/json"
	"net/http"

	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/internal/version"
)

type VersionHandler struct{}

func (vh *VersionHandler) ServeHTTP(rw http.ResponseWriter, _ *http.Request) {
	resp := &version.Response{
		Repo:             version.GitRepo,
		LatestReleaseTag: version.LatestReleaseTag,
		GitShortSha:      version.GitShortSha,
	}

	rw.Header().Set("Content-Type", models.CONTENT_TYPE_JSON)
	enc := json.NewEncoder(rw)
	enc.Encode(resp)
}
