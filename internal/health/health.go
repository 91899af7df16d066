package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

var ErrNotCheckable = errors.New("value does not implement health.Checkable")

type Checkable interface {
	Health(context.Context) models.ServiceHealthResp
}

// HealthResp, app health response
type HealthResp struct {
	Status   string                     `json:"status"` // general app health
	Services []models.ServiceHealthResp `json:"services"`
} // .HealthResp

type SystemHealthCheck struct {
	mu       sync.RWMutex
	Services []Checkable
}

func (hc *SystemHealthCheck) Register(c Checkable) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.Services = append(hc.Services, c)
}

func (hc *SystemHealthCheck) Check(ctx context.Context) HealthResp {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := models.STATUS_UP
	servicesResponses := []models.ServiceHealthResp{}

	for _, check := range hc.Services {
		sr := check.Health(ctx)
		servicesResponses = append(servicesResponses, sr)
		if sr.Status == models.STATUS_DOWN {
			status = models.STATUS_DEGRADED
		} // .if
	} // .for

	return HealthResp{
		Status:   status,
		Services: servicesResponses,
	}
}

// health responds to /health endpoint with the health of the app including dependency services
func (hc *SystemHealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	jsonResp, err := json.Marshal(hc.Check(r.Context())) // .jsonResp
	if err != nil {
		errMsg := "error marshal json for health response"
		logger.Error(errMsg, "error", err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	} // .if

	w.Header().Set("Content-Type", models.CONTENT_TYPE_JSON)
	w.WriteHeader(http.StatusOK)
	w.Write(jsonResp)
} // .health

var DefaultSystemHealthCheck = &SystemHealthCheck{}

// Register adds c to the default health check if it can report its health.
func Register(c any) error {
	checkable, ok := c.(Checkable)
	if !ok {
		return ErrNotCheckable
	}
	DefaultSystemHealthCheck.Register(checkable)
	return nil
}

func Handler() http.Handler {
	return DefaultSystemHealthCheck
}
