package triggers

import (
	"context"
	"net/http"

	"github.com/cdcgov/blob-relay/internal/bulkcopy"
)

type CopyRunner interface {
	Run(ctx context.Context) (*bulkcopy.Result, error)
}

// CopyHandler runs the bulk copy script.
type CopyHandler struct {
	Runner CopyRunner
}

func (h *CopyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Runner.Run(r.Context()); err != nil {
		respondText(w, http.StatusInternalServerError, MsgScriptFailed+err.Error())
		return
	}
	respondText(w, http.StatusOK, MsgScriptOK)
}
