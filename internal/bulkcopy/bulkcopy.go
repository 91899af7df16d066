package bulkcopy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/blob-relay/pkg/sloger"
)

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

var ErrScriptFailed = errors.New("copy script failed")

// Runner executes the bulk copy shell script. The script is opaque, only its exit status matters.
type Runner struct {
	ScriptPath string
	Timeout    time.Duration
	Env        []string
}

// Result holds what the script printed.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	logger := sloger.FromContext(ctx)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ScriptPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	logger.Info("running copy script", "script", r.ScriptPath)
	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		logger.Error("copy script failed", "script", r.ScriptPath, "error", err, "stderr", res.Stderr)
		return res, fmt.Errorf("%w: %w", ErrScriptFailed, err)
	}

	logger.Info("copy script finished", "script", r.ScriptPath, "duration", res.Duration.String())
	return res, nil
}
