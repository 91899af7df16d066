package event

import (
	"context"
	"sync"

	"github.com/cdcgov/blob-relay/internal/models"
)

// MemoryBus delivers events published in process to a single listener.
type MemoryBus[T Identifiable] struct {
	Chan chan T

	mu     sync.RWMutex
	closed bool
}

func NewMemoryBus[T Identifiable](size int) *MemoryBus[T] {
	return &MemoryBus[T]{Chan: make(chan T, size)}
}

func (ms *MemoryBus[T]) Listen(ctx context.Context, process func(context.Context, T) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ms.Chan:
			if !ok {
				return nil
			}
			if err := process(ctx, evt); err != nil {
				logger.Error("failed to handle event", "event_id", evt.Identifier(), "error", err.Error())
			}
		}
	}
}

func (ms *MemoryBus[T]) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.closed && ms.Chan != nil {
		close(ms.Chan)
	}
	ms.closed = true
	return nil
}

func (ms *MemoryBus[T]) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "Memory Subscriber"
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}

func (ms *MemoryBus[T]) Publish(ctx context.Context, event T) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.Chan == nil || ms.closed {
		return nil
	}
	select {
	case ms.Chan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ms *MemoryBus[T]) Length(_ context.Context) (float64, error) {
	return float64(len(ms.Chan)), nil
}
