package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var EventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_relay_events_total",
	Help: "Number of blob events handled, partitioned by entry point and result",
}, []string{"source", "result"})

var CurrentMessages = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "dex_relay_queue_messages",
	Help: "Current number of messages waiting in a blob event queue",
}, []string{"queue"})

type Countable interface {
	Length(ctx context.Context) (float64, error)
}

type QueuePoller struct {
	mu       sync.Mutex
	queueMap map[string]Countable
	t        *time.Ticker
}

var DefaultPoller = QueuePoller{
	queueMap: make(map[string]Countable),
}

// Start polls every registered queue each interval until ctx is done.
// Calling Start while a previous loop is still running does nothing.
func (qp *QueuePoller) Start(ctx context.Context, interval time.Duration) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.t != nil {
		return
	}
	t := time.NewTicker(interval)
	qp.t = t

	go func() {
		defer func() {
			t.Stop()
			qp.mu.Lock()
			if qp.t == t {
				qp.t = nil
			}
			qp.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				qp.poll(ctx)
			}
		}
	}()
}

func (qp *QueuePoller) poll(ctx context.Context) {
	qp.mu.Lock()
	queues := make(map[string]Countable, len(qp.queueMap))
	for q, c := range qp.queueMap {
		queues[q] = c
	}
	qp.mu.Unlock()

	for q, c := range queues {
		l, err := c.Length(ctx)
		if err != nil {
			slog.Warn("failed to get queue length", "queue", q, "reason", err)
			continue
		}
		CurrentMessages.With(prometheus.Labels{"queue": q}).Set(l)
	}
}

func (qp *QueuePoller) Register(name string, q any) {
	c, ok := q.(Countable)
	if !ok {
		slog.Warn("metrics could not register queue", "queue", name)
		return
	}
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.queueMap == nil {
		qp.queueMap = make(map[string]Countable)
	}
	qp.queueMap[name] = c
}

func (qp *QueuePoller) running() bool {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.t != nil
}

func RegisterQueue(name string, q any) {
	DefaultPoller.Register(name, q)
}
