package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var SpeedHistograms = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dex_relay_delivery_speed_bytes_per_second",
	Help:    "Bucket delivery speed distribution",
	Buckets: prometheus.ExponentialBuckets(10, 2.5, 20),
}, []string{"target"})

func observeSpeed(target string, size int, dur time.Duration) {
	if dur <= 0 {
		return
	}
	SpeedHistograms.With(prometheus.Labels{"target": target}).Observe(float64(size) / dur.Seconds())
}
