package metrics

import "github.com/prometheus/client_golang/prometheus"

var ActiveDeliveries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "dex_relay_active_deliveries",
	Help: "Gauge showing number of bucket deliveries in progress",
}, []string{"target"})

var DeliveryTotals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_relay_deliveries_total",
	Help: "Number of staged blobs the server attempted to deliver to a bucket",
}, []string{"target", "result"})

var FetchTotals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_relay_fetches_total",
	Help: "Number of blob fetches partitioned by outcome class",
}, []string{"result"})
