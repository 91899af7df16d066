package metrics

import "github.com/prometheus/client_golang/prometheus"

var DefaultMetrics = []prometheus.Collector{
	OpenConnections,
	HttpReqs,
	ActiveDeliveries,
	DeliveryTotals,
	FetchTotals,
	EventsCounter,
	CurrentMessages,
}

func RegisterMetrics(metrics ...prometheus.Collector) error {
	if metrics == nil {
		metrics = DefaultMetrics
	}
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			return err
		}
	}
	return nil
}
