package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricName represent metric name
type MetricName string

func (mn MetricName) String() string {
	return string(mn)
}

const (
	operationsTotalMetricName      MetricName = "graphql_client_operations_total"
	operationErrorsTotalMetricName MetricName = "graphql_client_operation_errors_total"
	wsReconnectsTotalMetricName    MetricName = "graphql_client_ws_reconnects_total"
	wsActiveSubscriptionsName      MetricName = "graphql_client_ws_active_subscriptions"
	cacheResetsTotalMetricName     MetricName = "graphql_client_cache_resets_total"
	cacheLookupsTotalMetricName    MetricName = "graphql_client_cache_lookups_total"
)

// Transport label values
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Metrics holds the client collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Operations          *prometheus.CounterVec
	OperationErrors     *prometheus.CounterVec
	Reconnects          *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	CacheResets         prometheus.Counter
	CacheLookups        *prometheus.CounterVec
}

// New creates the client collectors
func New() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: operationsTotalMetricName.String(),
			Help: "Number of GraphQL operations sent, by transport and operation kind",
		}, []string{"transport", "kind"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: operationErrorsTotalMetricName.String(),
			Help: "Number of GraphQL operations that failed, by transport",
		}, []string{"transport"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: wsReconnectsTotalMetricName.String(),
			Help: "Number of websocket reconnect attempts, by reason",
		}, []string{"reason"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: wsActiveSubscriptionsName.String(),
			Help: "Number of subscriptions currently registered on the websocket transport",
		}),
		CacheResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: cacheResetsTotalMetricName.String(),
			Help: "Number of times the client cache was reset",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cacheLookupsTotalMetricName.String(),
			Help: "Number of cache lookups, by result",
		}, []string{"result"}),
	}
}

// Register registers every collector with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Operations,
		m.OperationErrors,
		m.Reconnects,
		m.ActiveSubscriptions,
		m.CacheResets,
		m.CacheLookups,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) IncOperation(transport, kind string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(transport, kind).Inc()
}

func (m *Metrics) IncOperationError(transport string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(transport).Inc()
}

func (m *Metrics) IncReconnect(reason string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetActiveSubscriptions(n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Set(float64(n))
}

func (m *Metrics) IncCacheReset() {
	if m == nil {
		return
	}
	m.CacheResets.Inc()
}

func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
