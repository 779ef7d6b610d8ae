package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	OrdersCreated  prometheus.Counter
	OrderFailures  *prometheus.CounterVec
	OrderValue     prometheus.Counter
	ReturnsCreated prometheus.Counter
	ReturnRejected *prometheus.CounterVec
	RatesUpdated   *prometheus.CounterVec
}

// New registers the service collectors on a private registry so tests can
// build as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "orders_created_total",
			Help:      "Orders committed.",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "order_failures_total",
			Help:      "Order creations that did not commit, by error kind.",
		}, []string{"kind"}),
		OrderValue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "order_value_rupees_total",
			Help:      "Sum of grand totals of committed orders.",
		}),
		ReturnsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "returns_created_total",
			Help:      "Returns recorded.",
		}),
		ReturnRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "returns_rejected_total",
			Help:      "Return attempts rejected, by error kind.",
		}, []string{"kind"}),
		RatesUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarna",
			Name:      "rate_updates_total",
			Help:      "Metal rate updates, by metal.",
		}, []string{"metal"}),
	}
	reg.MustRegister(
		m.OrdersCreated,
		m.OrderFailures,
		m.OrderValue,
		m.ReturnsCreated,
		m.ReturnRejected,
		m.RatesUpdated,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
