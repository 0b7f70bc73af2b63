package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics counts marketplace activity. A nil receiver is a no-op so
// services can run without a registry in tests.
type MarketMetrics struct {
	bids          *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	escrowVolume  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	feedClients   *prometheus.GaugeVec
	outbox        *prometheus.CounterVec
}

// NewMarketMetrics registers marketplace metrics on reg.
func NewMarketMetrics(reg prometheus.Registerer) *MarketMetrics {
	if reg == nil {
		return &MarketMetrics{}
	}
	m := &MarketMetrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bid attempts by outcome.",
		}, []string{"outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_settlements_total",
			Help:      "Escrow holds settled by outcome.",
		}, []string{"outcome"}),
		escrowVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_volume_minor_units_total",
			Help:      "Money moved through escrow, in minor currency units.",
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_written_total",
			Help:      "Notification rows written by type.",
		}, []string{"type"}),
		feedClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected live feed clients.",
		}, []string{"feed"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dispatch_total",
			Help:      "Outbox rows dispatched by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.bids, m.settlements, m.escrowVolume, m.notifications, m.feedClients, m.outbox)
	return m
}

// ObserveBid records a bid attempt; outcome is "accepted" or a rejection reason.
func (m *MarketMetrics) ObserveBid(outcome string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveEscrow records money entering escrow ("freeze") or leaving it
// ("release", "refund").
func (m *MarketMetrics) ObserveEscrow(stage string, amountCents int64) {
	if m == nil || m.escrowVolume == nil {
		return
	}
	m.escrowVolume.WithLabelValues(normalizeLabel(stage)).Add(float64(amountCents))
	if stage != "freeze" {
		m.settlements.WithLabelValues(normalizeLabel(stage)).Inc()
	}
}

// AddNotifications counts n rows written for the given type.
func (m *MarketMetrics) AddNotifications(notificationType string, n int) {
	if m == nil || m.notifications == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(notificationType)).Add(float64(n))
}

// FeedConnected tracks a live feed client; call the returned func on disconnect.
func (m *MarketMetrics) FeedConnected(feed string) func() {
	if m == nil || m.feedClients == nil {
		return func() {}
	}
	g := m.feedClients.WithLabelValues(normalizeLabel(feed))
	g.Inc()
	return g.Dec
}

// ObserveOutbox records a dispatch result ("published", "retry", "dlq").
func (m *MarketMetrics) ObserveOutbox(eventType, result string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
