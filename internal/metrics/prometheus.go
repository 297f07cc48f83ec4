package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProvisionSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudradius_provision_sync_duration_seconds",
		Help:    "Time to write one provisioning operation to the policy store",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ProvisionSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudradius_provision_sync_errors_total",
		Help: "Provisioning operations that failed and were queued for retry",
	}, []string{"op"})

	ProvisionRetryBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudradius_provision_retry_backlog",
		Help: "Pending provisioning retries in the outbox",
	})

	CoAPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudradius_coa_packets_total",
		Help: "CoA and Disconnect packets sent, by type and outcome",
	}, []string{"type", "outcome"})

	OnlineSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cloudradius_online_sessions",
		Help: "Open accounting sessions per tenant",
	}, []string{"tenant"})

	StaleSessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudradius_stale_sessions_closed_total",
		Help: "Ghost sessions closed with a synthetic stop time",
	})

	SubscribersRenewed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudradius_subscribers_renewed_total",
		Help: "Auto-renewals completed by the billing job",
	})

	SubscribersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudradius_subscribers_expired_total",
		Help: "Subscribers moved to expired by the billing job",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudradius_notifications_sent_total",
		Help: "Notification deliveries by kind and outcome",
	}, []string{"kind", "outcome"})
)

func ObserveProvisionSync(op string, duration time.Duration) {
	ProvisionSyncDuration.WithLabelValues(opLabel(op)).Observe(duration.Seconds())
}

func IncProvisionSyncError(op string) {
	ProvisionSyncErrors.WithLabelValues(opLabel(op)).Inc()
}

func SetProvisionRetryBacklog(count int64) {
	if count < 0 {
		count = 0
	}
	ProvisionRetryBacklog.Set(float64(count))
}

func IncCoAPacket(packetType string, confirmed bool) {
	outcome := "confirmed"
	if !confirmed {
		outcome = "unconfirmed"
	}
	CoAPacketsTotal.WithLabelValues(packetType, outcome).Inc()
}

func SetOnlineSessions(tenantSlug string, count int) {
	label := strings.TrimSpace(tenantSlug)
	if label == "" {
		label = "unknown"
	}
	if count < 0 {
		count = 0
	}
	OnlineSessions.WithLabelValues(label).Set(float64(count))
}

func AddStaleSessionsClosed(count int64) {
	if count > 0 {
		StaleSessionsClosed.Add(float64(count))
	}
}

func IncSubscriberRenewed() {
	SubscribersRenewed.Inc()
}

func IncSubscriberExpired() {
	SubscribersExpired.Inc()
}

func IncNotification(kind string, sent bool) {
	outcome := "sent"
	if !sent {
		outcome = "failed"
	}
	NotificationsSent.WithLabelValues(kind, outcome).Inc()
}

func opLabel(op string) string {
	label := strings.TrimSpace(op)
	if label == "" {
		return "unknown"
	}
	return label
}
