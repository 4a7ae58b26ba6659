package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "documents_created_total", Help: "Documents created on first access."},
	)
	DocumentSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "document_saves_total", Help: "Document checkpoint writes by result (ok, not_found, error)."},
		[]string{"result"},
	)
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_connections", Help: "Open websocket connections."},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_sessions", Help: "Documents with at least one connected participant."},
	)
	RelayedOperations = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "relayed_operations_total", Help: "Edit operations enqueued to receiving peers."},
	)
	PresenceAnnouncements = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "presence_announcements_total", Help: "Roster snapshots fanned out to documents."},
	)
	DroppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "dropped_messages_total", Help: "Messages dropped by reason."},
		[]string{"reason"},
	)
	CheckpointFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "checkpoint_flushes_total", Help: "Buffered checkpoints written by trigger (schedule, release, stop)."},
		[]string{"trigger"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentsCreated)
	reg.MustRegister(DocumentSaves)
	reg.MustRegister(ActiveConnections)
	reg.MustRegister(ActiveSessions)
	reg.MustRegister(RelayedOperations)
	reg.MustRegister(PresenceAnnouncements)
	reg.MustRegister(DroppedMessages)
	reg.MustRegister(CheckpointFlushes)
}
