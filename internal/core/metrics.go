package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quakealert_messages_sent_total",
		Help: "Messages written, by channel kind.",
	}, []string{"channel"})

	sosDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quakealert_sos_deliveries_total",
		Help: "Per-recipient SOS message writes, by result.",
	}, []string{"result"})

	friendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quakealert_friend_requests_total",
		Help: "Friend request transitions, by outcome.",
	}, []string{"outcome"})

	groupEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quakealert_group_events_total",
		Help: "Group lifecycle events.",
	}, []string{"event"})

	orphanedMessageCleanups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quakealert_orphaned_message_cleanups_total",
		Help: "Group deletions that proceeded after message deletion failed.",
	})
)
