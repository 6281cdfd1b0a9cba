package liveview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "quakealert_live_sessions",
	Help: "Open live view sessions.",
})
