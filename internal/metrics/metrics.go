package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served.",
	})
	RequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "HTTP requests answered with a 4xx or 5xx status.",
	})
	TicketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Tickets created, by creation path.",
	}, []string{"path"})
	PrintCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "print_commits_total",
		Help: "Atomic print-commit attempts, by result.",
	}, []string{"result"})
	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_dropped_total",
		Help: "Realtime frames dropped because a client buffer was full.",
	})
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socket_connections",
		Help: "Open realtime connections.",
	})
	SocketCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socket_commands_total",
		Help: "Realtime commands handled, by command and outcome.",
	}, []string{"command", "outcome"})
	DailyResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daily_resets_total",
		Help: "Daily resets that claimed the day and ran.",
	})
)
