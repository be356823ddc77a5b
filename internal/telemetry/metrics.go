package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики агента. Регистрируются в default registry и отдаются
// через promhttp.Handler() на /metrics.
var (
	// JobsTotal — счётчик обработанных событий по результату.
	// result: "success", "failure", "skipped".
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dozor_agent_jobs_total",
		Help: "Total events processed by the agent, by outcome",
	}, []string{"result"})

	// JobDuration — длительность обработки события от приёма до
	// терминального статуса.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dozor_agent_job_duration_seconds",
		Help:    "Time spent processing a single event",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// ConnectAttempts — попытки установить соединение с брокером,
	// включая повторы после сбоев.
	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dozor_agent_broker_connect_attempts_total",
		Help: "Broker connection attempts, including retries",
	})

	// CredentialRefreshes — сколько раз агент перезапрашивал
	// данные сессии после ошибки аутентификации брокера.
	CredentialRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dozor_agent_credential_refreshes_total",
		Help: "Broker credential refreshes after auth failures",
	})

	// RedeliveriesDropped — события, отброшенные из-за превышения
	// лимита повторных доставок.
	RedeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dozor_agent_redeliveries_dropped_total",
		Help: "Events rejected after exceeding the redelivery limit",
	})
)
