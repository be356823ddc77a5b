// Package telemetry обеспечивает наблюдаемость агента.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Логи уходят в stdout в JSON (production) или text (разработка),
// метрики экспортируются на /metrics endpoint агента.
package telemetry
