// Package agent связывает все части воедино: соединение с брокером,
// последовательное потребление событий, выполнение действий и отчёт
// о терминальном статусе каждой работы в Dozor Cloud.
//
// Состав:
//   - agent.go — жизненный цикл агента: соединение, consume-цикл,
//     отчёты о статусе job-записей
//   - executor.go — выполнение одного события с гарантией ровно
//     одного терминального Outcome
//   - config.go — конфигурация агента из переменных окружения
//   - version.go — периодическая проверка свежести версии агента
//   - errors.go — ошибки пакета
package agent
