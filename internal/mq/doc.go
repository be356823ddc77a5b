// Package mq содержит слой подключения агента к брокеру организации.
//
// Структура:
//   - session.go    — подключение к RabbitMQ и пассивное объявление очереди
//   - supervisor.go — установка соединения с retry и ротацией credentials
//   - consumer.go   — последовательное потребление событий (prefetch 1)
//
// Топологией брокера владеет Dozor Cloud: агент никогда не создаёт
// очереди, а только проверяет существование своей (passive declare).
// Отсутствие очереди — ошибка провижининга организации, а не повод
// для retry.
package mq
