// Package cloud содержит HTTP-клиент для Dozor Cloud API.
//
// Клиент закрывает все запросы агента к control plane:
//   - agent-sessions — получение реквизитов брокера (очередь + connection string)
//   - agent-jobs — создание job-записей и обновление их статусов
//   - datasources / drafts — конфигурации источников данных и их черновики
//   - checkpoints / validation-results — определения проверок и их результаты
//   - prompt-metadata / expectation-draft-configs — AI-генерация expectations
//
// Все запросы аутентифицируются bearer-токеном организации и несут
// заголовок User-Agent вида "dozor-agent/{version}". Во время выполнения
// job клиент дополнительно проставляет Agent-Job-Id (см. ForJob), чтобы
// Cloud мог связать свои логи с конкретной работой.
package cloud
