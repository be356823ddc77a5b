// Package actions содержит обработчики событий и версионный реестр.
//
// Структура:
//   - action.go   — интерфейс Action и результат выполнения
//   - registry.go — реестр (версия движка, тип события) → фабрика Action
//   - runners.go  — сборка реестра по умолчанию для всех мажорных версий
//   - run_checkpoint.go, draft_datasource_config.go,
//     list_table_names.go, generate_sql_expectation.go — конкретные Actions
//
// Реестр собирается один раз при старте процесса и передаётся
// исполнителю по ссылке: глобального мутабельного состояния нет,
// тесты работают с изолированными реестрами. Поддержка новой мажорной
// версии движка — это один новый runner и его регистрация, без
// изменений исполнителя.
package actions
