// Package engine содержит встроенный движок валидации данных.
//
// Включает:
//   - datasource.go — подключение к источникам данных (duckdb, postgres, snowflake)
//   - checkpoint.go — прогон checkpoint: row count и unexpected-rows проверки
//   - query.go      — подстановка {batch} в пользовательские SQL-запросы
//   - engine.go     — версия движка и version-aware runners
//
// Engine отвечает за связь с проверяемыми данными. Различия между
// мажорными версиями движка (в первую очередь — формат ошибок
// подключения) изолированы за интерфейсом Runner: потребители видят
// только стабильные операции RunCheckpoint и CheckDatasourceConfig.
package engine
