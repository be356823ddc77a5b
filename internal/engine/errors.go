package engine

import "errors"

// Ошибки конфигурации datasource.
var (
	// ErrMissingDatasourceType — конфигурация не содержит поля type.
	ErrMissingDatasourceType = errors.New("datasource config has no type")

	// ErrUnknownDatasourceType — тип источника не поддерживается движком.
	ErrUnknownDatasourceType = errors.New("received an unknown Data Source type")

	// ErrMissingConnectionString — SQL-источник без connection string.
	ErrMissingConnectionString = errors.New("datasource config has no connection string")

	// ErrNotSQLDatasource — операция применима только к SQL-источникам.
	ErrNotSQLDatasource = errors.New("this operation requires a SQL Data Source")
)

// Ошибки версионирования движка.
var (
	// ErrInvalidVersion — строку версии не удалось разобрать.
	ErrInvalidVersion = errors.New("invalid engine version")
)
