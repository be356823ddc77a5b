package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	// Драйверы database/sql, используемые движком.
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/snowflakedb/gosnowflake"
)

// Поддерживаемые типы datasource.
const (
	// TypePandas — локальный источник для файловых данных (CSV, parquet).
	// Подключение эмулируется in-memory движком, SQL-операции недоступны.
	TypePandas = "pandas"

	// TypeDuckDB — встраиваемая аналитическая база (файл или in-memory).
	TypeDuckDB = "duckdb"

	// TypePostgres — PostgreSQL.
	TypePostgres = "postgres"

	// TypeSnowflake — Snowflake.
	TypeSnowflake = "snowflake"
)

const connectTimeout = 10 * time.Second

// Datasource — открытое подключение к источнику данных.
type Datasource interface {
	// Name — имя источника из конфигурации.
	Name() string

	// Type — тип источника (TypePandas, TypePostgres, ...).
	Type() string

	// IsSQL — поддерживает ли источник SQL-операции (список таблиц,
	// unexpected-rows запросы).
	IsSQL() bool

	// TestConnection проверяет доступность источника.
	// Ошибка драйвера возвращается без обёртывания: по её типу и тексту
	// runner'ы строят version-специфичную классификацию.
	TestConnection(ctx context.Context) error

	// TableNames возвращает имена таблиц. Для не-SQL источников — ошибка.
	TableNames(ctx context.Context) ([]string, error)

	// Count выполняет запрос, возвращающий одно число.
	Count(ctx context.Context, query string) (int64, error)

	// Close освобождает подключение.
	Close()
}

// Open открывает datasource по его конфигурации из Cloud.
//
// Подключение ленивое: сетевой ввод-вывод происходит только
// в TestConnection и запросах.
func Open(ctx context.Context, config map[string]any) (Datasource, error) {
	dsType, _ := config["type"].(string)
	name, _ := config["name"].(string)

	switch dsType {
	case "":
		return nil, ErrMissingDatasourceType

	case TypePandas:
		// Файловые данные прогоняются через in-memory DuckDB
		db, err := sql.Open("duckdb", "")
		if err != nil {
			return nil, fmt.Errorf("open in-memory engine: %w", err)
		}
		return &sqlDatasource{name: name, dsType: TypePandas, db: db, isSQL: false}, nil

	case TypeDuckDB:
		path, _ := config["path"].(string)
		db, err := sql.Open("duckdb", path)
		if err != nil {
			return nil, fmt.Errorf("open duckdb %q: %w", path, err)
		}
		return &sqlDatasource{
			name:   name,
			dsType: TypeDuckDB,
			db:     db,
			isSQL:  true,
			tablesQuery: `SELECT table_name FROM information_schema.tables
				WHERE table_schema = 'main' ORDER BY table_name`,
		}, nil

	case TypePostgres, "postgresql":
		connString, _ := config["connection_string"].(string)
		if connString == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingConnectionString, name)
		}
		cfg, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("parse connection string: %w", err)
		}
		cfg.MaxConns = 2
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("new pool: %w", err)
		}
		return &pgxDatasource{name: name, pool: pool}, nil

	case TypeSnowflake:
		connString, _ := config["connection_string"].(string)
		if connString == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingConnectionString, name)
		}
		db, err := sql.Open("snowflake", connString)
		if err != nil {
			return nil, fmt.Errorf("open snowflake: %w", err)
		}
		return &sqlDatasource{
			name:   name,
			dsType: TypeSnowflake,
			db:     db,
			isSQL:  true,
			tablesQuery: `SELECT table_name FROM information_schema.tables
				WHERE table_schema = CURRENT_SCHEMA() ORDER BY table_name`,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatasourceType, dsType)
	}
}

// QuoteIdent экранирует имя таблицы для подстановки в запрос.
// Двойные кавычки понимают все поддерживаемые SQL-источники.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// --- database/sql датасорсы (duckdb, snowflake) ---

type sqlDatasource struct {
	name        string
	dsType      string
	db          *sql.DB
	isSQL       bool
	tablesQuery string
}

func (d *sqlDatasource) Name() string { return d.name }
func (d *sqlDatasource) Type() string { return d.dsType }
func (d *sqlDatasource) IsSQL() bool  { return d.isSQL }

func (d *sqlDatasource) TestConnection(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return d.db.PingContext(pingCtx)
}

func (d *sqlDatasource) TableNames(ctx context.Context) ([]string, error) {
	if !d.isSQL {
		return nil, fmt.Errorf("%w: got %s", ErrNotSQLDatasource, d.dsType)
	}

	rows, err := d.db.QueryContext(ctx, d.tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	// Пустой срез, а не nil: nil зарезервирован за не-SQL источниками
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *sqlDatasource) Count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *sqlDatasource) Close() {
	d.db.Close()
}

// --- pgx датасорс (postgres) ---

type pgxDatasource struct {
	name string
	pool *pgxpool.Pool
}

func (d *pgxDatasource) Name() string { return d.name }
func (d *pgxDatasource) Type() string { return TypePostgres }
func (d *pgxDatasource) IsSQL() bool  { return true }

func (d *pgxDatasource) TestConnection(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return d.pool.Ping(pingCtx)
}

func (d *pgxDatasource) TableNames(ctx context.Context) ([]string, error) {
	query := `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *pgxDatasource) Count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := d.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *pgxDatasource) Close() {
	d.pool.Close()
}
