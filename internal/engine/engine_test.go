package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/snowflakedb/gosnowflake"

	"github.com/shaiso/dozor/internal/errs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDatasource — datasource с управляемыми ответами.
type fakeDatasource struct {
	name      string
	dsType    string
	sql       bool
	pingErr   error
	tables    []string
	tablesErr error

	// counts отдаются по одному на каждый вызов Count
	counts   []int64
	countErr error

	queries []string
	closed  bool
}

func (f *fakeDatasource) Name() string { return f.name }
func (f *fakeDatasource) Type() string { return f.dsType }
func (f *fakeDatasource) IsSQL() bool  { return f.sql }

func (f *fakeDatasource) TestConnection(ctx context.Context) error { return f.pingErr }

func (f *fakeDatasource) TableNames(ctx context.Context) ([]string, error) {
	if f.tablesErr != nil {
		return nil, f.tablesErr
	}
	return f.tables, nil
}

func (f *fakeDatasource) Count(ctx context.Context, query string) (int64, error) {
	f.queries = append(f.queries, query)
	if f.countErr != nil {
		return 0, f.countErr
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	n := f.counts[0]
	f.counts = f.counts[1:]
	return n, nil
}

func (f *fakeDatasource) Close() { f.closed = true }

func openFake(ds *fakeDatasource) openFunc {
	return func(ctx context.Context, config map[string]any) (Datasource, error) {
		return ds, nil
	}
}

// --- MajorVersion Tests ---

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"1.4.2", "1"},
		{"0.18.3", "0"},
		{"2.0", "2"},
		{"10.1.0", "10"},
		{"3", "3"},
	}

	for _, tt := range tests {
		got, err := MajorVersion(tt.version)
		if err != nil {
			t.Errorf("MajorVersion(%q) unexpected error: %v", tt.version, err)
			continue
		}
		if got != tt.want {
			t.Errorf("MajorVersion(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

func TestMajorVersion_Invalid(t *testing.T) {
	for _, version := range []string{"", ".4.2", "abc.1", "v1.4.2", "1a.0"} {
		_, err := MajorVersion(version)
		if !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("MajorVersion(%q) error = %v, want ErrInvalidVersion", version, err)
		}
	}
}

func TestMajorVersion_CurrentEngine(t *testing.T) {
	// Встроенная версия движка обязана парситься
	major, err := MajorVersion(Version)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if major != "1" {
		t.Errorf("expected major %q, got %q", "1", major)
	}
}

// --- CheckDatasourceConfig Tests ---

func TestRunnerV0_CheckDatasourceConfig_TableNames(t *testing.T) {
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, tables: []string{"orders", "users"}}
	r := &runnerV0{baseRunner{logger: testLogger(), open: openFake(ds)}}

	names, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "orders" || names[1] != "users" {
		t.Errorf("unexpected table names: %v", names)
	}
	if !ds.closed {
		t.Error("datasource should be closed after check")
	}
}

func TestRunnerV0_CheckDatasourceConfig_NonSQL(t *testing.T) {
	ds := &fakeDatasource{name: "files", dsType: TypePandas, sql: false}
	r := &runnerV0{baseRunner{logger: testLogger(), open: openFake(ds)}}

	names, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "pandas"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Не-SQL источник не отдаёт таблицы
	if names != nil {
		t.Errorf("expected nil table names, got %v", names)
	}
}

func TestRunnerV0_CheckDatasourceConfig_WrongCredentials(t *testing.T) {
	// Движок v0 видит отказ аутентификации только как текст ошибки драйвера
	authErr := &gosnowflake.SnowflakeError{
		Number:  snowflakeAuthFailedCode,
		Message: "Incorrect username or password was specified.",
	}
	ds := &fakeDatasource{name: "sf", dsType: TypeSnowflake, sql: true, pingErr: fmt.Errorf("ping: %w", authErr)}
	r := &runnerV0{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "snowflake"})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := errs.From(err).ErrorCode(); code != errs.CodeWrongUsernamePassword {
		t.Errorf("expected code %q, got %q (error: %v)", errs.CodeWrongUsernamePassword, code, err)
	}
}

func TestRunnerV0_CheckDatasourceConfig_GenericFailure(t *testing.T) {
	ds := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, pingErr: errors.New("connection refused")}
	r := &runnerV0{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := errs.From(err).ErrorCode(); code != errs.CodeGenericUnhandled {
		t.Errorf("expected code %q, got %q", errs.CodeGenericUnhandled, code)
	}
	if !strings.Contains(err.Error(), "pg") {
		t.Errorf("error should name the datasource: %v", err)
	}
}

func TestRunnerV1_CheckDatasourceConfig_WrongCredentials(t *testing.T) {
	// Движок v1 распознаёт отказ по типу ошибки драйвера, не по тексту
	authErr := &gosnowflake.SnowflakeError{
		Number:  snowflakeAuthFailedCode,
		Message: "Incorrect username or password was specified.",
	}
	ds := &fakeDatasource{name: "sf", dsType: TypeSnowflake, sql: true, pingErr: fmt.Errorf("ping: %w", authErr)}
	r := &runnerV1{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "snowflake"})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := errs.From(err).ErrorCode(); code != errs.CodeWrongUsernamePassword {
		t.Errorf("expected code %q, got %q", errs.CodeWrongUsernamePassword, code)
	}
}

func TestRunnerV1_CheckDatasourceConfig_OtherSnowflakeError(t *testing.T) {
	// Другие коды Snowflake не считаются отказом аутентификации
	sfErr := &gosnowflake.SnowflakeError{Number: 250001, Message: "could not connect"}
	ds := &fakeDatasource{name: "sf", dsType: TypeSnowflake, sql: true, pingErr: sfErr}
	r := &runnerV1{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "snowflake"})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := errs.From(err).ErrorCode(); code != errs.CodeGenericUnhandled {
		t.Errorf("expected code %q, got %q", errs.CodeGenericUnhandled, code)
	}
}

func TestRunnerV1_CheckDatasourceConfig_GenericFailure(t *testing.T) {
	ds := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, pingErr: errors.New("connection refused")}
	r := &runnerV1{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := errs.From(err).ErrorCode(); code != errs.CodeGenericUnhandled {
		t.Errorf("expected code %q, got %q", errs.CodeGenericUnhandled, code)
	}
}

func TestCheckDatasourceConfig_OpenError(t *testing.T) {
	// Ошибка конфигурации отдаётся без классификации
	openErr := fmt.Errorf("%w: %q", ErrUnknownDatasourceType, "mysql")
	r := &runnerV0{baseRunner{
		logger: testLogger(),
		open: func(ctx context.Context, config map[string]any) (Datasource, error) {
			return nil, openErr
		},
	}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "mysql"})
	if !errors.Is(err, ErrUnknownDatasourceType) {
		t.Errorf("expected ErrUnknownDatasourceType, got %v", err)
	}
}

func TestRunnerV0_CheckDatasourceConfig_TableNamesError(t *testing.T) {
	ds := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, tablesErr: errors.New("permission denied")}
	r := &runnerV0{baseRunner{logger: testLogger(), open: openFake(ds)}}

	_, err := r.CheckDatasourceConfig(context.Background(), map[string]any{"type": "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("expected wrapped driver error, got %v", err)
	}
}

// --- RunCheckpoint Tests ---

func TestRunCheckpoint_Success(t *testing.T) {
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{42}}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success {
		t.Error("expected successful report")
	}
	if report.Statistics["evaluated_validations"] != 1 || report.Statistics["successful_validations"] != 1 {
		t.Errorf("unexpected statistics: %v", report.Statistics)
	}
	if len(ds.queries) != 1 || ds.queries[0] != `SELECT COUNT(*) FROM "orders"` {
		t.Errorf("unexpected queries: %v", ds.queries)
	}
}

func TestRunCheckpoint_EmptyTableFails(t *testing.T) {
	// Пустая таблица — нарушение, но не ошибка
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{0}}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Error("expected failed report for empty table")
	}
}

func TestRunCheckpoint_UnexpectedRows(t *testing.T) {
	// 10 строк в таблице, 3 из них нарушают условие
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{10, 3}}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders", UnexpectedRowsQuery: "SELECT * FROM {batch} WHERE amount < 0"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Error("expected failed report")
	}

	wantQuery := `SELECT COUNT(*) FROM (SELECT * FROM "orders" WHERE amount < 0) AS unexpected_rows`
	if len(ds.queries) != 2 || ds.queries[1] != wantQuery {
		t.Errorf("unexpected queries: %v", ds.queries)
	}

	observed, ok := report.Results[0]["observed"].(map[string]any)
	if !ok {
		t.Fatalf("observed should be map, got %T", report.Results[0]["observed"])
	}
	if observed["unexpected_rows"] != int64(3) {
		t.Errorf("expected 3 unexpected rows, got %v", observed["unexpected_rows"])
	}
}

func TestRunCheckpoint_NoUnexpectedRows(t *testing.T) {
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{10, 0}}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders", UnexpectedRowsQuery: "SELECT * FROM {batch} WHERE amount < 0"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success {
		t.Error("expected successful report")
	}
}

func TestRunCheckpoint_MinRowCountParameter(t *testing.T) {
	// Оконные checkpoint'ы поднимают порог минимального числа строк
	ds := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{3}}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "windowed",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders"},
		},
		// JSON-число из Cloud приходит как float64
		ExpectationParameters: map[string]any{"min_row_count": float64(5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Error("3 rows must not satisfy min_row_count=5")
	}

	ds2 := &fakeDatasource{name: "warehouse", dsType: TypePostgres, sql: true, counts: []int64{5}}
	report, err = r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "windowed",
		Validations: []ValidationSpec{
			{Datasource: ds2, AssetName: "orders"},
		},
		ExpectationParameters: map[string]any{"min_row_count": float64(5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success {
		t.Error("5 rows must satisfy min_row_count=5")
	}
}

func TestRunCheckpoint_ConnectionFailureStopsRun(t *testing.T) {
	healthy := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, counts: []int64{5}}
	broken := &fakeDatasource{name: "sf", dsType: TypeSnowflake, sql: true, pingErr: errors.New("network unreachable")}
	r := NewRunnerV1(testLogger())

	_, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: healthy, AssetName: "orders"},
			{Datasource: broken, AssetName: "events"},
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"sf"`) {
		t.Errorf("error should name the broken datasource: %v", err)
	}
	// Подключения проверяются до запросов: ни один Count не должен случиться
	if len(healthy.queries) != 0 {
		t.Errorf("no queries expected after connection failure, got %v", healthy.queries)
	}
}

func TestRunCheckpoint_NonSQLValidation(t *testing.T) {
	ds := &fakeDatasource{name: "files", dsType: TypePandas, sql: false}
	r := NewRunnerV1(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "daily.csv"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success {
		t.Error("expected successful report")
	}
	if len(ds.queries) != 0 {
		t.Errorf("non-SQL validation must not run queries, got %v", ds.queries)
	}
}

func TestRunCheckpoint_MixedResults(t *testing.T) {
	good := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, counts: []int64{5}}
	bad := &fakeDatasource{name: "dw", dsType: TypeDuckDB, sql: true, counts: []int64{0}}
	r := NewRunnerV0(testLogger())

	report, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: good, AssetName: "orders"},
			{Datasource: bad, AssetName: "events"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Error("one failed validation must fail the checkpoint")
	}
	if report.Statistics["evaluated_validations"] != 2 || report.Statistics["successful_validations"] != 1 {
		t.Errorf("unexpected statistics: %v", report.Statistics)
	}
}

func TestRunCheckpoint_QueryErrorAborts(t *testing.T) {
	ds := &fakeDatasource{name: "pg", dsType: TypePostgres, sql: true, countErr: errors.New("relation does not exist")}
	r := NewRunnerV1(testLogger())

	_, err := r.RunCheckpoint(context.Background(), CheckpointRun{
		Name: "nightly",
		Validations: []ValidationSpec{
			{Datasource: ds, AssetName: "orders"},
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "relation does not exist") {
		t.Errorf("expected wrapped query error, got %v", err)
	}
}

// --- Open Tests ---

func TestOpen_MissingType(t *testing.T) {
	_, err := Open(context.Background(), map[string]any{"name": "nameless"})
	if !errors.Is(err, ErrMissingDatasourceType) {
		t.Errorf("expected ErrMissingDatasourceType, got %v", err)
	}
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), map[string]any{"type": "mysql", "name": "legacy"})
	if !errors.Is(err, ErrUnknownDatasourceType) {
		t.Errorf("expected ErrUnknownDatasourceType, got %v", err)
	}
}

func TestOpen_MissingConnectionString(t *testing.T) {
	for _, dsType := range []string{"postgres", "snowflake"} {
		_, err := Open(context.Background(), map[string]any{"type": dsType, "name": "warehouse"})
		if !errors.Is(err, ErrMissingConnectionString) {
			t.Errorf("Open(%s) error = %v, want ErrMissingConnectionString", dsType, err)
		}
	}
}

func TestOpen_Pandas(t *testing.T) {
	ds, err := Open(context.Background(), map[string]any{"type": "pandas", "name": "files"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ds.Close()

	if ds.IsSQL() {
		t.Error("pandas datasource must not be SQL")
	}
	if _, err := ds.TableNames(context.Background()); !errors.Is(err, ErrNotSQLDatasource) {
		t.Errorf("expected ErrNotSQLDatasource, got %v", err)
	}
}
