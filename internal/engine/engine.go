package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/shaiso/dozor/internal/errs"
)

// Version — версия встроенного движка валидации. Runner для событий
// выбирается по её мажорной компоненте.
const Version = "1.4.2"

// Код Snowflake для отказа аутентификации по логину и паролю.
const snowflakeAuthFailedCode = 390100

// MajorVersion извлекает мажорную компоненту версии: "1.4.2" → "1".
func MajorVersion(version string) (string, error) {
	major, _, _ := strings.Cut(version, ".")
	if major == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	for _, r := range major {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
		}
	}
	return major, nil
}

// Runner — стабильный интерфейс к одной мажорной версии движка.
//
// Потребители вызывают только эти операции; версионные различия
// (в первую очередь — как классифицируется отказ подключения)
// целиком живут внутри реализации.
type Runner interface {
	// CheckDatasourceConfig открывает источник по конфигурации
	// и проверяет его доступность. Для SQL-источников возвращает
	// список видимых таблиц (возможно пустой), для остальных — nil.
	CheckDatasourceConfig(ctx context.Context, config map[string]any) ([]string, error)

	// RunCheckpoint выполняет проверки checkpoint.
	RunCheckpoint(ctx context.Context, run CheckpointRun) (*CheckpointReport, error)
}

// openFunc открывает datasource по конфигурации. Подменяется в тестах.
type openFunc func(ctx context.Context, config map[string]any) (Datasource, error)

// baseRunner — общая для всех версий часть: прогон checkpoint
// и открытие источников.
type baseRunner struct {
	logger *slog.Logger
	open   openFunc
}

func (b *baseRunner) RunCheckpoint(ctx context.Context, run CheckpointRun) (*CheckpointReport, error) {
	return runValidations(ctx, b.logger, run)
}

// --- Runner v0 ---

// runnerV0 воспроизводит error surface движка нулевой версии: отказ
// подключения отдаётся текстом, в котором виден класс ошибки драйвера,
// и классифицируется по подстрокам.
type runnerV0 struct {
	baseRunner
}

// NewRunnerV0 создаёт runner для движков версии 0.x.
func NewRunnerV0(logger *slog.Logger) Runner {
	return &runnerV0{baseRunner{logger: logger, open: Open}}
}

func (r *runnerV0) CheckDatasourceConfig(ctx context.Context, config map[string]any) ([]string, error) {
	ds, err := r.open(ctx, config)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	if err := ds.TestConnection(ctx); err != nil {
		// Движок v0 не даёт типизированных ошибок подключения:
		// имя класса драйвера попадает в текст, классификатор
		// работает по подстрокам
		text := fmt.Errorf("test connection failed for datasource %q: %T: %v", ds.Name(), rootError(err), err)
		return nil, errs.ClassifyConnectionError(text)
	}

	if !ds.IsSQL() {
		return nil, nil
	}
	names, err := ds.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect table names for datasource %q: %w", ds.Name(), err)
	}
	return names, nil
}

// --- Runner v1 ---

// runnerV1 — движок первой версии: ошибки подключения распознаются
// по типам драйверов и сразу получают коды таксономии.
type runnerV1 struct {
	baseRunner
}

// NewRunnerV1 создаёт runner для движков версии 1.x.
func NewRunnerV1(logger *slog.Logger) Runner {
	return &runnerV1{baseRunner{logger: logger, open: Open}}
}

func (r *runnerV1) CheckDatasourceConfig(ctx context.Context, config map[string]any) ([]string, error) {
	ds, err := r.open(ctx, config)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	if err := ds.TestConnection(ctx); err != nil {
		var sfErr *gosnowflake.SnowflakeError
		if errors.As(err, &sfErr) && sfErr.Number == snowflakeAuthFailedCode {
			return nil, errs.New(errs.CodeWrongUsernamePassword,
				fmt.Sprintf("test connection failed for datasource %q: %v", ds.Name(), err))
		}
		return nil, errs.New(errs.CodeGenericUnhandled,
			fmt.Sprintf("test connection failed for datasource %q: %v", ds.Name(), err))
	}

	if !ds.IsSQL() {
		return nil, nil
	}
	names, err := ds.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect table names for datasource %q: %w", ds.Name(), err)
	}
	return names, nil
}

// rootError возвращает самую глубокую ошибку цепочки — тип драйвера,
// а не обёртки поверх него.
func rootError(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
