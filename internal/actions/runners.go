package actions

import (
	"context"
	"log/slog"

	"github.com/shaiso/dozor/internal/ai"
	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// SQLDrafter генерирует черновики SQL-expectation. Сужение ai.Drafter
// до одного метода ради подмены в тестах; nil означает, что AI-генерация
// выключена (нет OPENAI_API_KEY).
type SQLDrafter interface {
	DraftSQLExpectation(ctx context.Context, req ai.DraftRequest) (*ai.SQLDraft, error)
}

// openDatasourceFunc открывает datasource по конфигурации из Cloud.
// Подменяется в тестах; по умолчанию engine.Open.
type openDatasourceFunc func(ctx context.Context, config map[string]any) (engine.Datasource, error)

// Deps — коллабораторы, инжектируемые в Actions при сборке реестра.
type Deps struct {
	// Cloud — клиент Dozor Cloud API.
	Cloud *cloud.Client

	// Drafter — AI-генерация SQL (nil, если выключена).
	Drafter SQLDrafter

	// Logger (опционально; default: slog.Default).
	Logger *slog.Logger
}

// supportedMajors — мажорные версии движка, для которых агент несёт
// runner'ы. "0" сохраняет legacy-поверхность ошибок (текстовая
// классификация), "1" — текущая линия с типизированными ошибками.
var supportedMajors = []string{"0", "1"}

// DefaultRegistry собирает реестр со всеми Actions этой сборки агента
// для всех поддерживаемых мажорных версий движка.
func DefaultRegistry(deps Deps) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := NewRegistry()

	runners := map[string]engine.Runner{
		"0": engine.NewRunnerV0(logger),
		"1": engine.NewRunnerV1(logger),
	}

	for _, major := range supportedMajors {
		runner := runners[major]
		if err := r.RegisterRunner(major, runner); err != nil {
			return nil, err
		}

		entries := map[events.EventType]Factory{
			events.TypeRunCheckpoint:          checkpointFactory(deps.Cloud, runner, logger),
			events.TypeRunScheduledCheckpoint: checkpointFactory(deps.Cloud, runner, logger),
			events.TypeRunWindowCheckpoint:    checkpointFactory(deps.Cloud, runner, logger),
			events.TypeDraftDatasourceConfig: func() Action {
				return NewDraftDatasourceConfigAction(deps.Cloud, runner, logger)
			},
			events.TypeListTableNames: func() Action {
				return NewListTableNamesAction(deps.Cloud, runner, logger)
			},
			events.TypeGenerateSQLExpectation: func() Action {
				return NewGenerateSQLExpectationAction(deps.Cloud, deps.Drafter, logger)
			},
		}
		for eventType, factory := range entries {
			if err := r.RegisterAction(major, eventType, factory); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func checkpointFactory(client *cloud.Client, runner engine.Runner, logger *slog.Logger) Factory {
	return func() Action {
		return NewRunCheckpointAction(client, runner, logger)
	}
}
