package actions

import (
	"context"
	"log/slog"

	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// DraftDatasourceConfigAction проверяет черновик конфигурации datasource:
// забирает config из Cloud, пробует подключиться и для SQL-источников
// записывает обратно список видимых таблиц. Пользователь в UI сразу
// видит, что конфигурация рабочая и какие assets доступны.
type DraftDatasourceConfigAction struct {
	client *cloud.Client
	runner engine.Runner
	logger *slog.Logger
}

// NewDraftDatasourceConfigAction создаёт Action проверки черновика.
func NewDraftDatasourceConfigAction(client *cloud.Client, runner engine.Runner, logger *slog.Logger) *DraftDatasourceConfigAction {
	return &DraftDatasourceConfigAction{client: client, runner: runner, logger: logger}
}

// Run проверяет черновик конфигурации. Ресурсов не создаёт.
func (a *DraftDatasourceConfigAction) Run(ctx context.Context, ev events.Event, correlationID string) (*Result, error) {
	config, err := a.client.GetDraftDatasourceConfig(ctx, *ev.ConfigID)
	if err != nil {
		return nil, err
	}

	tableNames, err := a.runner.CheckDatasourceConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// nil — не-SQL источник: проверено только подключение,
	// интроспекции таблиц нет
	if tableNames != nil {
		if err := a.client.UpdateDraftTableNames(ctx, *ev.ConfigID, tableNames); err != nil {
			return nil, err
		}
		a.logger.Debug("draft table names updated",
			"config_id", ev.ConfigID,
			"tables", len(tableNames),
		)
	}

	return NewResult(correlationID, ev.Type, nil), nil
}
