package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// ListTableNamesAction обновляет список таблиц сохранённого SQL-источника.
type ListTableNamesAction struct {
	client *cloud.Client
	runner engine.Runner
	logger *slog.Logger
}

// NewListTableNamesAction создаёт Action обновления списка таблиц.
func NewListTableNamesAction(client *cloud.Client, runner engine.Runner, logger *slog.Logger) *ListTableNamesAction {
	return &ListTableNamesAction{client: client, runner: runner, logger: logger}
}

// Run собирает имена таблиц источника и отправляет их в Cloud.
// Применим только к SQL-источникам. Ресурсов не создаёт.
func (a *ListTableNamesAction) Run(ctx context.Context, ev events.Event, correlationID string) (*Result, error) {
	datasource, err := a.client.GetDatasourceByName(ctx, ev.DatasourceName)
	if err != nil {
		return nil, err
	}

	tableNames, err := a.runner.CheckDatasourceConfig(ctx, datasource.Config)
	if err != nil {
		return nil, err
	}
	if tableNames == nil {
		return nil, fmt.Errorf("%w: datasource %q", engine.ErrNotSQLDatasource, ev.DatasourceName)
	}

	if err := a.client.UpdateDatasourceTableNames(ctx, datasource.ID, tableNames); err != nil {
		return nil, err
	}

	a.logger.Debug("datasource table names updated",
		"datasource", ev.DatasourceName,
		"tables", len(tableNames),
	)
	return NewResult(correlationID, ev.Type, nil), nil
}
