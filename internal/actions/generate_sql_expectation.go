package actions

import (
	"context"
	"log/slog"

	"github.com/shaiso/dozor/internal/ai"
	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// GenerateSQLExpectationAction генерирует черновик SQL-expectation
// по пользовательскому prompt'у: метаданные prompt'а из Cloud →
// черновик от модели (с проверкой компиляции на живом источнике) →
// сохранение черновика в workspace.
type GenerateSQLExpectationAction struct {
	client  *cloud.Client
	drafter SQLDrafter
	logger  *slog.Logger
	open    openDatasourceFunc
}

// NewGenerateSQLExpectationAction создаёт Action генерации expectation.
func NewGenerateSQLExpectationAction(client *cloud.Client, drafter SQLDrafter, logger *slog.Logger) *GenerateSQLExpectationAction {
	return &GenerateSQLExpectationAction{
		client:  client,
		drafter: drafter,
		logger:  logger,
		open:    engine.Open,
	}
}

// Run генерирует и сохраняет черновик expectation.
func (a *GenerateSQLExpectationAction) Run(ctx context.Context, ev events.Event, correlationID string) (*Result, error) {
	if a.drafter == nil {
		return nil, ai.ErrNoCredentials
	}

	meta, err := a.client.GetPromptMetadata(ctx, *ev.WorkspaceID, *ev.ExpectationPromptID)
	if err != nil {
		return nil, err
	}

	datasource, err := a.client.GetDatasourceByName(ctx, meta.DataSourceName)
	if err != nil {
		return nil, err
	}
	ds, err := a.open(ctx, datasource.Config)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	req := ai.DraftRequest{
		UserPrompt: meta.UserPrompt,
		Dialect:    ds.Type(),
	}
	if ds.IsSQL() {
		// Сгенерированный запрос проверяется выполнением на источнике
		req.CheckCompiles = func(ctx context.Context, query string) error {
			_, err := ds.Count(ctx, engine.WrapCount(engine.SubstituteBatch(query, meta.AssetName)))
			return err
		}
	}

	draft, err := a.drafter.DraftSQLExpectation(ctx, req)
	if err != nil {
		return nil, err
	}

	resourceID, err := a.client.CreateExpectationDraftConfig(ctx, *ev.WorkspaceID, cloud.ExpectationDraftConfig{
		AssetID: meta.AssetName,
		DraftExpectation: map[string]any{
			"type":                  "unexpected_rows_expectation",
			"unexpected_rows_query": draft.Query,
			"description":           draft.Description,
			"batch_definition_name": meta.BatchDefinitionName,
		},
		OrganizationID: ev.OrganizationID.String(),
	})
	if err != nil {
		return nil, err
	}

	return NewResult(correlationID, ev.Type, []events.CreatedResource{
		{ResourceID: resourceID, Type: events.ResourceExpectationDraftConfig},
	}), nil
}
