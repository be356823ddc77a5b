package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// RunCheckpointAction выполняет checkpoint: по требованию, по расписанию
// или с оконными параметрами. Разница между вариантами только в том,
// откуда берутся expectation-параметры; сам прогон одинаков.
type RunCheckpointAction struct {
	client *cloud.Client
	runner engine.Runner
	logger *slog.Logger
	open   openDatasourceFunc
	now    func() time.Time
}

// NewRunCheckpointAction создаёт Action прогона checkpoint.
func NewRunCheckpointAction(client *cloud.Client, runner engine.Runner, logger *slog.Logger) *RunCheckpointAction {
	return &RunCheckpointAction{
		client: client,
		runner: runner,
		logger: logger,
		open:   engine.Open,
		now:    time.Now,
	}
}

// Run выполняет checkpoint и сохраняет результат в Cloud.
func (a *RunCheckpointAction) Run(ctx context.Context, ev events.Event, correlationID string) (*Result, error) {
	checkpoint, err := a.client.GetCheckpoint(ctx, *ev.CheckpointID)
	if err != nil {
		return nil, err
	}

	// Scheduled и window прогоны получают параметры из Cloud
	var params map[string]any
	if ev.Type != events.TypeRunCheckpoint {
		params, err = a.client.GetCheckpointExpectationParameters(ctx, checkpoint.ID)
		if err != nil {
			return nil, err
		}
	}

	run, closeAll, err := a.buildRun(ctx, checkpoint, params)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	report, err := a.runner.RunCheckpoint(ctx, run)
	if err != nil {
		return nil, err
	}

	resultID, err := a.client.CreateValidationResult(ctx, cloud.ValidationResult{
		CheckpointID:   checkpoint.ID,
		CheckpointName: checkpoint.Name,
		Success:        report.Success,
		Statistics:     report.Statistics,
		Results:        report.Results,
		RanAt:          a.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return NewResult(correlationID, ev.Type, []events.CreatedResource{
		{ResourceID: resultID, Type: events.ResourceSuiteValidationResult},
	}), nil
}

// buildRun открывает все источники checkpoint и собирает задание
// на прогон. Источник с одним именем открывается один раз и
// переиспользуется всеми его validations.
func (a *RunCheckpointAction) buildRun(ctx context.Context, checkpoint *cloud.Checkpoint, params map[string]any) (engine.CheckpointRun, func(), error) {
	opened := make(map[string]engine.Datasource)
	closeAll := func() {
		for _, ds := range opened {
			ds.Close()
		}
	}

	specs := make([]engine.ValidationSpec, 0, len(checkpoint.Validations))
	for _, v := range checkpoint.Validations {
		ds, ok := opened[v.DatasourceName]
		if !ok {
			record, err := a.client.GetDatasourceByName(ctx, v.DatasourceName)
			if err != nil {
				closeAll()
				return engine.CheckpointRun{}, nil, err
			}
			ds, err = a.open(ctx, record.Config)
			if err != nil {
				closeAll()
				return engine.CheckpointRun{}, nil, fmt.Errorf("open datasource %q: %w", v.DatasourceName, err)
			}
			opened[v.DatasourceName] = ds
		}
		specs = append(specs, engine.ValidationSpec{
			Datasource:          ds,
			AssetName:           v.AssetName,
			UnexpectedRowsQuery: v.UnexpectedRowsQuery,
		})
	}

	return engine.CheckpointRun{
		Name:                  checkpoint.Name,
		Validations:           specs,
		ExpectationParameters: params,
	}, closeAll, nil
}
