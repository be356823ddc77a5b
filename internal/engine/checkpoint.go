package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// ValidationSpec — одна проверка внутри checkpoint: открытый источник
// и asset (таблица), который нужно проверить.
type ValidationSpec struct {
	Datasource Datasource
	AssetName  string

	// UnexpectedRowsQuery — SQL с плейсхолдером {batch}. Строки,
	// которые он вернёт, считаются нарушением.
	UnexpectedRowsQuery string
}

// CheckpointRun — задание на прогон checkpoint.
type CheckpointRun struct {
	Name        string
	Validations []ValidationSpec

	// ExpectationParameters — параметры из Cloud для оконных и
	// scheduled checkpoint'ов. Распознаётся min_row_count: минимум
	// строк, при котором проверка строк считается пройденной
	// (по умолчанию 1).
	ExpectationParameters map[string]any
}

// CheckpointReport — итог прогона checkpoint по всем проверкам.
type CheckpointReport struct {
	Success    bool
	Statistics map[string]any
	Results    []map[string]any
}

// runValidations выполняет проверки checkpoint.
//
// Сначала тестируются подключения всех источников: отказ любого из них
// останавливает прогон целиком, до выполнения запросов. Ошибка запроса
// тоже прерывает прогон — это отказ инфраструктуры, а не данных.
// Нарушения в данных ошибкой не являются: они дают Success=false.
func runValidations(ctx context.Context, logger *slog.Logger, run CheckpointRun) (*CheckpointReport, error) {
	for _, v := range run.Validations {
		if err := v.Datasource.TestConnection(ctx); err != nil {
			return nil, fmt.Errorf("test connection failed for datasource %q: %w", v.Datasource.Name(), err)
		}
	}

	results := make([]map[string]any, 0, len(run.Validations))
	successful := 0
	for _, v := range run.Validations {
		res, ok, err := runValidation(ctx, v, run.ExpectationParameters)
		if err != nil {
			return nil, err
		}
		if ok {
			successful++
		}
		results = append(results, res)
	}

	report := &CheckpointReport{
		Success: successful == len(run.Validations),
		Statistics: map[string]any{
			"evaluated_validations":  len(run.Validations),
			"successful_validations": successful,
		},
		Results: results,
	}

	logger.Info("checkpoint finished",
		"checkpoint", run.Name,
		"success", report.Success,
		"validations", len(run.Validations),
	)
	return report, nil
}

func runValidation(ctx context.Context, v ValidationSpec, params map[string]any) (map[string]any, bool, error) {
	result := map[string]any{
		"datasource_name": v.Datasource.Name(),
		"asset_name":      v.AssetName,
	}

	// Для не-SQL источников проверяется только доступность
	if !v.Datasource.IsSQL() {
		result["success"] = true
		result["observed"] = map[string]any{}
		return result, true, nil
	}

	rowCount, err := v.Datasource.Count(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(v.AssetName))
	if err != nil {
		return nil, false, fmt.Errorf("row count for asset %q: %w", v.AssetName, err)
	}

	success := rowCount >= minRowCount(params)
	observed := map[string]any{"row_count": rowCount}

	if v.UnexpectedRowsQuery != "" {
		query := WrapCount(SubstituteBatch(v.UnexpectedRowsQuery, v.AssetName))
		unexpected, err := v.Datasource.Count(ctx, query)
		if err != nil {
			return nil, false, fmt.Errorf("unexpected rows for asset %q: %w", v.AssetName, err)
		}
		observed["unexpected_rows"] = unexpected
		success = success && unexpected == 0
	}

	result["success"] = success
	result["observed"] = observed
	return result, success, nil
}

// minRowCount извлекает порог min_row_count из expectation-параметров.
// JSON-числа приходят как float64.
func minRowCount(params map[string]any) int64 {
	raw, ok := params["min_row_count"]
	if !ok {
		return 1
	}
	switch n := raw.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 1
	}
}
