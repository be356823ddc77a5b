package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/dozor/internal/actions"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/errs"
	"github.com/shaiso/dozor/internal/events"
	"github.com/shaiso/dozor/internal/telemetry"
)

// Тексты, которые видит пользователь в Cloud при неподдерживаемом событии.
const (
	unsupportedJobWarning = "The version of the Dozor Agent you are using does not support this job (%s). Please upgrade to latest."

	unsupportedJobStackTrace = "The version of the Dozor Agent you are using does not support this functionality. Please upgrade to the most recent image tagged with `stable`."

	invalidInputMessage = "Unable to process job. Invalid input."
)

// Outcome — терминальный итог выполнения одного события.
//
// Ровно одно из трёх: успешный результат действия, структурированная
// ошибка или пропуск неподдерживаемого события. Outcome есть всегда —
// ни одно событие не завершается без него.
type Outcome struct {
	// Result — результат успешно выполненного действия.
	Result *actions.Result

	// Err — структурированная ошибка выполнения.
	Err errs.Structured

	// Skipped — событие неподдерживаемого типа, пропущено.
	Skipped bool
}

// Label возвращает метку итога для метрик.
func (o *Outcome) Label() string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Err != nil:
		return "failure"
	default:
		return "success"
	}
}

// Executor выполняет одно событие от сырого тела до терминального Outcome.
//
// Никакая ошибка выполнения не покидает Execute: структурированные
// ошибки уходят в Outcome как есть, остальные (включая panic действия)
// нормализуются в generic-unhandled-error с сохранением текста.
type Executor struct {
	registry *actions.Registry
	version  string
	orgID    uuid.UUID
	logger   *slog.Logger
}

// NewExecutor создаёт Executor поверх реестра действий.
func NewExecutor(registry *actions.Registry, orgID uuid.UUID, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		version:  engine.Version,
		orgID:    orgID,
		logger:   logger,
	}
}

// Execute выполняет событие и возвращает его терминальный Outcome.
func (e *Executor) Execute(ctx context.Context, raw []byte, correlationID string) (outcome *Outcome) {
	logger := telemetry.WithCorrelationID(e.logger, correlationID)

	// Panic действия — тоже терминальный Outcome, а не смерть агента
	defer func() {
		if r := recover(); r != nil {
			logger.Error("action panicked", "panic", r)
			outcome = &Outcome{Err: errs.New(errs.CodeGenericUnhandled, fmt.Sprintf("action panicked: %v", r))}
		}
	}()

	ev := events.Decode(raw)
	logger = telemetry.WithEventType(logger, string(ev.Type))

	if ev.Type == events.TypeUnknown {
		logger.Warn(fmt.Sprintf(unsupportedJobWarning, correlationID))
		return &Outcome{Skipped: true}
	}

	// Событие чужой организации в очереди — повреждённый вход
	if ev.OrganizationID != nil && *ev.OrganizationID != e.orgID {
		logger.Error("event belongs to another organization",
			"event_organization_id", ev.OrganizationID,
		)
		return &Outcome{Err: errs.New(errs.CodeGenericUnhandled, invalidInputMessage)}
	}

	factory, err := e.registry.ResolveAction(e.version, ev.Type)
	if err != nil {
		if errors.Is(err, actions.ErrUnsupportedEvent) {
			logger.Warn(fmt.Sprintf(unsupportedJobWarning, correlationID))
			return &Outcome{Skipped: true}
		}
		return &Outcome{Err: errs.From(err)}
	}

	result, err := factory().Run(ctx, ev, correlationID)
	if err != nil {
		logger.Error("action failed", "error", err)
		return &Outcome{Err: errs.From(err)}
	}

	logger.Debug("action finished", "created_resources", len(result.CreatedResources))
	return &Outcome{Result: result}
}
