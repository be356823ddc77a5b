package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/dozor/internal/actions"
	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/events"
	"github.com/shaiso/dozor/internal/mq"
	"github.com/shaiso/dozor/internal/telemetry"
)

const (
	// runnerQueue — имя очереди управляемых runner'ов внутри Dozor Cloud.
	// Потребление из неё означает, что работу выполняет runner, а не
	// self-hosted агент; Cloud различает их в отчётах о статусе.
	runnerQueue = "dozor-runner"

	// maxConsumeRestarts — сколько раз подряд агент пытается
	// восстановить потерянное соединение с брокером.
	maxConsumeRestarts = 3
)

// Agent — цикл жизни агента: соединение с брокером, последовательное
// потребление событий очереди организации и отчёт о статусе каждой
// job-записи в Dozor Cloud.
type Agent struct {
	client   *cloud.Client
	executor *Executor
	logger   *slog.Logger
	connect  mq.ConnectFunc

	// processedBy определяется именем очереди при подключении:
	// очередь runner'ов — "runner", любая другая — "agent".
	processedBy events.ProcessedBy
}

// Options — зависимости Agent.
type Options struct {
	// Client — клиент Dozor Cloud.
	Client *cloud.Client

	// Registry — реестр действий.
	Registry *actions.Registry

	// Logger (опционально; default: slog.Default).
	Logger *slog.Logger

	// Connect — установка соединения с брокером
	// (опционально; default: mq.DialSession).
	Connect mq.ConnectFunc
}

// New создаёт Agent.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:      opts.Client,
		executor:    NewExecutor(opts.Registry, opts.Client.OrganizationID(), logger),
		logger:      logger,
		connect:     opts.Connect,
		processedBy: events.ProcessedByAgent,
	}
}

// Run запускает агент и блокируется до отмены контекста или фатальной
// ошибки. Отмена контекста — чистое завершение, Run возвращает nil.
func (a *Agent) Run(ctx context.Context) error {
	provider := credentialProvider{client: a.client}

	// Стартовые credentials; дальше конфигурация мутируется на месте
	// при каждой ротации
	creds, err := provider.BrokerCredentials(ctx)
	if err != nil {
		return fmt.Errorf("create agent session: %w", err)
	}
	config := &mq.Config{
		Queue:            creds.Queue,
		ConnectionString: creds.ConnectionString,
	}

	supervisor := mq.NewSupervisor(mq.SupervisorConfig{
		Config:      config,
		Credentials: provider,
		Logger:      a.logger,
		Connect:     a.connect,
	})

	restarts := 0
	for {
		session, err := supervisor.Establish(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		a.processedBy = events.ProcessedByAgent
		if session.Queue() == runnerQueue {
			a.processedBy = events.ProcessedByRunner
		}

		consumer := mq.NewConsumer(session, a.logger, a.handleDelivery)
		err = consumer.Consume(ctx)
		session.Close()

		if err == nil {
			a.logger.Info("agent stopped")
			return nil
		}

		restarts++
		if restarts > maxConsumeRestarts {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		a.logger.Warn("connection to broker lost, reconnecting",
			"restart", restarts,
			"error", err,
		)
	}
}

// handleDelivery обрабатывает одно событие до терминального Outcome.
//
// nil означает, что Outcome доложен в Cloud и сообщение можно
// подтвердить. Ошибка возвращается только если отчёт о терминальном
// статусе не удался: тогда событие вернётся в очередь и будет
// обработано повторно.
func (a *Agent) handleDelivery(ctx context.Context, d *mq.Delivery) error {
	start := time.Now()

	ev := events.Decode(d.Body)
	logger := telemetry.WithEventType(
		telemetry.WithCorrelationID(a.logger, d.CorrelationID),
		string(ev.Type),
	)
	jobClient := a.client.ForJob(d.CorrelationID)

	// Для scheduled-событий job-запись создаёт агент, Cloud её не делает
	if ev.IsScheduled() {
		rec := events.NewScheduledJobRecord(ev, d.CorrelationID)
		if err := jobClient.CreateScheduledJob(ctx, rec); err != nil {
			logger.Warn("failed to create scheduled job record", "error", err)
		}
	}

	if err := jobClient.UpdateJobStatus(ctx, d.CorrelationID, events.NewJobStarted()); err != nil {
		logger.Warn("failed to mark job as started", "error", err)
	}

	outcome := a.executor.Execute(ctx, d.Body, d.CorrelationID)

	completed := a.completedStatus(outcome)
	if err := jobClient.UpdateJobStatus(ctx, d.CorrelationID, completed); err != nil {
		return fmt.Errorf("report job outcome: %w", err)
	}

	telemetry.JobsTotal.WithLabelValues(outcome.Label()).Inc()
	telemetry.JobDuration.Observe(time.Since(start).Seconds())

	logger.Info("job finished",
		"success", completed.Success,
		"duration", time.Since(start),
	)
	return nil
}

// completedStatus строит терминальный статус job-записи из Outcome.
func (a *Agent) completedStatus(outcome *Outcome) events.JobCompleted {
	switch {
	case outcome.Skipped:
		return events.JobCompleted{
			Status:           events.JobStatusCompleted,
			Success:          false,
			CreatedResources: []events.CreatedResource{},
			ErrorStackTrace:  unsupportedJobStackTrace,
			ProcessedBy:      a.processedBy,
		}
	case outcome.Err != nil:
		return events.BuildFailedStatus(outcome.Err, a.processedBy)
	default:
		return events.NewJobCompletedSuccess(outcome.Result.CreatedResources, a.processedBy)
	}
}

// credentialProvider адаптирует создание agent-сессии в Cloud
// к контракту mq.CredentialProvider.
type credentialProvider struct {
	client *cloud.Client
}

func (p credentialProvider) BrokerCredentials(ctx context.Context) (mq.Credentials, error) {
	session, err := p.client.CreateAgentSession(ctx)
	if err != nil {
		return mq.Credentials{}, err
	}
	return mq.Credentials{
		Queue:            session.Queue,
		ConnectionString: session.ConnectionString,
	}, nil
}
