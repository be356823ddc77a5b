package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/dozor/internal/telemetry"
)

// Значения retry-политики по умолчанию.
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 10 * time.Second
)

// RetryPolicy — явная политика повторов установки соединения.
//
// Не декоратор, а значение: политику можно прочитать в логах
// и проверить в тестах отдельно от самого цикла.
type RetryPolicy struct {
	// MaxAttempts — максимум попыток всего, включая первую.
	MaxAttempts int

	// InitialDelay — задержка перед второй попыткой.
	InitialDelay time.Duration

	// MaxDelay — потолок задержки.
	MaxDelay time.Duration
}

// DefaultRetryPolicy возвращает политику по умолчанию:
// 3 попытки, экспоненциальная задержка 1s → 2s с потолком 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
	}
}

// Backoff возвращает задержку после неудачной попытки attempt (с единицы).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Supervisor владеет жизненным циклом единственного соединения
// агента с брокером.
//
// Несколько агентов, стартующих одновременно сразу после ротации
// паролей, создают гонку: первые попытки подключения могут получить
// отказ аутентификации с уже недействительными credentials. Это
// самоизлечивающееся состояние, а не сбой, поэтому отказ
// аутентификации не эскалируется, а лечится запросом свежей сессии
// у Cloud и повтором по RetryPolicy.
type Supervisor struct {
	config  *Config
	creds   CredentialProvider
	policy  RetryPolicy
	logger  *slog.Logger
	connect ConnectFunc
}

// SupervisorConfig — зависимости Supervisor.
type SupervisorConfig struct {
	// Config — разделяемая конфигурация подключения. Обновляется
	// на месте при ротации credentials.
	Config *Config

	// Credentials — источник свежих реквизитов брокера.
	Credentials CredentialProvider

	// Policy — политика повторов (опционально; default: DefaultRetryPolicy).
	Policy RetryPolicy

	// Logger (опционально; default: slog.Default).
	Logger *slog.Logger

	// Connect — установка соединения (опционально; default: DialSession).
	Connect ConnectFunc
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	policy := cfg.Policy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = defaultInitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultMaxDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connect := cfg.Connect
	if connect == nil {
		connect = DialSession
	}

	return &Supervisor{
		config:  cfg.Config,
		creds:   cfg.Credentials,
		policy:  policy,
		logger:  logger,
		connect: connect,
	}
}

// Establish устанавливает соединение с брокером.
//
// Отказ аутентификации (включая вероятный — обрыв handshake) приводит
// к запросу свежих credentials, мутации конфигурации на месте и retry
// по политике. Любая другая ошибка фатальна и возвращается сразу.
// Отмена контекста — чистое завершение без retry: возвращается
// ctx.Err(), по которому вызывающий отличает shutdown от сбоя.
func (s *Supervisor) Establish(ctx context.Context) (*Session, error) {
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		telemetry.ConnectAttempts.Inc()

		session, err := s.connect(ctx, s.config)
		if err == nil {
			s.logger.Info("connected to broker", "queue", s.config.Queue, "attempt", attempt)
			return session, nil
		}
		if ctx.Err() != nil {
			s.logger.Info("received request to shut down")
			return nil, ctx.Err()
		}

		if errors.Is(err, ErrChannelAccessRefused) || errors.Is(err, ErrQueueNotFound) {
			s.logger.Error("the connection to Dozor Cloud has encountered an unrecoverable error", "error", err)
			return nil, err
		}
		if !isAuthenticationError(err) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("broker authentication failed, refreshing credentials",
			"attempt", attempt,
			"error", err,
		)

		if refreshErr := s.refreshConfig(ctx); refreshErr != nil {
			return nil, fmt.Errorf("refresh broker credentials: %w", refreshErr)
		}

		if attempt == s.policy.MaxAttempts {
			break
		}

		delay := s.policy.Backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.logger.Info("received request to shut down")
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, s.policy.MaxAttempts, lastErr)
}

// refreshConfig запрашивает свежие credentials и обновляет разделяемую
// конфигурацию на месте.
func (s *Supervisor) refreshConfig(ctx context.Context) error {
	creds, err := s.creds.BrokerCredentials(ctx)
	if err != nil {
		return err
	}

	telemetry.CredentialRefreshes.Inc()
	s.config.Queue = creds.Queue
	s.config.ConnectionString = creds.ConnectionString
	return nil
}
