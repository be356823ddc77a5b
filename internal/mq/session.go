package mq

import (
	"context"
	"errors"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config — параметры подключения к брокеру организации.
//
// Единственный разделяемый мутабельный объект агента: при ошибке
// аутентификации Supervisor обновляет поля на месте (а не заменяет
// объект), чтобы свежие credentials увидели все держатели ссылки.
// Инвариант single-writer: мутация происходит только внутри retry-цикла
// Establish, до любого конкурентного использования соединения.
type Config struct {
	// Queue — имя очереди организации.
	Queue string

	// ConnectionString — amqp-адрес брокера с ротируемыми credentials.
	ConnectionString string
}

// Credentials — свежие реквизиты брокера от CredentialProvider.
type Credentials struct {
	Queue            string
	ConnectionString string
}

// CredentialProvider выдаёт актуальные реквизиты брокера.
// Повторный вызов возвращает свежие credentials после ротации.
type CredentialProvider interface {
	BrokerCredentials(ctx context.Context) (Credentials, error)
}

// Session — открытое соединение с брокером и канал, привязанный
// к очереди организации.
type Session struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// Queue возвращает имя очереди, к которой привязана сессия.
func (s *Session) Queue() string {
	return s.queue
}

// Close закрывает канал и соединение.
func (s *Session) Close() {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// ConnectFunc устанавливает соединение по текущей конфигурации.
// Подменяется в тестах.
type ConnectFunc func(ctx context.Context, cfg *Config) (*Session, error)

// DialSession подключается к брокеру и пассивно объявляет очередь
// организации: durable, уже существующая на стороне брокера.
func DialSession(ctx context.Context, cfg *Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cfg.ConnectionString)
	if err != nil {
		if isAuthenticationError(err) {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Очередь только проверяется: создаёт её Cloud при провижининге
	if _, err := ch.QueueDeclarePassive(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		var aerr *amqp.Error
		if errors.As(err, &aerr) {
			switch aerr.Code {
			case amqp.AccessRefused:
				return nil, fmt.Errorf("%w: %v", ErrChannelAccessRefused, err)
			case amqp.NotFound:
				return nil, fmt.Errorf("%w: %q", ErrQueueNotFound, cfg.Queue)
			}
		}
		return nil, fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}

	return &Session{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

// isAuthenticationError распознаёт отказ аутентификации брокера.
//
// Явный отказ — ACCESS_REFUSED при handshake. Вероятный отказ —
// брокер молча рвёт соединение во время handshake вместо ответа,
// что снаружи выглядит как EOF. Оба случая лечатся ротацией
// credentials, поэтому различать их дальше не нужно.
func isAuthenticationError(err error) bool {
	if errors.Is(err, ErrAuthentication) || errors.Is(err, amqp.ErrCredentials) {
		return true
	}
	var aerr *amqp.Error
	if errors.As(err, &aerr) && aerr.Code == amqp.AccessRefused {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
