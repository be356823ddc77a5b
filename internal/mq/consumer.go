package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dozor/internal/telemetry"
)

// Лимиты защиты от зацикленных redelivery.
const (
	// maxRedeliveries — сколько раз одно событие может вернуться
	// в очередь, прежде чем будет выведено из оборота.
	maxRedeliveries = 10

	// maxTrackedCorrelations — предел размера счётчика доставок.
	// При превышении счётчик сбрасывается целиком: потеря истории
	// дешевле неограниченного роста памяти.
	maxTrackedCorrelations = 100_000
)

// Handler — обработчик одного события.
//
// nil означает, что для события получен терминальный Outcome и он
// доложен в Cloud: сообщение подтверждается (ack). Ошибка возвращает
// сообщение в очередь (nack + requeue) для повторной доставки.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное событие.
type Delivery struct {
	// CorrelationID связывает событие, job-запись в Cloud и логи.
	CorrelationID string

	// Body — сырое тело события.
	Body []byte

	// Redelivered — брокер доставляет сообщение повторно.
	Redelivered bool
}

// Consumer последовательно потребляет события из очереди организации.
//
// Prefetch 1 и одно событие в обработке: контракт «ровно один
// терминальный Outcome на событие» выполняется без синхронизации.
// Горизонтальное масштабирование — запуск дополнительных процессов
// агента, а не параллелизм внутри одного.
type Consumer struct {
	session *Session
	handler Handler
	logger  *slog.Logger

	// redeliveries — счётчик доставок по correlation id. Доступ только
	// из последовательного цикла потребления, мьютекс не нужен.
	redeliveries map[string]int
}

// NewConsumer создаёт Consumer для сессии.
func NewConsumer(session *Session, logger *slog.Logger, handler Handler) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		session:      session,
		handler:      handler,
		logger:       logger,
		redeliveries: make(map[string]int),
	}
}

// Consume читает события до отмены контекста или обрыва соединения.
//
// Возвращает nil при отмене контекста (graceful shutdown: текущее
// событие дорабатывается до терминального Outcome) и ErrDeliveriesClosed,
// когда брокер закрыл канал доставки.
func (c *Consumer) Consume(ctx context.Context) error {
	ch := c.session.ch

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.session.queue, // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную, после терминального Outcome)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consumer started", "queue", c.session.queue)

	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
//
// Ack уходит только после того, как handler вернул nil, то есть
// терминальный Outcome определён и доложен: at-least-once контракт
// с брокером. Повторная доставка после падения агента ожидаема.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	correlationID := raw.CorrelationId

	if c.rejectCorrelationID(correlationID) {
		c.logger.Error("event redelivered too many times, removing from circulation",
			"correlation_id", correlationID,
			"limit", maxRedeliveries,
		)
		telemetry.RedeliveriesDropped.Inc()
		if err := raw.Nack(false, false); err != nil {
			c.logger.Warn("failed to nack event", "correlation_id", correlationID, "error", err)
		}
		return
	}

	delivery := &Delivery{
		CorrelationID: correlationID,
		Body:          raw.Body,
		Redelivered:   raw.Redelivered,
	}

	c.logger.Debug("received event",
		"queue", c.session.queue,
		"correlation_id", correlationID,
		"redelivered", raw.Redelivered,
	)

	if err := c.handler(ctx, delivery); err != nil {
		c.logger.Error("event processing failed, requeueing",
			"correlation_id", correlationID,
			"error", err,
		)
		if nackErr := raw.Nack(false, true); nackErr != nil {
			c.logger.Warn("failed to nack event", "correlation_id", correlationID, "error", nackErr)
		}
		return
	}

	if err := raw.Ack(false); err != nil {
		c.logger.Warn("failed to ack event", "correlation_id", correlationID, "error", err)
	}
}

// rejectCorrelationID учитывает доставку и решает, не пора ли вывести
// событие из оборота. Это защита от зацикленного сообщения, а не
// дедупликация: ровно один Outcome гарантируется на доставку, не на
// correlation id.
func (c *Consumer) rejectCorrelationID(correlationID string) bool {
	if len(c.redeliveries) > maxTrackedCorrelations {
		c.redeliveries = make(map[string]int)
	}
	c.redeliveries[correlationID]++
	return c.redeliveries[correlationID] > maxRedeliveries
}
