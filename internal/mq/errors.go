package mq

import "errors"

// Ошибки установки соединения.
var (
	// ErrAuthentication — брокер отверг credentials. Ожидаемая гонка
	// после ротации паролей: лечится запросом свежей сессии и retry.
	ErrAuthentication = errors.New("broker authentication failed")

	// ErrChannelAccessRefused — брокер запретил операцию на канале.
	// Не ротация credentials, а ошибка прав доступа: не ретраится.
	ErrChannelAccessRefused = errors.New("broker refused channel access")

	// ErrQueueNotFound — очередь организации не существует на брокере.
	// Очереди создаёт Dozor Cloud; отсутствие означает ошибку
	// провижининга, retry бесполезен.
	ErrQueueNotFound = errors.New("organization queue does not exist on the broker")

	// ErrRetryExhausted — все попытки установить соединение исчерпаны.
	ErrRetryExhausted = errors.New("broker connection attempts exhausted")
)

// Ошибки потребления.
var (
	// ErrDeliveriesClosed — брокер закрыл канал доставки сообщений.
	ErrDeliveriesClosed = errors.New("deliveries channel closed by broker")
)
