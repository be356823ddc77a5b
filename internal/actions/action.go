package actions

import (
	"context"

	"github.com/shaiso/dozor/internal/events"
)

// Action — обработчик одного типа событий.
//
// Stateless между вызовами: всё состояние — инжектированные при сборке
// коллабораторы (клиент Cloud, runner движка, логгер). Побочные эффекты —
// сетевые вызовы к Cloud и проверяемым источникам данных.
type Action interface {
	// Run выполняет работу и возвращает результат либо ошибку.
	// Ошибка с кодом таксономии (errs.Structured) уходит в Cloud
	// как есть; любая другая будет завёрнута исполнителем
	// в generic-unhandled-error.
	Run(ctx context.Context, ev events.Event, correlationID string) (*Result, error)
}

// Factory создаёт Action. Реестр хранит фабрики, а не экземпляры:
// Action живёт ровно одно выполнение.
type Factory func() Action

// Result — результат успешного выполнения.
type Result struct {
	// ID — correlation id выполненной работы.
	ID string

	// Type — тип обработанного события, эхом.
	Type events.EventType

	// CreatedResources — ресурсы, созданные в Cloud по ходу работы,
	// в порядке создания.
	CreatedResources []events.CreatedResource
}

// NewResult создаёт Result. nil-ресурсы нормализуются в пустой список.
func NewResult(correlationID string, eventType events.EventType, resources []events.CreatedResource) *Result {
	if resources == nil {
		resources = []events.CreatedResource{}
	}
	return &Result{
		ID:               correlationID,
		Type:             eventType,
		CreatedResources: resources,
	}
}
