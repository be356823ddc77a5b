package events

import (
	"github.com/google/uuid"

	"github.com/shaiso/dozor/internal/errs"
)

// JobStatus — статус job-записи в Cloud.
//
// Жизненный цикл:
//
//	started → completed (success=true)
//	        ↘ completed (success=false, с кодом ошибки)
type JobStatus string

const (
	// JobStatusStarted — агент принял событие и начал выполнение.
	JobStatusStarted JobStatus = "started"

	// JobStatusCompleted — выполнение завершено (успешно или нет).
	JobStatusCompleted JobStatus = "completed"
)

// ProcessedBy — кто физически выполнил работу.
type ProcessedBy string

const (
	// ProcessedByAgent — self-hosted агент у клиента.
	ProcessedByAgent ProcessedBy = "agent"

	// ProcessedByRunner — управляемый runner внутри Dozor Cloud.
	ProcessedByRunner ProcessedBy = "runner"
)

// ResourceType — тип ресурса, созданного в Cloud во время выполнения job.
type ResourceType string

const (
	// ResourceSuiteValidationResult — результат прогона checkpoint.
	ResourceSuiteValidationResult ResourceType = "SuiteValidationResult"

	// ResourceExpectationDraftConfig — черновик сгенерированного expectation.
	ResourceExpectationDraftConfig ResourceType = "ExpectationDraftConfig"
)

// CreatedResource — ссылка на ресурс, созданный во время выполнения job.
// Уходит в Cloud в составе JobCompleted, чтобы UI мог показать ссылки.
type CreatedResource struct {
	// ResourceID — идентификатор созданного ресурса.
	ResourceID string `json:"resource_id"`

	// Type — тип ресурса (ResourceType).
	Type ResourceType `json:"type"`
}

// JobStarted — payload PATCH-запроса, переводящего job в "started".
type JobStarted struct {
	Status JobStatus `json:"status"`
}

// NewJobStarted возвращает payload для перевода job в "started".
func NewJobStarted() JobStarted {
	return JobStarted{Status: JobStatusStarted}
}

// JobCompleted — payload PATCH-запроса, переводящего job в "completed".
type JobCompleted struct {
	Status JobStatus `json:"status"`

	// Success — завершилась ли работа успешно.
	Success bool `json:"success"`

	// CreatedResources — ресурсы, созданные во время выполнения.
	// Всегда сериализуется (пустой список, а не null).
	CreatedResources []CreatedResource `json:"created_resources"`

	// ErrorStackTrace — текст ошибки при неуспехе.
	ErrorStackTrace string `json:"error_stack_trace,omitempty"`

	// ErrorCode — стабильный код ошибки из таксономии errs.
	ErrorCode errs.Code `json:"error_code,omitempty"`

	// ErrorParams — параметры ошибки уровня экземпляра (status code, тело).
	ErrorParams map[string]string `json:"error_params,omitempty"`

	// ProcessedBy — кто выполнил работу: агент или runner.
	ProcessedBy ProcessedBy `json:"processed_by,omitempty"`
}

// NewJobCompletedSuccess возвращает payload успешного завершения.
func NewJobCompletedSuccess(resources []CreatedResource, processedBy ProcessedBy) JobCompleted {
	if resources == nil {
		resources = []CreatedResource{}
	}
	return JobCompleted{
		Status:           JobStatusCompleted,
		Success:          true,
		CreatedResources: resources,
		ProcessedBy:      processedBy,
	}
}

// BuildFailedStatus строит payload неуспешного завершения из ошибки.
//
// Структурированная ошибка (errs.Structured) отдаёт свой код и параметры
// как есть; любая другая ошибка уходит с кодом generic-unhandled-error.
// Текст ошибки попадает в ErrorStackTrace без изменений.
func BuildFailedStatus(err error, processedBy ProcessedBy) JobCompleted {
	structured := errs.From(err)
	return JobCompleted{
		Status:           JobStatusCompleted,
		Success:          false,
		CreatedResources: []CreatedResource{},
		ErrorStackTrace:  structured.Error(),
		ErrorCode:        structured.ErrorCode(),
		ErrorParams:      structured.Params(),
		ProcessedBy:      processedBy,
	}
}

// ScheduledJobRecord — payload POST-запроса, создающего job-запись
// для события, порождённого расписанием.
//
// Для обычных событий запись создаёт Cloud; для scheduled-событий
// Cloud её не создаёт, и агент обязан сделать это сам до выполнения.
type ScheduledJobRecord struct {
	Type           EventType `json:"type"`
	CorrelationID  string    `json:"correlation_id"`
	ScheduleID     uuid.UUID `json:"schedule_id"`
	CheckpointID   uuid.UUID `json:"checkpoint_id"`
	CheckpointName string    `json:"checkpoint_name,omitempty"`

	DatasourceNamesToAssetNames map[string][]string `json:"datasource_names_to_asset_names"`
	SplitterOptions             map[string]any      `json:"splitter_options"`
}

// NewScheduledJobRecord собирает job-запись из scheduled-события.
// Вызывать можно только для событий, у которых IsScheduled() == true.
func NewScheduledJobRecord(ev Event, correlationID string) ScheduledJobRecord {
	rec := ScheduledJobRecord{
		Type:                        ev.Type,
		CorrelationID:               correlationID,
		CheckpointName:              ev.CheckpointName,
		DatasourceNamesToAssetNames: ev.DatasourceNamesToAssetNames,
		SplitterOptions:             ev.SplitterOptions,
	}
	if ev.ScheduleID != nil {
		rec.ScheduleID = *ev.ScheduleID
	}
	if ev.CheckpointID != nil {
		rec.CheckpointID = *ev.CheckpointID
	}
	if rec.DatasourceNamesToAssetNames == nil {
		rec.DatasourceNamesToAssetNames = map[string][]string{}
	}
	if rec.SplitterOptions == nil {
		rec.SplitterOptions = map[string]any{}
	}
	return rec
}
