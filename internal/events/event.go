package events

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType — тип события, прилетающего из очереди организации.
//
// Набор закрыт: событие с любым другим значением type (или событие,
// которое не удалось распарсить) превращается в TypeUnknown и дальше
// обрабатывается как «неподдерживаемая работа».
type EventType string

const (
	// TypeRunCheckpoint — запуск checkpoint по требованию (из UI или API).
	TypeRunCheckpoint EventType = "run_checkpoint_request"

	// TypeRunScheduledCheckpoint — запуск checkpoint по расписанию.
	// Для таких событий job-запись в Cloud создаёт сам агент.
	TypeRunScheduledCheckpoint EventType = "run_scheduled_checkpoint.received"

	// TypeRunWindowCheckpoint — запуск checkpoint с оконными (forecast)
	// параметрами. Приходит по требованию, как обычный run_checkpoint.
	TypeRunWindowCheckpoint EventType = "run_window_checkpoint.received"

	// TypeDraftDatasourceConfig — проверка черновика конфигурации
	// datasource: агент забирает config из Cloud и пробует подключиться.
	TypeDraftDatasourceConfig EventType = "test_datasource_config"

	// TypeListTableNames — запрос списка таблиц SQL-источника.
	TypeListTableNames EventType = "list_table_names_request.received"

	// TypeGenerateSQLExpectation — генерация SQL-expectation через LLM
	// по пользовательскому prompt'у.
	TypeGenerateSQLExpectation EventType = "generate_sql_expectation_request.received"

	// TypeUnknown — событие неизвестного типа или событие, которое
	// не удалось разобрать. Агент сообщает о нём как о неуспешной
	// работе с просьбой обновиться.
	TypeUnknown EventType = "unknown_event"
)

// Event — событие из очереди организации.
//
// Одна структура на все типы: конкретный набор значимых полей
// определяется полем Type. Поля, не относящиеся к типу события,
// остаются нулевыми.
type Event struct {
	// Type — дискриминатор события.
	Type EventType `json:"type"`

	// OrganizationID — организация, которой принадлежит событие.
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`

	// WorkspaceID — workspace внутри организации.
	// Заполняется для generate_sql_expectation событий.
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`

	// CheckpointID — checkpoint, который нужно выполнить.
	CheckpointID *uuid.UUID `json:"checkpoint_id,omitempty"`

	// CheckpointName — человекочитаемое имя checkpoint (для логов).
	CheckpointName string `json:"checkpoint_name,omitempty"`

	// ScheduleID — расписание, породившее событие.
	// Обязателен для scheduled и window checkpoint'ов.
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`

	// ConfigID — черновик конфигурации datasource для проверки.
	ConfigID *uuid.UUID `json:"config_id,omitempty"`

	// DatasourceName — имя datasource для запроса списка таблиц.
	DatasourceName string `json:"datasource_name,omitempty"`

	// ExpectationPromptID — prompt, по которому генерируется expectation.
	ExpectationPromptID *uuid.UUID `json:"expectation_prompt_id,omitempty"`

	// DatasourceNamesToAssetNames — какие assets каких datasource
	// затрагивает checkpoint. Ключ — имя datasource.
	DatasourceNamesToAssetNames map[string][]string `json:"datasource_names_to_asset_names,omitempty"`

	// SplitterOptions — параметры разбиения batch'а (даты, ключи партиций).
	SplitterOptions map[string]any `json:"splitter_options,omitempty"`
}

// Decode разбирает сырое тело сообщения в Event.
//
// Никогда не возвращает ошибку: мусор на входе, неизвестный type или
// отсутствие обязательных для типа полей дают событие TypeUnknown.
// Решение о дальнейшей судьбе такого события принимает исполнитель.
func Decode(raw []byte) Event {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{Type: TypeUnknown}
	}
	if !ev.valid() {
		return Event{Type: TypeUnknown}
	}
	return ev
}

// valid проверяет, что для заявленного типа заполнены обязательные поля.
func (e Event) valid() bool {
	switch e.Type {
	case TypeRunCheckpoint, TypeRunWindowCheckpoint:
		return e.CheckpointID != nil
	case TypeRunScheduledCheckpoint:
		return e.CheckpointID != nil && e.ScheduleID != nil
	case TypeDraftDatasourceConfig:
		return e.ConfigID != nil
	case TypeListTableNames:
		return e.DatasourceName != ""
	case TypeGenerateSQLExpectation:
		return e.OrganizationID != nil && e.WorkspaceID != nil && e.ExpectationPromptID != nil
	case TypeUnknown:
		return true
	default:
		return false
	}
}

// IsScheduled возвращает true, если событие порождено расписанием
// и job-запись для него должен создать агент.
func (e Event) IsScheduled() bool {
	return e.Type == TypeRunScheduledCheckpoint
}
