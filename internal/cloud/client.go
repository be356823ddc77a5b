package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/dozor/internal/errs"
	"github.com/shaiso/dozor/internal/events"
)

const (
	// DefaultBaseURL — адрес Dozor Cloud по умолчанию.
	DefaultBaseURL = "https://api.dozor.cloud"

	// userAgentPrefix — префикс заголовка User-Agent.
	userAgentPrefix = "dozor-agent"

	defaultTimeout  = 30 * time.Second
	maxResponseBody = 10 * 1024 * 1024 // 10 MB
)

// Имена заголовков, которые агент проставляет на каждый запрос.
const (
	HeaderUserAgent     = "User-Agent"
	HeaderAgentJobID    = "Agent-Job-Id"
	HeaderEngineVersion = "Dozor-Engine-Version"
)

// --- Response/request types ---

// AgentSession — реквизиты брокера, выданные Cloud для этой организации.
type AgentSession struct {
	// Queue — имя очереди, из которой агент должен читать события.
	Queue string `json:"queue"`

	// ConnectionString — amqp-адрес брокера с временными credentials.
	// Пароль ротируется на стороне Cloud, поэтому строка живёт недолго.
	ConnectionString string `json:"connection_string"`
}

// Datasource — конфигурация datasource, сохранённая в Cloud.
type Datasource struct {
	ID     uuid.UUID      `json:"id"`
	Config map[string]any `json:"datasource_config"`
}

// CheckpointValidation — одна проверка внутри checkpoint.
type CheckpointValidation struct {
	DatasourceName string `json:"datasource_name"`
	AssetName      string `json:"asset_name"`

	// UnexpectedRowsQuery — SQL с плейсхолдером {batch}; строки,
	// которые он вернёт, считаются нарушением.
	UnexpectedRowsQuery string `json:"unexpected_rows_query,omitempty"`
}

// Checkpoint — определение checkpoint из Cloud.
type Checkpoint struct {
	ID          uuid.UUID              `json:"id"`
	Name        string                 `json:"name"`
	Validations []CheckpointValidation `json:"validations"`
}

// ValidationResult — результат прогона checkpoint, отправляемый в Cloud.
type ValidationResult struct {
	CheckpointID   uuid.UUID        `json:"checkpoint_id"`
	CheckpointName string           `json:"checkpoint_name,omitempty"`
	Success        bool             `json:"success"`
	Statistics     map[string]any   `json:"statistics,omitempty"`
	Results        []map[string]any `json:"results,omitempty"`
	RanAt          time.Time        `json:"ran_at"`
}

// PromptMetadata — метаданные пользовательского prompt'а для генерации
// SQL-expectation.
type PromptMetadata struct {
	ID                  uuid.UUID `json:"id"`
	UserPrompt          string    `json:"user_prompt"`
	DataSourceName      string    `json:"data_source_name"`
	AssetName           string    `json:"asset_name"`
	BatchDefinitionName string    `json:"batch_definition_name"`
}

// ExpectationDraftConfig — черновик expectation для сохранения в Cloud.
type ExpectationDraftConfig struct {
	AssetID          string         `json:"asset_id"`
	DraftExpectation map[string]any `json:"draft_expectation"`
	OrganizationID   string         `json:"organization_id"`
}

// --- API envelopes ---

// payload оборачивает тело запроса в {"data": ...}, как того ждёт Cloud.
type payload struct {
	Data any `json:"data"`
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

// --- Client ---

// Config — параметры клиента Dozor Cloud.
type Config struct {
	// BaseURL — адрес Cloud. По умолчанию DefaultBaseURL.
	BaseURL string

	// OrganizationID — организация, от имени которой работает агент.
	OrganizationID uuid.UUID

	// AccessToken — bearer-токен организации.
	AccessToken string

	// AgentVersion — версия агента для User-Agent заголовка.
	AgentVersion string

	// EngineVersion — версия встроенного движка валидации.
	EngineVersion string

	// HTTPClient — переопределение транспорта (для тестов).
	HTTPClient *http.Client
}

// Client — HTTP-клиент для Dozor Cloud API.
type Client struct {
	baseURL       string
	orgID         uuid.UUID
	token         string
	agentVersion  string
	engineVersion string
	jobID         string
	httpClient    *http.Client
}

// NewClient создаёт клиент для Dozor Cloud.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		orgID:         cfg.OrganizationID,
		token:         cfg.AccessToken,
		agentVersion:  cfg.AgentVersion,
		engineVersion: cfg.EngineVersion,
		httpClient:    cfg.HTTPClient,
	}
}

// ForJob возвращает копию клиента, которая проставляет Agent-Job-Id
// на каждый запрос. Используется на время обработки одного события.
func (c *Client) ForJob(jobID string) *Client {
	cp := *c
	cp.jobID = jobID
	return &cp
}

// OrganizationID возвращает организацию, с которой работает клиент.
func (c *Client) OrganizationID() uuid.UUID {
	return c.orgID
}

// --- Agent sessions ---

// CreateAgentSession запрашивает у Cloud реквизиты брокера.
//
// Вызывается при старте и после каждой ошибки аутентификации брокера:
// Cloud при этом выдаёт свежие credentials для очереди организации.
func (c *Client) CreateAgentSession(ctx context.Context) (*AgentSession, error) {
	resp, err := c.do(ctx, http.MethodPost, c.orgPath("/agent-sessions"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrUnauthenticated
	}

	var session AgentSession
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&session); err != nil {
		return nil, ErrMalformedResponse
	}
	if session.Queue == "" || session.ConnectionString == "" {
		return nil, ErrMalformedResponse
	}
	return &session, nil
}

// --- Agent jobs ---

// UpdateJobStatus переводит job-запись в новый статус.
// status — events.JobStarted или events.JobCompleted.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status any) error {
	resp, err := c.do(ctx, http.MethodPatch, c.orgPath("/agent-jobs/"+jobID), payload{Data: status})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("update job status %s: unexpected status %d", jobID, resp.StatusCode)
	}
	return nil
}

// CreateScheduledJob создаёт job-запись для события, порождённого
// расписанием. Для остальных событий записи создаёт сам Cloud.
func (c *Client) CreateScheduledJob(ctx context.Context, rec events.ScheduledJobRecord) error {
	resp, err := c.do(ctx, http.MethodPost, c.orgPath("/agent-jobs"), payload{Data: rec})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("create scheduled job %s: unexpected status %d", rec.CorrelationID, resp.StatusCode)
	}
	return nil
}

// --- Datasources ---

// GetDraftDatasourceConfig возвращает черновик конфигурации datasource.
func (c *Client) GetDraftDatasourceConfig(ctx context.Context, configID uuid.UUID) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, c.orgPath("/datasources/drafts/"+configID.String()), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to fetch draft config %s from Dozor Cloud: status %d", configID, resp.StatusCode)
	}

	var body struct {
		Data struct {
			Attributes struct {
				DraftConfig map[string]any `json:"draft_config"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, ErrMalformedResponse
	}
	if body.Data.Attributes.DraftConfig == nil {
		return nil, ErrMalformedResponse
	}
	return body.Data.Attributes.DraftConfig, nil
}

// UpdateDraftTableNames сохраняет список таблиц, видимых через черновик
// конфигурации. Cloud показывает его пользователю при настройке asset'ов.
func (c *Client) UpdateDraftTableNames(ctx context.Context, configID uuid.UUID, tableNames []string) error {
	body := payload{Data: map[string]any{"table_names": tableNames}}
	resp, err := c.do(ctx, http.MethodPut, c.orgPath("/draft-table-names/"+configID.String()), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unable to update table names for draft config %s: status %d", configID, resp.StatusCode)
	}
	return nil
}

// GetDatasourceByName возвращает сохранённый datasource по имени.
func (c *Client) GetDatasourceByName(ctx context.Context, name string) (*Datasource, error) {
	resp, err := c.do(ctx, http.MethodGet, c.orgPath("/datasources?name="+name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to fetch datasource %q from Dozor Cloud: status %d", name, resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID         uuid.UUID `json:"id"`
			Attributes struct {
				DatasourceConfig map[string]any `json:"datasource_config"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, ErrMalformedResponse
	}
	if len(body.Data) == 0 {
		return nil, errs.New(errs.CodeDatasourceNotFound, fmt.Sprintf("datasource %q not found", name))
	}
	return &Datasource{
		ID:     body.Data[0].ID,
		Config: body.Data[0].Attributes.DatasourceConfig,
	}, nil
}

// UpdateDatasourceTableNames обновляет список таблиц сохранённого
// datasource. Cloud отвечает 204 без тела.
func (c *Client) UpdateDatasourceTableNames(ctx context.Context, datasourceID uuid.UUID, tableNames []string) error {
	body := map[string]any{"table_names": tableNames}
	resp, err := c.do(ctx, http.MethodPatch, c.orgPath("/datasources/"+datasourceID.String()), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unable to update table names for datasource %s: status %d", datasourceID, resp.StatusCode)
	}
	return nil
}

// --- Checkpoints ---

// GetCheckpoint возвращает определение checkpoint.
func (c *Client) GetCheckpoint(ctx context.Context, checkpointID uuid.UUID) (*Checkpoint, error) {
	resp, err := c.do(ctx, http.MethodGet, c.orgPath("/checkpoints/"+checkpointID.String()), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.New(errs.CodeCheckpointNotFound, fmt.Sprintf("checkpoint %s not found", checkpointID))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to fetch checkpoint %s from Dozor Cloud: status %d", checkpointID, resp.StatusCode)
	}

	var body struct {
		Data struct {
			ID         uuid.UUID `json:"id"`
			Attributes struct {
				CheckpointConfig Checkpoint `json:"checkpoint_config"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, ErrMalformedResponse
	}
	checkpoint := body.Data.Attributes.CheckpointConfig
	checkpoint.ID = body.Data.ID
	return &checkpoint, nil
}

// GetCheckpointExpectationParameters возвращает параметры оконных
// expectations для checkpoint. Пустой набор параметров отдаётся как nil.
func (c *Client) GetCheckpointExpectationParameters(ctx context.Context, checkpointID uuid.UUID) (map[string]any, error) {
	path := c.orgPath("/checkpoints/" + checkpointID.String() + "/expectation-parameters")
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unable to retrieve expectation parameters for checkpoint %s from Dozor Cloud: status %d", checkpointID, resp.StatusCode)
	}

	var body struct {
		Data struct {
			ExpectationParameters map[string]any `json:"expectation_parameters"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, ErrMalformedResponse
	}
	if len(body.Data.ExpectationParameters) == 0 {
		return nil, nil
	}
	return body.Data.ExpectationParameters, nil
}

// CreateValidationResult сохраняет результат прогона checkpoint
// и возвращает ID созданного ресурса.
func (c *Client) CreateValidationResult(ctx context.Context, result ValidationResult) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.orgPath("/validation-results"), payload{Data: result})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusCreated {
		return "", errs.NewAPIError(
			fmt.Sprintf("could not store validation result for checkpoint %s", result.CheckpointID),
			resp.StatusCode, string(raw),
		)
	}

	var body struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Data.ID == "" {
		return "", ErrMalformedResponse
	}
	return body.Data.ID, nil
}

// --- Expectations ---

// GetPromptMetadata возвращает метаданные prompt'а для AI-генерации.
func (c *Client) GetPromptMetadata(ctx context.Context, workspaceID, promptID uuid.UUID) (*PromptMetadata, error) {
	path := c.workspacePath(workspaceID, "/expectations/prompt-metadata/"+promptID.String())
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewAPIError(
			fmt.Sprintf("failed to retrieve prompt metadata for expectation prompt %s", promptID),
			resp.StatusCode, string(raw),
		)
	}

	var meta PromptMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ErrMalformedResponse
	}
	return &meta, nil
}

// CreateExpectationDraftConfig сохраняет черновик expectation в workspace
// и возвращает ID созданного ресурса.
func (c *Client) CreateExpectationDraftConfig(ctx context.Context, workspaceID uuid.UUID, draft ExpectationDraftConfig) (string, error) {
	path := c.workspacePath(workspaceID, "/expectation-draft-configs")
	resp, err := c.do(ctx, http.MethodPost, path, payload{Data: []ExpectationDraftConfig{draft}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusCreated {
		return "", errs.NewAPIError(
			fmt.Sprintf("could not create expectation draft config for asset %s", draft.AssetID),
			resp.StatusCode, string(raw),
		)
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Data) == 0 {
		return "", ErrMalformedResponse
	}
	return body.Data[0].ID, nil
}

// --- HTTP helpers ---

func (c *Client) orgPath(suffix string) string {
	return "/organizations/" + c.orgID.String() + suffix
}

func (c *Client) workspacePath(workspaceID uuid.UUID, suffix string) string {
	return c.orgPath("/workspaces/" + workspaceID.String() + suffix)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(HeaderUserAgent, userAgentPrefix+"/"+c.agentVersion)
	if c.engineVersion != "" {
		req.Header.Set(HeaderEngineVersion, c.engineVersion)
	}
	if c.jobID != "" {
		req.Header.Set(HeaderAgentJobID, c.jobID)
	}

	return c.httpClient.Do(req)
}
