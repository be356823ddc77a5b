package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Model — модель для генерации и переписывания SQL.
const Model = "gpt-4o-2024-11-20"

const (
	requestTimeout = 60 * time.Second
	temperature    = 0.7

	// maxSQLRewriteAttempts — сколько раз модель может переписать запрос,
	// не прошедший проверку компиляции.
	maxSQLRewriteAttempts = 3
)

// ErrNoCredentials — генерация недоступна без ключа OpenAI.
var ErrNoCredentials = errors.New("OpenAI credentials are not set for one or more Agents. Please set the OPENAI_API_KEY environment variable in all Agent deployments to enable AI SQL generation.")

// chatClient — часть клиента OpenAI, которую использует Drafter.
// Сужен до одного метода ради подмены в тестах.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// DraftRequest — вход генерации одного черновика.
type DraftRequest struct {
	// UserPrompt — требование к данным словами пользователя.
	UserPrompt string

	// Dialect — SQL-диалект источника (postgres, snowflake, duckdb).
	Dialect string

	// CheckCompiles проверяет, что запрос компилируется на источнике.
	// nil отключает валидацию: черновик уходит как есть.
	CheckCompiles func(ctx context.Context, query string) error
}

// SQLDraft — сгенерированный черновик expectation.
type SQLDraft struct {
	// Query — SQL с плейсхолдером {batch}, возвращающий нарушающие строки.
	Query string

	// Description — человекочитаемое описание, начинается с "Expect".
	Description string
}

// Drafter генерирует черновики SQL-expectation.
type Drafter struct {
	client chatClient
	logger *slog.Logger
}

// NewDrafter создаёт Drafter. Пустой apiKey — ErrNoCredentials.
func NewDrafter(apiKey string, logger *slog.Logger) (*Drafter, error) {
	if apiKey == "" {
		return nil, ErrNoCredentials
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	return &Drafter{client: openai.NewClientWithConfig(cfg), logger: logger}, nil
}

// DraftSQLExpectation генерирует черновик по prompt'у и валидирует его
// на источнике. Каждую неудачную валидацию модель получает обратно
// вместе с текстом ошибки и переписывает запрос; после исчерпания
// попыток возвращается последняя версия без валидации.
func (d *Drafter) DraftSQLExpectation(ctx context.Context, req DraftRequest) (*SQLDraft, error) {
	draft, err := d.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.CheckCompiles == nil {
		return draft, nil
	}

	for attempt := 0; attempt < maxSQLRewriteAttempts; attempt++ {
		checkErr := req.CheckCompiles(ctx, draft.Query)
		if checkErr == nil {
			return draft, nil
		}
		d.logger.Warn("generated SQL failed validation, rewriting",
			"attempt", attempt+1,
			"error", checkErr,
		)
		rewritten, err := d.rewrite(ctx, req.Dialect, draft.Query, checkErr)
		if err != nil {
			return nil, err
		}
		draft.Query = rewritten
	}

	d.logger.Warn("SQL draft failed to compile after rewrites, returning last version",
		"attempts", maxSQLRewriteAttempts,
	)
	return draft, nil
}

// --- Генерация ---

var draftSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"sql": {
			Type:        jsonschema.String,
			Description: "A SQL query that returns the rows that are unexpected",
		},
		"description": {
			Type:        jsonschema.String,
			Description: "A description of the query that is less than 75 characters long starting with 'Expect'",
		},
	},
	Required:             []string{"sql", "description"},
	AdditionalProperties: false,
}

type draftResponse struct {
	SQL         string `json:"sql"`
	Description string `json:"description"`
}

func (d *Drafter) generate(ctx context.Context, req DraftRequest) (*SQLDraft, error) {
	systemPrompt := fmt.Sprintf(
		"You are a SQL coding assistant that generates SQL queries using %s dialect. "+
			"Each SQL query should return the rows that are unexpected given the user prompt. "+
			"Do not add a semicolon to the end of the query. "+
			"Do not use the table name directly - instead, use `{batch}` as a placeholder.\n\n"+
			"You are also an expert on interpreting SQL queries. Given a SQL query, "+
			"you will generate a description of the query that is less than 75 characters long. "+
			"The description should be phrased in such a way that if the query returns any rows the description is false. "+
			"The description should not include SQL syntax.",
		req.Dialect,
	)
	example := "Example:\n" +
		"User Input: Every customer must have an email address.\n" +
		"SQL: SELECT customer_id, customer_name FROM {batch} WHERE email IS NULL OR email = ''\n" +
		"Description: Expect all customers to have an email address"

	resp, err := d.complete(ctx, openai.ChatCompletionRequest{
		Model:       Model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: example},
			{Role: openai.ChatMessageRoleUser, Content: "User Input: " + req.UserPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Based on the conversation history and the user input, generate a SQL query that returns unexpected rows and provide an appropriate description."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "sql_and_description",
				Schema: &draftSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate SQL draft: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	var out draftResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return &SQLDraft{Query: out.SQL, Description: out.Description}, nil
}

// --- Переписывание ---

var rewriteSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"query": {
			Type:        jsonschema.String,
			Description: "The SQL query.",
		},
		"rationale": {
			Type:        jsonschema.String,
			Description: "The rationale for changes made to the query.",
		},
	},
	Required:             []string{"query", "rationale"},
	AdditionalProperties: false,
}

type rewriteResponse struct {
	Query     string `json:"query"`
	Rationale string `json:"rationale"`
}

func (d *Drafter) rewrite(ctx context.Context, dialect, query string, compileErr error) (string, error) {
	systemPrompt := fmt.Sprintf("You are an expert SQL developer proficient in debugging and fixing %s SQL queries.", dialect)
	userPrompt := fmt.Sprintf(
		"The following query failed to compile:\n\n%s\n\nwith the error message:\n\n%v\n\n"+
			"The token {batch} is used as placeholder for the table name. If it is not present in the query, remove the table name and replace it with `{batch}`\n\n"+
			"Rewrite the query for the %s dialect. If the query can be rewritten in multiple ways, only consider the most efficient and effective way to rewrite it.\n\n"+
			"The rewritten query must meet these requirements:\n"+
			"    - it must be logically equivalent to the original query\n"+
			"    - it must return exactly the fields as the original query\n"+
			"    - it must contain the token {batch}",
		query, compileErr, dialect,
	)

	resp, err := d.complete(ctx, openai.ChatCompletionRequest{
		Model:       Model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "rewritten_query",
				Schema: &rewriteSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("rewrite SQL draft: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	var out rewriteResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return "", fmt.Errorf("parse model response: %w", err)
	}
	return out.Query, nil
}

// complete вызывает модель с одним повтором на транспортной ошибке.
// Ответ API с ошибкой не повторяется: запрос отвергнут, а не потерян.
func (d *Drafter) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err == nil {
		return resp, nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return resp, err
	}
	return d.client.CreateChatCompletion(ctx, req)
}
