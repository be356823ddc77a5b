package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChat отдаёт заготовленные ответы модели по порядку вызовов.
type fakeChat struct {
	responses []string
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	content := ""
	if i < len(f.responses) {
		content = f.responses[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func newTestDrafter(chat *fakeChat) *Drafter {
	return &Drafter{client: chat, logger: testLogger()}
}

// --- NewDrafter Tests ---

func TestNewDrafter_RequiresAPIKey(t *testing.T) {
	_, err := NewDrafter("", testLogger())
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestNewDrafter_WithKey(t *testing.T) {
	d, err := NewDrafter("sk-test", testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d == nil {
		t.Fatal("expected drafter")
	}
}

// --- DraftSQLExpectation Tests ---

func TestDraftSQLExpectation_ValidFirstTry(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"sql": "SELECT * FROM {batch} WHERE email IS NULL", "description": "Expect all customers to have an email address"}`,
	}}
	d := newTestDrafter(chat)

	checked := []string{}
	draft, err := d.DraftSQLExpectation(context.Background(), DraftRequest{
		UserPrompt: "Every customer must have an email address.",
		Dialect:    "postgres",
		CheckCompiles: func(ctx context.Context, query string) error {
			checked = append(checked, query)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Query != "SELECT * FROM {batch} WHERE email IS NULL" {
		t.Errorf("unexpected query: %q", draft.Query)
	}
	if draft.Description != "Expect all customers to have an email address" {
		t.Errorf("unexpected description: %q", draft.Description)
	}
	if len(checked) != 1 {
		t.Errorf("expected exactly one validation, got %d", len(checked))
	}
	if len(chat.requests) != 1 {
		t.Errorf("expected one model call, got %d", len(chat.requests))
	}

	// Диалект попадает в системный prompt
	system := chat.requests[0].Messages[0]
	if system.Role != openai.ChatMessageRoleSystem || !strings.Contains(system.Content, "postgres dialect") {
		t.Errorf("system prompt should carry the dialect: %q", system.Content)
	}
}

func TestDraftSQLExpectation_RewriteOnValidationError(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"sql": "SELECT * FROM orders WHERE amount < 0", "description": "Expect no negative amounts"}`,
		`{"query": "SELECT * FROM {batch} WHERE amount < 0", "rationale": "replaced table name with placeholder"}`,
	}}
	d := newTestDrafter(chat)

	calls := 0
	draft, err := d.DraftSQLExpectation(context.Background(), DraftRequest{
		UserPrompt: "No negative amounts.",
		Dialect:    "snowflake",
		CheckCompiles: func(ctx context.Context, query string) error {
			calls++
			if calls == 1 {
				return errors.New("table orders does not exist")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Query != "SELECT * FROM {batch} WHERE amount < 0" {
		t.Errorf("expected rewritten query, got %q", draft.Query)
	}
	// Описание сохраняется из первоначальной генерации
	if draft.Description != "Expect no negative amounts" {
		t.Errorf("unexpected description: %q", draft.Description)
	}

	// Второй запрос к модели несёт упавший SQL и текст ошибки
	rewriteReq := chat.requests[1].Messages[1].Content
	if !strings.Contains(rewriteReq, "SELECT * FROM orders WHERE amount < 0") ||
		!strings.Contains(rewriteReq, "table orders does not exist") {
		t.Errorf("rewrite prompt should carry failed query and error: %q", rewriteReq)
	}
}

func TestDraftSQLExpectation_ExhaustedRewritesReturnsLastDraft(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"sql": "BROKEN 1", "description": "Expect something"}`,
		`{"query": "BROKEN 2", "rationale": "attempt"}`,
		`{"query": "BROKEN 3", "rationale": "attempt"}`,
		`{"query": "BROKEN 4", "rationale": "attempt"}`,
	}}
	d := newTestDrafter(chat)

	validations := 0
	draft, err := d.DraftSQLExpectation(context.Background(), DraftRequest{
		UserPrompt: "Impossible.",
		Dialect:    "duckdb",
		CheckCompiles: func(ctx context.Context, query string) error {
			validations++
			return errors.New("syntax error")
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Последняя перезапись отдаётся без валидации
	if draft.Query != "BROKEN 4" {
		t.Errorf("expected last rewrite, got %q", draft.Query)
	}
	if validations != maxSQLRewriteAttempts {
		t.Errorf("expected %d validations, got %d", maxSQLRewriteAttempts, validations)
	}
}

func TestDraftSQLExpectation_NoValidator(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"sql": "SELECT 1 FROM {batch}", "description": "Expect rows"}`,
	}}
	d := newTestDrafter(chat)

	draft, err := d.DraftSQLExpectation(context.Background(), DraftRequest{
		UserPrompt: "Anything.",
		Dialect:    "postgres",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Query != "SELECT 1 FROM {batch}" {
		t.Errorf("unexpected query: %q", draft.Query)
	}
}

func TestDraftSQLExpectation_MalformedModelResponse(t *testing.T) {
	chat := &fakeChat{responses: []string{`not json`}}
	d := newTestDrafter(chat)

	_, err := d.DraftSQLExpectation(context.Background(), DraftRequest{UserPrompt: "x", Dialect: "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse model response") {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Retry Tests ---

func TestComplete_RetriesTransportError(t *testing.T) {
	chat := &fakeChat{
		errs: []error{errors.New("connection reset")},
		responses: []string{
			"",
			`{"sql": "SELECT 1 FROM {batch}", "description": "Expect rows"}`,
		},
	}
	d := newTestDrafter(chat)

	draft, err := d.DraftSQLExpectation(context.Background(), DraftRequest{UserPrompt: "x", Dialect: "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Query != "SELECT 1 FROM {batch}" {
		t.Errorf("unexpected query: %q", draft.Query)
	}
	if len(chat.requests) != 2 {
		t.Errorf("expected retry after transport error, got %d calls", len(chat.requests))
	}
}

func TestComplete_NoRetryOnAPIError(t *testing.T) {
	chat := &fakeChat{
		errs: []error{&openai.APIError{HTTPStatusCode: 400, Message: "invalid model"}},
	}
	d := newTestDrafter(chat)

	_, err := d.DraftSQLExpectation(context.Background(), DraftRequest{UserPrompt: "x", Dialect: "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(chat.requests) != 1 {
		t.Errorf("API errors must not be retried, got %d calls", len(chat.requests))
	}
}
