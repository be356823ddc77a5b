package errs

import (
	"errors"
	"fmt"
	"testing"
)

// --- CoreError Tests ---

func TestCoreError_Error(t *testing.T) {
	err := New(CodeGenericUnhandled, "something broke")

	if err.Error() != "something broke" {
		t.Errorf("expected message, got %q", err.Error())
	}
	if err.ErrorCode() != CodeGenericUnhandled {
		t.Errorf("expected generic code, got %q", err.ErrorCode())
	}
}

func TestCoreError_Params_Empty(t *testing.T) {
	// Голая CoreError без дополнительных полей — пустая map, не nil
	err := New(CodeWrongUsernamePassword, "bad credentials")

	params := err.Params()
	if params == nil {
		t.Fatal("params should not be nil")
	}
	if len(params) != 0 {
		t.Errorf("expected empty params, got %v", params)
	}
}

// --- APIError Tests ---

func TestAPIError_Params(t *testing.T) {
	err := NewAPIError("draft config create failed", 500, "internal error")

	params := err.Params()

	// Ровно два поля — статус и тело, ничего сверх
	if len(params) != 2 {
		t.Fatalf("expected exactly 2 params, got %d: %v", len(params), params)
	}
	if params["status_code"] != "500" {
		t.Errorf("expected status_code=500, got %q", params["status_code"])
	}
	if params["body"] != "internal error" {
		t.Errorf("expected body, got %q", params["body"])
	}
}

func TestAPIError_CodeAndMessage(t *testing.T) {
	err := NewAPIError("boom", 404, "not found")

	if err.ErrorCode() != CodeCloudAPI {
		t.Errorf("expected cloud-api-error, got %q", err.ErrorCode())
	}
	if err.Error() != "boom" {
		t.Errorf("expected message, got %q", err.Error())
	}
}

// --- From Tests ---

func TestFrom_StructuredPropagatesUnchanged(t *testing.T) {
	orig := New(CodeCheckpointNotFound, "checkpoint missing")

	got := From(orig)

	if got != Structured(orig) {
		t.Error("structured error should propagate as-is")
	}
	if got.ErrorCode() != CodeCheckpointNotFound {
		t.Errorf("code changed: %q", got.ErrorCode())
	}
}

func TestFrom_WrappedStructuredFound(t *testing.T) {
	// Структурированная ошибка внутри цепочки %w тоже извлекается
	inner := NewAPIError("api refused", 403, "forbidden")
	wrapped := fmt.Errorf("run action: %w", inner)

	got := From(wrapped)

	if got.ErrorCode() != CodeCloudAPI {
		t.Errorf("expected cloud-api-error, got %q", got.ErrorCode())
	}
	if len(got.Params()) != 2 {
		t.Errorf("params lost in unwrap: %v", got.Params())
	}
}

func TestFrom_PlainErrorWrappedAsGeneric(t *testing.T) {
	plain := errors.New("connection reset by peer")

	got := From(plain)

	if got.ErrorCode() != CodeGenericUnhandled {
		t.Errorf("expected generic-unhandled-error, got %q", got.ErrorCode())
	}
	// Исходный текст сохраняется
	if got.Error() != "connection reset by peer" {
		t.Errorf("message not preserved: %q", got.Error())
	}
	if len(got.Params()) != 0 {
		t.Errorf("generic wrap should not invent params: %v", got.Params())
	}
}
