package errs

import (
	"errors"
	"fmt"
	"testing"
)

// --- Classifier Tests ---

func TestClassifyConnectionError(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Code
	}{
		{
			name: "snowflake wrong credentials",
			text: "test connection failed: *gosnowflake.SnowflakeError: 390100 (08004): " +
				"Incorrect username or password was specified.",
			want: CodeWrongUsernamePassword,
		},
		{
			name: "wrong credentials text without driver class",
			// Сообщение без имени класса драйвера — недостаточно специфично
			text: "Incorrect username or password was specified.",
			want: CodeGenericUnhandled,
		},
		{
			name: "driver class without credentials text",
			text: "*gosnowflake.SnowflakeError: 390114 (08001): Authentication token expired.",
			want: CodeGenericUnhandled,
		},
		{
			name: "unrelated failure",
			text: "dial tcp 10.0.0.1:5432: connect: connection refused",
			want: CodeGenericUnhandled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyConnectionError(errors.New(tt.text))
			if got.ErrorCode() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.ErrorCode())
			}
			// Исходный текст сохраняется для диагностики
			if got.Error() != tt.text {
				t.Errorf("message not preserved: %q", got.Error())
			}
		})
	}
}

func TestClassifyConnectionError_WrappedChain(t *testing.T) {
	inner := errors.New("390100 (08004): Incorrect username or password was specified.")
	wrapped := fmt.Errorf("test connection failed: *gosnowflake.SnowflakeError: %w", inner)

	got := ClassifyConnectionError(wrapped)

	if got.ErrorCode() != CodeWrongUsernamePassword {
		t.Errorf("expected wrong-username-or-password, got %q", got.ErrorCode())
	}
}
