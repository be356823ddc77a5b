package cloud

import "errors"

// Ошибки bootstrap-запроса agent-sessions. Тексты показываются
// пользователю при старте агента как есть.
var (
	// ErrUnauthenticated — Cloud отверг реквизиты организации.
	ErrUnauthenticated = errors.New("Unable to authenticate to Dozor Cloud. Please check your credentials.")

	// ErrMalformedResponse — ответ Cloud не содержит ожидаемых полей.
	ErrMalformedResponse = errors.New("Malformed response received from Dozor Cloud")
)
