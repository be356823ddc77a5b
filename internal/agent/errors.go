package agent

import "errors"

// Ошибки конфигурации и жизненного цикла агента.
var (
	// ErrMissingAccessToken — не задан DOZOR_CLOUD_ACCESS_TOKEN.
	ErrMissingAccessToken = errors.New("environment variable DOZOR_CLOUD_ACCESS_TOKEN is not set")

	// ErrMissingOrganizationID — не задан DOZOR_CLOUD_ORGANIZATION_ID.
	ErrMissingOrganizationID = errors.New("environment variable DOZOR_CLOUD_ORGANIZATION_ID is not set")

	// ErrInvalidOrganizationID — DOZOR_CLOUD_ORGANIZATION_ID не является UUID.
	ErrInvalidOrganizationID = errors.New("environment variable DOZOR_CLOUD_ORGANIZATION_ID is not a valid UUID")

	// ErrConnectionLost — соединение с брокером потеряно и не восстановлено
	// за отведённое число попыток.
	ErrConnectionLost = errors.New("connection to broker lost")
)
