package agent

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/shaiso/dozor/internal/cloud"
)

// defaultPort — порт HTTP-сервера для healthz и metrics.
const defaultPort = "8082"

// Config — конфигурация агента из переменных окружения.
type Config struct {
	// BaseURL — адрес Dozor Cloud.
	BaseURL string

	// OrganizationID — организация, которую обслуживает агент.
	OrganizationID uuid.UUID

	// AccessToken — bearer-токен организации.
	AccessToken string

	// OpenAIAPIKey — ключ OpenAI. Пустое значение отключает
	// AI-генерацию expectations, остальные действия работают.
	OpenAIAPIKey string

	// Port — порт для /healthz и /metrics.
	Port string
}

// LoadConfig читает конфигурацию агента из окружения.
//
// Обязательны DOZOR_CLOUD_ORGANIZATION_ID и DOZOR_CLOUD_ACCESS_TOKEN;
// остальные переменные имеют значения по умолчанию.
func LoadConfig() (*Config, error) {
	rawOrgID := os.Getenv("DOZOR_CLOUD_ORGANIZATION_ID")
	if rawOrgID == "" {
		return nil, ErrMissingOrganizationID
	}
	orgID, err := uuid.Parse(rawOrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrganizationID, rawOrgID)
	}

	token := os.Getenv("DOZOR_CLOUD_ACCESS_TOKEN")
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	baseURL := os.Getenv("DOZOR_CLOUD_BASE_URL")
	if baseURL == "" {
		baseURL = cloud.DefaultBaseURL
	}

	port := os.Getenv("AGENT_PORT")
	if port == "" {
		port = defaultPort
	}

	return &Config{
		BaseURL:        baseURL,
		OrganizationID: orgID,
		AccessToken:    token,
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		Port:           port,
	}, nil
}
