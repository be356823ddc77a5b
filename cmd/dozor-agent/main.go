// Dozor Agent — обрабатывает события очереди организации.
//
// Агент:
//   - Получает реквизиты брокера у Dozor Cloud и подключается к
//     очереди организации (с ротацией credentials при отказе)
//   - Последовательно выполняет события: прогоны checkpoint'ов,
//     проверки конфигураций datasource, генерацию expectations
//   - Докладывает терминальный статус каждой работы в Cloud
//
// Масштабирование горизонтальное: несколько процессов агента
// потребляют из одной очереди.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/dozor/internal/actions"
	"github.com/shaiso/dozor/internal/agent"
	"github.com/shaiso/dozor/internal/ai"
	"github.com/shaiso/dozor/internal/cloud"
	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var envFile string
	var logLevel string
	var logFormat string

	rootCmd := &cobra.Command{
		Use:           "dozor-agent",
		Short:         "Dozor Agent — data validation agent for Dozor Cloud",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file %q: %w", envFile, err)
				}
			}
			// Флаги имеют приоритет над окружением
			if logLevel != "" {
				os.Setenv("LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				os.Setenv("LOG_FORMAT", logFormat)
			}
			return run()
		},
	}

	rootCmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: json or text")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting dozor-agent", "version", version, "engine_version", engine.Version)

	cfg, err := agent.LoadConfig()
	if err != nil {
		return err
	}

	client := cloud.NewClient(cloud.Config{
		BaseURL:        cfg.BaseURL,
		OrganizationID: cfg.OrganizationID,
		AccessToken:    cfg.AccessToken,
		AgentVersion:   version,
		EngineVersion:  engine.Version,
	})

	// AI-генерация expectations включается только при наличии ключа
	var drafter actions.SQLDrafter
	if cfg.OpenAIAPIKey != "" {
		d, err := ai.NewDrafter(cfg.OpenAIAPIKey, logger)
		if err != nil {
			return err
		}
		drafter = d
	} else {
		logger.Info("OPENAI_API_KEY is not set, AI SQL generation is disabled")
	}

	registry, err := actions.DefaultRegistry(actions.Deps{
		Cloud:   client,
		Drafter: drafter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	// Версия встроенного движка должна поддерживаться реестром:
	// несоответствие фатально на старте, а не при первом событии
	if _, err := registry.ResolveRunner(engine.Version); err != nil {
		return fmt.Errorf("engine version %s: %w", engine.Version, err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Проверка свежести версии: при старте и раз в сутки
	checker, err := agent.NewVersionChecker(version, logger)
	if err != nil {
		return err
	}
	go checker.Run(ctx)

	a := agent.New(agent.Options{
		Client:   client,
		Registry: registry,
		Logger:   logger,
	})

	if err := a.Run(ctx); err != nil {
		logger.Error("agent terminated", "error", err)
		return err
	}

	logger.Info("dozor-agent stopped")
	return nil
}
