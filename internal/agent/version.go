package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// releasesURL — последний релиз агента на GitHub.
	releasesURL = "https://api.github.com/repos/shaiso/dozor/releases/latest"

	// checkSchedule — расписание проверки: раз в сутки, в полночь.
	checkSchedule = "0 0 * * *"

	versionCheckTimeout = 15 * time.Second
)

// VersionChecker периодически сравнивает версию работающего агента
// с последним опубликованным релизом.
//
// Проверка только информирует: устаревшая версия даёт warning в логах,
// сбой самой проверки никогда не мешает работе агента.
type VersionChecker struct {
	current    string
	url        string
	schedule   cron.Schedule
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVersionChecker создаёт VersionChecker для версии current.
func NewVersionChecker(current string, logger *slog.Logger) (*VersionChecker, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(checkSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse version check schedule: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionChecker{
		current:    current,
		url:        releasesURL,
		schedule:   schedule,
		httpClient: &http.Client{Timeout: versionCheckTimeout},
		logger:     logger,
	}, nil
}

// Run проверяет версию при старте и дальше по расписанию,
// до отмены контекста.
func (c *VersionChecker) Run(ctx context.Context) {
	c.check(ctx)

	for {
		next := c.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			c.check(ctx)
		}
	}
}

// check выполняет одну проверку. Любой сбой — debug-лог и выход:
// недоступность GitHub не повод шуметь в логах агента.
func (c *VersionChecker) check(ctx context.Context) {
	latest, err := c.latestTag(ctx)
	if err != nil {
		c.logger.Debug("version check failed", "error", err)
		return
	}

	stale, err := outdated(c.current, latest)
	if err != nil {
		// Локальные сборки ("dev") не имеют номера версии
		c.logger.Debug("version check skipped", "current", c.current, "error", err)
		return
	}
	if stale {
		c.logger.Warn("a newer version of the agent is available",
			"current", c.current,
			"latest", latest,
		)
	}
}

// latestTag возвращает tag последнего релиза.
func (c *VersionChecker) latestTag(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&release); err != nil {
		return "", err
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release has no tag name")
	}
	return release.TagName, nil
}

// outdated сравнивает версии по major.minor.patch.
func outdated(current, latest string) (bool, error) {
	cur, err := parseVersion(current)
	if err != nil {
		return false, err
	}
	last, err := parseVersion(latest)
	if err != nil {
		return false, err
	}

	for i := range cur {
		if cur[i] != last[i] {
			return cur[i] < last[i], nil
		}
	}
	return false, nil
}

// parseVersion разбирает "v1.2.3" или "1.2.3" в [major, minor, patch].
func parseVersion(version string) ([3]int, error) {
	var out [3]int

	trimmed := strings.TrimPrefix(version, "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("not a semantic version: %q", version)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return out, fmt.Errorf("not a semantic version: %q", version)
		}
		out[i] = n
	}
	return out, nil
}
