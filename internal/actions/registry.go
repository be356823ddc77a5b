package actions

import (
	"fmt"
	"sync"

	"github.com/shaiso/dozor/internal/engine"
	"github.com/shaiso/dozor/internal/events"
)

// Registry — реестр Actions и runner'ов по мажорной версии движка.
//
// Ключи уникальны; регистрация происходит один раз при старте процесса,
// после этого реестр только читается. Версии при регистрации и поиске
// редуцируются до мажорной компоненты: "0.18.3" → "0".
type Registry struct {
	mu      sync.RWMutex
	actions map[string]map[events.EventType]Factory
	runners map[string]engine.Runner
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]map[events.EventType]Factory),
		runners: make(map[string]engine.Runner),
	}
}

// RegisterAction регистрирует фабрику для пары (версия, тип события).
// Повторная регистрация пары — ошибка.
func (r *Registry) RegisterAction(version string, eventType events.EventType, factory Factory) error {
	major, err := engine.MajorVersion(version)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.actions[major]
	if !ok {
		byType = make(map[events.EventType]Factory)
		r.actions[major] = byType
	}
	if _, exists := byType[eventType]; exists {
		return fmt.Errorf("%w: version %s, event %s", ErrDuplicateRegistration, major, eventType)
	}
	byType[eventType] = factory
	return nil
}

// RegisterRunner регистрирует runner для мажорной версии движка.
func (r *Registry) RegisterRunner(version string, runner engine.Runner) error {
	major, err := engine.MajorVersion(version)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[major]; exists {
		return fmt.Errorf("%w: version %s", ErrDuplicateRegistration, major)
	}
	r.runners[major] = runner
	return nil
}

// ResolveAction возвращает фабрику для пары (версия, тип события).
//
// Отсутствие версии целиком — ErrUnsupportedVersion (разрыв деплоя).
// Отсутствие типа события в известной версии — ErrUnsupportedEvent
// (forward compatibility: работа пропускается, не падает).
func (r *Registry) ResolveAction(version string, eventType events.EventType) (Factory, error) {
	major, err := engine.MajorVersion(version)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byType, ok := r.actions[major]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedVersion, major)
	}
	factory, ok := byType[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
	return factory, nil
}

// ResolveRunner возвращает runner для мажорной версии движка.
// Отсутствие — ErrUnsupportedVersion: фатально, не ретраится.
func (r *Registry) ResolveRunner(version string) (engine.Runner, error) {
	major, err := engine.MajorVersion(version)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[major]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedVersion, major)
	}
	return runner, nil
}
