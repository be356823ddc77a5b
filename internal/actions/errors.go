package actions

import "errors"

// Ошибки реестра.
var (
	// ErrUnsupportedEvent — для типа события нет Action в этой сборке
	// агента. Не сбой: более новый Cloud может публиковать события,
	// которых старый агент ещё не знает. Такая работа пропускается
	// с предупреждением, цикл обработки продолжает жить.
	ErrUnsupportedEvent = errors.New("event type is not supported by this agent version")

	// ErrUnsupportedVersion — для мажорной версии движка нет
	// реализации. Разрыв совместимости деплоя, а не сбой одной
	// работы: эскалируется как фатальный при старте.
	ErrUnsupportedVersion = errors.New("no implementation for engine major version")

	// ErrDuplicateRegistration — пара (версия, тип события) уже занята.
	ErrDuplicateRegistration = errors.New("action already registered for this version and event type")
)
