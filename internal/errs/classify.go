package errs

import "strings"

// Сигнатура отказа аутентификации Snowflake: в тексте ошибки драйвера
// встречаются и сообщение сервера, и имя класса ошибки драйвера.
const (
	sigWrongCredentials = "Incorrect username or password was specified"
	sigSnowflakeDriver  = "gosnowflake.SnowflakeError"
)

// ClassifyConnectionError присваивает тексту ошибки подключения
// стабильный код из таксономии.
//
// Совместимостный мост для движка, который отдаёт ошибки подключения
// неструктурированным текстом: проверки идут по подстрокам строго по
// порядку, от специфичных сигнатур к generic-фолбэку. Новые сигнатуры
// добавляются новыми проверками перед фолбэком. Не переиспользовать
// для других видов ошибок.
func ClassifyConnectionError(err error) Structured {
	text := err.Error()
	if strings.Contains(text, sigWrongCredentials) && strings.Contains(text, sigSnowflakeDriver) {
		return New(CodeWrongUsernamePassword, text)
	}
	return New(CodeGenericUnhandled, text)
}
