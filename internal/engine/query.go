package engine

import "strings"

// BatchPlaceholder — плейсхолдер таблицы batch'а в пользовательских
// unexpected-rows запросах: "SELECT * FROM {batch} WHERE amount < 0".
const BatchPlaceholder = "{batch}"

// SubstituteBatch подставляет имя таблицы asset'а вместо {batch}.
// Запрос без плейсхолдера возвращается как есть.
func SubstituteBatch(query, table string) string {
	if !strings.Contains(query, BatchPlaceholder) {
		return query
	}
	return strings.ReplaceAll(query, BatchPlaceholder, QuoteIdent(table))
}

// WrapCount оборачивает произвольный запрос в подсчёт его строк.
// Количество строк, которые вернул unexpected-rows запрос, и есть
// наблюдаемое число нарушений.
func WrapCount(query string) string {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	return "SELECT COUNT(*) FROM (" + inner + ") AS unexpected_rows"
}
