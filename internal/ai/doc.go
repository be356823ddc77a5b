// Package ai генерирует черновики SQL-expectation по пользовательскому
// prompt'у через OpenAI chat completions.
//
// Пакет закрыт feature-флагом: без OPENAI_API_KEY Drafter не создаётся.
// Сгенерированный запрос прогоняется через проверку компиляции на живом
// источнике; при ошибке модель переписывает запрос, не более трёх раз.
// Черновик, не прошедший все попытки, всё равно возвращается — финальное
// решение за человеком, который ревьюит черновик в Cloud.
package ai
