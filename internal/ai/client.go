package ai

import "context"

// Completer интерфейс запроса ответа у модели. Все реализации должны быть взаимозаменяемыми.
// Complete никогда не возвращает ошибку: при сбое отдаётся текст-заглушка.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []Message, identity uint64, params Params) string
}

// Params параметры модели на один запрос. Нулевые значения заменяются значениями из конфига.
type Params struct {
	Model       string
	Temperature *float64
	MaxTokens   int64
}
