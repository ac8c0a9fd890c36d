package history

import (
	"ChatCompanion/internal/ai"
	"context"
	"fmt"
	"slices"
	"strings"
)

// DefaultFetchLimit сколько реплик читать из журнала. Одно место в окне
// оставлено под системное сообщение, поэтому в запрос уходит не больше limit-1 реплик.
const DefaultFetchLimit = 11

// Windower превращает последние реплики журнала в историю для запроса к модели.
type Windower struct {
	store Store
	limit int
}

func NewWindower(store Store, limit int) *Windower {
	if limit < 2 {
		limit = DefaultFetchLimit
	}
	return &Windower{store: store, limit: limit}
}

func (w *Windower) Limit() int { return w.limit }

// Window читает до limit последних реплик id и возвращает их в хронологическом порядке,
// чередуя user/assistant. Если реплик меньше двух, возвращается пустая история:
// одиночная реплика без пары только запутает модель.
func (w *Windower) Window(ctx context.Context, id Identity) ([]ai.Message, error) {
	turns, err := w.store.Recent(ctx, id, w.limit)
	if err != nil {
		return nil, fmt.Errorf("history: fetch recent turns: %w", err)
	}
	return Messages(turns, w.limit-1), nil
}

// Prompt окно истории id, завершённое вопросом question. Вопрос к этому моменту уже записан
// в журнал последней репликой: при полном окне он отбрасывается вместе с лишними репликами
// и возвращается сюда последним user-сообщением.
func (w *Windower) Prompt(ctx context.Context, id Identity, question string) ([]ai.Message, error) {
	msgs, err := w.Window(ctx, id)
	if err != nil {
		return nil, err
	}
	return WithPending(msgs, question, w.limit-1), nil
}

// WithPending завершает историю вопросом question, если его там ещё нет, и оставляет
// не больше maxMessages последних сообщений. Вопрос после неотвеченного вопроса
// склеивается с ним, так что стороны по-прежнему чередуются.
func WithPending(msgs []ai.Message, question string, maxMessages int) []ai.Message {
	out := slices.Clone(msgs)
	if q := strings.TrimSpace(question); q != "" {
		n := len(out)
		switch {
		case n > 0 && out[n-1].Role == ai.RoleUser &&
			(out[n-1].Content == q || strings.HasSuffix(out[n-1].Content, "\n"+q)):
			// уже в окне
		case n > 0 && out[n-1].Role == ai.RoleUser:
			out[n-1].Content += "\n" + q
		default:
			out = append(out, ai.UserMessage(q))
		}
	}
	if maxMessages > 0 && len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}
	return out
}

// Messages раскладывает реплики (новые первыми) в сообщения. Если реплик больше maxTurns,
// отбрасываются самые новые. Подряд идущие реплики одной стороны склеиваются через перевод строки.
func Messages(newestFirst []Turn, maxTurns int) []ai.Message {
	if len(newestFirst) < 2 {
		return []ai.Message{}
	}
	turns := newestFirst
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	chrono := slices.Clone(turns)
	slices.Reverse(chrono)

	out := make([]ai.Message, 0, len(chrono))
	for _, t := range chrono {
		var role ai.Role
		switch t.Speaker {
		case SpeakerMember:
			role = ai.RoleUser
		case SpeakerAssistant, speakerLegacy:
			role = ai.RoleAssistant
		default:
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + t.Text
			continue
		}
		out = append(out, ai.Message{Role: role, Content: t.Text})
	}
	return out
}
