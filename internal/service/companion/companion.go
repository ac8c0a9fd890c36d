package companion

import (
	"ChatCompanion/internal/ai"
	"ChatCompanion/internal/service/history"
	"ChatCompanion/internal/service/prompt"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Windower источник истории для запроса. Prompt возвращает окно, завершённое вопросом.
type Windower interface {
	Prompt(ctx context.Context, id history.Identity, question string) ([]ai.Message, error)
}

// Recorder журнал, в который пишутся вопрос и ответ. Может быть nil.
type Recorder interface {
	Append(ctx context.Context, id history.Identity, t history.Turn) error
}

// Companion оркестрирует один вопрос: промпт персонажа, окно истории, запрос к модели.
// Вызовы для одного Identity вызывающий сериализует сам, если важен порядок реплик в журнале.
type Companion struct {
	profile  prompt.Profile
	windower Windower
	recorder Recorder
	client   ai.Completer
	params   ai.Params
	logger   *zap.SugaredLogger

	now func() time.Time
}

// NewCompanion создаёт сервис оркестрации.
func NewCompanion(profile prompt.Profile, windower Windower, recorder Recorder, client ai.Completer, logger *zap.SugaredLogger) *Companion {
	return &Companion{
		profile:  profile,
		windower: windower,
		recorder: recorder,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}
}

// WithParams задаёт параметры модели для всех запросов.
func (c *Companion) WithParams(p ai.Params) *Companion {
	c.params = p
	return c
}

// Ask отвечает на вопрос пользователя id. Всегда возвращает текст: при сбое — заглушку клиента.
// observation — необязательный внешний контекст, попадает в системный промпт как справка.
func (c *Companion) Ask(ctx context.Context, id history.Identity, question string, observation string) string {
	start := c.now()
	system := prompt.Build(c.profile, observation)
	q := strings.TrimSpace(question)

	// вопрос пишется до чтения окна: окно истории заканчивается им
	asked := c.record(ctx, id, history.SpeakerMember, q, start)

	msgs, err := c.windower.Prompt(ctx, id, q)
	if err != nil {
		// без истории ответить всё равно можно
		c.logger.Warnw("История недоступна, запрос без неё", "identity", id, "error", err)
		msgs = history.WithPending(nil, q, 0)
	}

	reply := c.client.Complete(ctx, system, msgs, uint64(id), c.params)
	c.logger.Infow("Вызов модели завершён", "identity", id, "history", len(msgs), "duration", c.now().Sub(start).String())

	// заглушка при сбое не записывается, ответ без записанного вопроса тоже
	if f, ok := c.client.(interface{ Fallback() string }); ok && reply == f.Fallback() {
		return reply
	}
	if q != "" && !asked {
		return reply
	}
	c.record(ctx, id, history.SpeakerAssistant, reply, c.now())
	return reply
}

// record пишет реплику в журнал и сообщает, записана ли она. Пустой текст не пишется.
func (c *Companion) record(ctx context.Context, id history.Identity, speaker history.Speaker, text string, at time.Time) bool {
	if c.recorder == nil || text == "" {
		return false
	}
	if err := c.recorder.Append(ctx, id, history.Turn{Speaker: speaker, Text: text, RecordedAt: at}); err != nil {
		c.logger.Warnw("Не удалось записать реплику", "identity", id, "speaker", speaker, "error", err)
		return false
	}
	return true
}
