package history

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Identity ключ истории диалога. 0 — глобальная история без разделения по пользователям.
type Identity uint64

const Global Identity = 0

// Speaker кто произнёс реплику.
type Speaker string

const (
	SpeakerMember    Speaker = "member"
	SpeakerAssistant Speaker = "assistant"
	// speakerLegacy старое имя ассистента в сохранённых журналах
	speakerLegacy Speaker = "fay"
)

// ParseSpeaker нормализует роль из хранилища. Старое "fay" читается как assistant.
func ParseSpeaker(s string) (Speaker, error) {
	switch Speaker(strings.ToLower(strings.TrimSpace(s))) {
	case SpeakerMember:
		return SpeakerMember, nil
	case SpeakerAssistant, speakerLegacy:
		return SpeakerAssistant, nil
	}
	return "", fmt.Errorf("history: unknown speaker %q", s)
}

// Turn одна реплика в журнале.
type Turn struct {
	Speaker    Speaker
	Text       string
	RecordedAt time.Time
}

// NewTurn создаёт реплику с проверкой роли. Нулевое время заменяется текущим.
func NewTurn(speaker string, text string, at time.Time) (Turn, error) {
	sp, err := ParseSpeaker(speaker)
	if err != nil {
		return Turn{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return Turn{Speaker: sp, Text: text, RecordedAt: at}, nil
}

// Store журнал реплик, ключ — Identity.
type Store interface {
	// Recent возвращает до n последних реплик, новые первыми. Для Global — по всем диалогам.
	Recent(ctx context.Context, id Identity, n int) ([]Turn, error)
	// Append дописывает реплику в конец журнала id.
	Append(ctx context.Context, id Identity, t Turn) error
}
