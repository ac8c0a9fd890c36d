package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeType тип сообщения сервер→клиент.
type EnvelopeType string

const (
	TypeSystem EnvelopeType = "system"
	TypeEcho   EnvelopeType = "echo"
	TypeError  EnvelopeType = "error"
)

const (
	invalidJSONText    = "Invalid JSON format"
	missingContentText = "Missing content field"
	echoPrefix         = "Echo: "
)

// Envelope единица обмена по realtime-каналу. Для error текст лежит в message, для остальных — в content.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Content   string       `json:"content,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"` // epoch ms
}

// NewEnvelope создаёт конверт с проверкой типа.
func NewEnvelope(t EnvelopeType, text string, at time.Time) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: at.UnixMilli()}
	switch t {
	case TypeSystem, TypeEcho:
		env.Content = text
	case TypeError:
		env.Message = text
	default:
		return Envelope{}, fmt.Errorf("realtime: unknown envelope type %q", t)
	}
	return env, nil
}

func mustEnvelope(t EnvelopeType, text string, at time.Time) Envelope {
	env, err := NewEnvelope(t, text, at)
	if err != nil {
		panic(err)
	}
	return env
}

// Reply строит ответ на один входящий фрейм. Ошибка разбора не рвёт соединение,
// клиент получает error-конверт.
func Reply(frame []byte, at time.Time) Envelope {
	if !json.Valid(frame) {
		return mustEnvelope(TypeError, invalidJSONText, at)
	}
	// клиент→сервер: читается только ключ content, точное совпадение регистра
	var in map[string]json.RawMessage
	if err := json.Unmarshal(frame, &in); err != nil {
		// валидный JSON, но не объект
		return mustEnvelope(TypeError, missingContentText, at)
	}
	raw := bytes.TrimSpace(in["content"])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return mustEnvelope(TypeError, missingContentText, at)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// не строка: эхо как есть, в JSON-виде
		text = string(raw)
	}
	return mustEnvelope(TypeEcho, echoPrefix+text, at)
}
