package history

import (
	"ChatCompanion/internal/ai"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alternating строит n реплик t1..tn, новые первыми; самая старая tn — от member.
func alternating(n int) []Turn {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]Turn, 0, n)
	for i := 1; i <= n; i++ {
		sp := SpeakerAssistant
		if (n-i)%2 == 0 {
			sp = SpeakerMember
		}
		out = append(out, Turn{Speaker: sp, Text: fmt.Sprintf("t%d", i), RecordedAt: base.Add(-time.Duration(i) * time.Minute)})
	}
	return out
}

type staticStore struct {
	turns []Turn
	err   error
	gotN  int
	gotID Identity
}

func (s *staticStore) Recent(_ context.Context, id Identity, n int) ([]Turn, error) {
	s.gotN, s.gotID = n, id
	if s.err != nil {
		return nil, s.err
	}
	return s.turns[:min(n, len(s.turns))], nil
}

func (s *staticStore) Append(context.Context, Identity, Turn) error { return nil }

func TestWindow_FewerThanTwoTurnsIsEmpty(t *testing.T) {
	for _, n := range []int{0, 1} {
		w := NewWindower(&staticStore{turns: alternating(n)}, DefaultFetchLimit)
		msgs, err := w.Window(context.Background(), 5)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs, "n=%d", n)
	}
}

func TestWindow_ElevenTurnsDropsNewest(t *testing.T) {
	store := &staticStore{turns: alternating(11)}
	w := NewWindower(store, DefaultFetchLimit)

	msgs, err := w.Window(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 11, store.gotN)
	assert.Equal(t, Identity(3), store.gotID)

	require.Len(t, msgs, 10)
	for i, m := range msgs {
		// t11, t10, ..., t2
		assert.Equal(t, fmt.Sprintf("t%d", 11-i), m.Content)
		if i%2 == 0 {
			assert.Equal(t, ai.RoleUser, m.Role)
		} else {
			assert.Equal(t, ai.RoleAssistant, m.Role)
		}
	}
}

func TestWindow_ShortHistoryKeptWhole(t *testing.T) {
	w := NewWindower(&staticStore{turns: alternating(4)}, DefaultFetchLimit)
	msgs, err := w.Window(context.Background(), Global)
	require.NoError(t, err)

	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "t4"},
		{Role: ai.RoleAssistant, Content: "t3"},
		{Role: ai.RoleUser, Content: "t2"},
		{Role: ai.RoleAssistant, Content: "t1"},
	}, msgs)
}

func TestWindow_TunableLimit(t *testing.T) {
	store := &staticStore{turns: alternating(11)}
	w := NewWindower(store, 5)
	msgs, err := w.Window(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, store.gotN)
	assert.Len(t, msgs, 4)
	assert.Equal(t, "t5", msgs[0].Content)
	assert.Equal(t, "t2", msgs[3].Content)
}

func TestMessages_MergesSameSpeakerAndSkipsUnknown(t *testing.T) {
	newestFirst := []Turn{
		{Speaker: SpeakerAssistant, Text: "a2"},
		{Speaker: speakerLegacy, Text: "a1"},
		{Speaker: Speaker("narrator"), Text: "skip"},
		{Speaker: SpeakerMember, Text: "q2"},
		{Speaker: SpeakerMember, Text: "q1"},
	}
	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "q1\nq2"},
		{Role: ai.RoleAssistant, Content: "a1\na2"},
	}, Messages(newestFirst, 10))
}

func TestWindow_StoreError(t *testing.T) {
	boom := errors.New("db down")
	w := NewWindower(&staticStore{err: boom}, DefaultFetchLimit)
	_, err := w.Window(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestParseSpeaker(t *testing.T) {
	for in, want := range map[string]Speaker{"member": SpeakerMember, "fay": SpeakerAssistant, " Assistant ": SpeakerAssistant} {
		got, err := ParseSpeaker(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := NewTurn("robot", "x", time.Time{})
	assert.Error(t, err)
}

func TestPrompt_FullWindowEndsWithPendingQuestion(t *testing.T) {
	// t1 — только что записанный вопрос, при полном окне он отбрасывается и возвращается последним
	w := NewWindower(&staticStore{turns: alternating(11)}, DefaultFetchLimit)
	msgs, err := w.Prompt(context.Background(), 3, "t1")
	require.NoError(t, err)

	require.Len(t, msgs, 10)
	assert.Equal(t, ai.AssistantMessage("t10"), msgs[0])
	assert.Equal(t, ai.AssistantMessage("t2"), msgs[8])
	assert.Equal(t, ai.UserMessage("t1"), msgs[9])
	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].Role, msgs[i].Role, "at %d", i)
	}
}

func TestPrompt_ShortWindowAlreadyHoldsQuestion(t *testing.T) {
	w := NewWindower(&staticStore{turns: alternating(3)}, DefaultFetchLimit)
	msgs, err := w.Prompt(context.Background(), 3, "t1")
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{
		ai.UserMessage("t3"),
		ai.AssistantMessage("t2"),
		ai.UserMessage("t1"),
	}, msgs)
}

func TestWithPending(t *testing.T) {
	cases := []struct {
		name string
		in   []ai.Message
		q    string
		max  int
		want []ai.Message
	}{
		{"empty history", nil, "hi", 10, []ai.Message{ai.UserMessage("hi")}},
		{"after answer", []ai.Message{ai.UserMessage("q1"), ai.AssistantMessage("a1")}, "q2", 10,
			[]ai.Message{ai.UserMessage("q1"), ai.AssistantMessage("a1"), ai.UserMessage("q2")}},
		{"already last", []ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2")}, "q2", 10,
			[]ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2")}},
		{"merged with unanswered", []ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2\nq3")}, "q3", 10,
			[]ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2\nq3")}},
		{"after unanswered", []ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2")}, "q3", 10,
			[]ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2\nq3")}},
		{"trimmed from the oldest", []ai.Message{ai.UserMessage("q1"), ai.AssistantMessage("a1")}, "q2", 2,
			[]ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2")}},
		{"blank question", []ai.Message{ai.UserMessage("q1")}, "  ", 10, []ai.Message{ai.UserMessage("q1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WithPending(tc.in, tc.q, tc.max))
		})
	}
}

func TestWithPending_DoesNotMutateInput(t *testing.T) {
	in := []ai.Message{ai.AssistantMessage("a1"), ai.UserMessage("q2")}
	_ = WithPending(in, "q3", 10)
	assert.Equal(t, "q2", in[1].Content)
}
