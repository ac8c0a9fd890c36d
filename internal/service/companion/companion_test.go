package companion

import (
	"ChatCompanion/internal/ai"
	"ChatCompanion/internal/service/history"
	"ChatCompanion/internal/service/prompt"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingWindower struct{}

func (failingWindower) Prompt(context.Context, history.Identity, string) ([]ai.Message, error) {
	return nil, errors.New("db down")
}

type fallbackStub struct{ *ai.StubClient }

func (fallbackStub) Fallback() string { return "busy" }

func newCompanion(t *testing.T, w Windower, r Recorder, c ai.Completer) *Companion {
	t.Helper()
	p, err := prompt.NewProfile(prompt.Profile{Name: "Фэй", Task: "Задача: помогай."})
	require.NoError(t, err)
	return NewCompanion(p, w, r, c, zaptest.NewLogger(t).Sugar())
}

func TestAsk_FirstQuestionHasNoHistory(t *testing.T) {
	store := history.NewMemoryStore(50)
	stub := ai.NewStubClient()
	c := newCompanion(t, history.NewWindower(store, history.DefaultFetchLimit), store, stub)

	reply := c.Ask(context.Background(), 3, "What is love?", "user looks tired")
	assert.Equal(t, "запрос получен", reply)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, uint64(3), calls[0].Identity)
	assert.Contains(t, calls[0].SystemPrompt, "user looks tired")
	assert.Equal(t, []ai.Message{ai.UserMessage("What is love?")}, calls[0].History)

	turns, err := store.Recent(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.SpeakerAssistant, turns[0].Speaker)
	assert.Equal(t, "запрос получен", turns[0].Text)
	assert.Equal(t, history.SpeakerMember, turns[1].Speaker)
}

func TestAsk_SecondQuestionSeesPreviousExchange(t *testing.T) {
	store := history.NewMemoryStore(50)
	stub := ai.NewStubClient()
	c := newCompanion(t, history.NewWindower(store, history.DefaultFetchLimit), store, stub)
	ctx := context.Background()

	_ = c.Ask(ctx, 1, "first", "")
	stub.Reply = "second answer"
	_ = c.Ask(ctx, 1, "second", "")

	calls := stub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []ai.Message{
		ai.UserMessage("first"),
		ai.AssistantMessage("запрос получен"),
		ai.UserMessage("second"),
	}, calls[1].History)
	assert.NotContains(t, calls[1].SystemPrompt, "наблюдения")
}

func TestAsk_HistoryFailureStillAnswers(t *testing.T) {
	stub := ai.NewStubClient()
	c := newCompanion(t, failingWindower{}, nil, stub)

	assert.Equal(t, "запрос получен", c.Ask(context.Background(), 1, "hi", ""))
	require.Len(t, stub.Calls(), 1)
	assert.Equal(t, []ai.Message{ai.UserMessage("hi")}, stub.Calls()[0].History)
}

func TestAsk_FallbackReplyIsNotRecorded(t *testing.T) {
	store := history.NewMemoryStore(50)
	stub := fallbackStub{ai.NewStubClient()}
	stub.Reply = "busy"
	c := newCompanion(t, history.NewWindower(store, history.DefaultFetchLimit), store, stub)

	assert.Equal(t, "busy", c.Ask(context.Background(), 2, "hello", ""))
	turns, err := store.Recent(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.SpeakerMember, turns[0].Speaker)
}

func TestAsk_PassesParams(t *testing.T) {
	stub := ai.NewStubClient()
	temp := 0.9
	c := newCompanion(t, failingWindower{}, nil, stub).WithParams(ai.Params{Model: "m", Temperature: &temp})
	c.now = func() time.Time { return time.Unix(0, 0) }

	_ = c.Ask(context.Background(), 0, "", "")
	require.Len(t, stub.Calls(), 1)
	assert.Equal(t, "m", stub.Calls()[0].Params.Model)
	assert.Empty(t, stub.Calls()[0].History)
}

func assertAlternates(t *testing.T, msgs []ai.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].Role, msgs[i].Role, "roles repeat at %d: %v", i, msgs)
	}
}

func TestAsk_SteadyStateWindow(t *testing.T) {
	store := history.NewMemoryStore(100)
	stub := ai.NewStubClient()
	c := newCompanion(t, history.NewWindower(store, history.DefaultFetchLimit), store, stub)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		stub.Reply = fmt.Sprintf("a%d", i)
		require.Equal(t, stub.Reply, c.Ask(ctx, 4, fmt.Sprintf("q%d", i), ""))
	}

	calls := stub.Calls()
	require.Len(t, calls, 8)
	for i, call := range calls {
		msgs := call.History
		assert.LessOrEqual(t, len(msgs), history.DefaultFetchLimit-1, "call %d", i+1)
		assertAlternates(t, msgs)
		require.NotEmpty(t, msgs)
		assert.Equal(t, ai.UserMessage(fmt.Sprintf("q%d", i+1)), msgs[len(msgs)-1], "call %d", i+1)
		if i > 0 {
			assert.Equal(t, ai.AssistantMessage(fmt.Sprintf("a%d", i)), msgs[len(msgs)-2], "call %d", i+1)
		}
	}

	assert.Equal(t, []ai.Message{
		ai.AssistantMessage("a3"),
		ai.UserMessage("q4"), ai.AssistantMessage("a4"),
		ai.UserMessage("q5"), ai.AssistantMessage("a5"),
		ai.UserMessage("q6"), ai.AssistantMessage("a6"),
		ai.UserMessage("q7"), ai.AssistantMessage("a7"),
		ai.UserMessage("q8"),
	}, calls[7].History)
}

func TestAsk_UnansweredQuestionMergesWithNext(t *testing.T) {
	store := history.NewMemoryStore(100)
	stub := fallbackStub{ai.NewStubClient()}
	c := newCompanion(t, history.NewWindower(store, history.DefaultFetchLimit), store, stub)
	ctx := context.Background()

	stub.Reply = "a1"
	_ = c.Ask(ctx, 5, "q1", "")
	stub.Reply = "busy"
	_ = c.Ask(ctx, 5, "q2", "")
	stub.Reply = "a3"
	_ = c.Ask(ctx, 5, "q3", "")

	calls := stub.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []ai.Message{
		ai.UserMessage("q1"),
		ai.AssistantMessage("a1"),
		ai.UserMessage("q2\nq3"),
	}, calls[2].History)
}
