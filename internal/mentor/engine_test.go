package mentor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/cascade"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/llm"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, history []domain.Message, systemPrompt string) (string, error) {
	args := m.Called(ctx, history, systemPrompt)
	return args.String(0), args.Error(1)
}

type recorder struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (r *recorder) Notify(_ string, msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

type fixture struct {
	repo     store.Repository
	llm      *mockCompleter
	notified *recorder
	engine   *Engine
}

func newFixture(t *testing.T, withPlan bool) *fixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "mentor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	if withPlan {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		goal := domain.Goal{ID: "g1", UserID: "u1", Title: "Run a 5k", CreatedAt: base}
		require.NoError(t, repo.CreatePlan(context.Background(), &goal,
			[]domain.Milestone{{ID: "m1", Title: "Base"}},
			[]domain.Action{
				{ID: "a1", MilestoneID: "m1", Title: "Walk 20 minutes", CreatedAt: base},
				{ID: "a2", MilestoneID: "m1", Title: "Jog 10 minutes", CreatedAt: base.Add(time.Second)},
			}))
	}

	f := &fixture{repo: repo, llm: &mockCompleter{}, notified: &recorder{}}
	cc := cascade.New(repo, repo, repo)
	f.engine = NewEngine(repo, repo, repo, cc, f.llm, Config{}, WithNotifier(f.notified))
	return f
}

func (f *fixture) turn(t *testing.T, msg string) *Reply {
	t.Helper()
	reply, err := f.engine.HandleTurn(context.Background(), Turn{UserID: "u1", Message: msg})
	require.NoError(t, err)
	return reply
}

func (f *fixture) events(t *testing.T) []domain.ProgressEvent {
	t.Helper()
	events, err := f.repo.ListProgressEvents(context.Background(), "u1", "")
	require.NoError(t, err)
	return events
}

func TestDoneTwiceThenYes(t *testing.T) {
	f := newFixture(t, true)

	first := f.turn(t, "done")
	assert.Equal(t, "confirm_prompt", first.Kind)
	assert.Contains(t, first.Content, "Walk 20 minutes")
	require.NotNil(t, first.Session.PendingCompletion)
	assert.Equal(t, "a1", first.Session.PendingCompletion.ActionID)

	second := f.turn(t, "done")
	assert.Equal(t, "confirm_prompt", second.Kind, "a second done re-asks instead of completing")
	assert.Empty(t, f.events(t))

	f.llm.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "just completed an action") && strings.Contains(p, "Jog 10 minutes")
	})).Return("Congrats! On to jogging.", nil).Once()

	third := f.turn(t, "yes")
	assert.Equal(t, "confirmed", third.Kind)
	require.NotNil(t, third.Outcome)
	assert.Equal(t, "a2", third.Outcome.NextAction.ID)
	assert.Equal(t, "Congrats! On to jogging.", third.Content)
	assert.Nil(t, third.Session.PendingCompletion)
	assert.Equal(t, "a2", third.Session.ActionID)
	require.Len(t, third.Messages, 2, "follow-up plus model reply")

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAction, events[0].Kind)
	f.llm.AssertExpectations(t)

	// confirm prompts, declines, follow-ups and the model reply are all pushed.
	assert.Len(t, f.notified.msgs, 4)
}

func TestNoClearsPending(t *testing.T) {
	f := newFixture(t, true)

	f.turn(t, "finished")
	reply := f.turn(t, "no")
	assert.Equal(t, "declined", reply.Kind)
	assert.Nil(t, reply.Session.PendingCompletion)
	assert.Empty(t, f.events(t))
	f.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestStaleConfirmationIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.turn(t, "done")
	// The plan moves on behind the conversation's back.
	require.NoError(t, f.repo.UpdateActionStatus(ctx, "a1", domain.ActionCompleted, time.Now()))

	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("How is the jog going?", nil).Once()
	reply := f.turn(t, "yes")

	assert.Equal(t, "guidance", reply.Kind)
	assert.Nil(t, reply.Outcome)
	assert.Nil(t, reply.Session.PendingCompletion)
	assert.Equal(t, "a2", reply.Session.ActionID)
	assert.Empty(t, f.events(t))

	a2, err := f.repo.GetAction(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, a2.IsPending())
}

func TestLLMFailurePersistsNoAssistantMessage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", &llm.Error{Kind: llm.KindRateLimited, Err: errors.New("slow down")})

	_, err := f.engine.HandleTurn(ctx, Turn{UserID: "u1", Message: "how do I start?"})
	require.Error(t, err)
	assert.Equal(t, llm.KindRateLimited, llm.KindOf(err))

	msgs, err := f.repo.GetRecentMessages(ctx, "u1", "g1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)

	// The pointer persisted by resolution stands.
	sess, err := f.repo.GetSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", sess.ActionID)
}

func TestCouldntRecordsAttempt(t *testing.T) {
	f := newFixture(t, true)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "could not complete")
	})).Return("That's okay, let's try 5 minutes.", nil)

	reply := f.turn(t, "I couldn't do it today")
	assert.Equal(t, "couldnt", reply.Kind)
	assert.Equal(t, "a1", reply.Session.ActionID)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Points)
}

func TestStageAdvancesWithTurns(t *testing.T) {
	f := newFixture(t, true)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)

	var stages []string
	for _, msg := range []string{"hi", "what do I do?", "any tips?"} {
		stages = append(stages, f.turn(t, msg).Stage)
	}
	assert.Equal(t, []string{"initial", "initial", "guiding"}, stages)
}

func TestOnboardingWithoutGoals(t *testing.T) {
	f := newFixture(t, false)
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(h []domain.Message) bool {
		return len(h) == 1 && h[0].Content == "hello"
	}), mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "no goal yet")
	})).Return("Welcome! What would you like to achieve?", nil)

	reply := f.turn(t, "hello")
	assert.Equal(t, "no_goals", reply.Plan)
	assert.Empty(t, reply.GoalID)
	assert.Equal(t, domain.SessionNone, reply.Session.Status)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.HandleTurn(context.Background(), Turn{UserID: "u1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
