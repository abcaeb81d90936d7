// Package mentor runs one chat turn through the orchestration engine: plan
// resolution, intent classification, stage decision, completion cascade and the
// language model reply.
package mentor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/cascade"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/intent"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/llm"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/stage"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// DefaultHistoryLimit is how many recent messages are sent to the model.
const DefaultHistoryLimit = 20

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is empty")

// Notifier is told about every assistant message the engine persists.
type Notifier interface {
	Notify(userID string, msg domain.Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(userID string, msg domain.Message)

// Notify implements Notifier.
func (f NotifierFunc) Notify(userID string, msg domain.Message) { f(userID, msg) }

type noopNotifier struct{}

func (noopNotifier) Notify(string, domain.Message) {}

// Turn is one inbound user message.
type Turn struct {
	UserID  string
	GoalID  string
	Message string
}

// Reply is what the engine produced for a turn.
type Reply struct {
	GoalID   string                     `json:"goal_id,omitempty"`
	Content  string                     `json:"content"`
	Kind     string                     `json:"kind"`
	Stage    string                     `json:"stage,omitempty"`
	Template stage.Template             `json:"template,omitempty"`
	Plan     string                     `json:"plan_state"`
	Messages []domain.Message           `json:"messages"`
	Outcome  *cascade.Outcome           `json:"completion,omitempty"`
	Session  domain.ConversationSession `json:"session"`
}

// Config tunes an Engine.
type Config struct {
	HistoryLimit int
}

// Engine orchestrates chat turns. It holds no per-user state; everything that
// survives a turn lives in the stores.
type Engine struct {
	sessions store.SessionStore
	messages store.MessageLog
	resolver *plan.Resolver
	cascade  *cascade.Cascade
	llm      llm.Completer
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier registers the realtime sink for assistant messages.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wires an Engine.
func NewEngine(
	plans store.PlanRepository,
	sessions store.SessionStore,
	messages store.MessageLog,
	cc *cascade.Cascade,
	completer llm.Completer,
	cfg Config,
	opts ...Option,
) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	e := &Engine{
		sessions: sessions,
		messages: messages,
		cascade:  cc,
		llm:      completer,
		notifier: noopNotifier{},
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = plan.NewResolver(plans, sessions, e.logger)
	return e
}

// Resolver exposes the plan resolver for read-only endpoints.
func (e *Engine) Resolver() *plan.Resolver {
	return e.resolver
}

// HandleTurn processes one user message. Language model failures are returned as
// *llm.Error; session and cascade changes made before the failure stand and no
// assistant message is stored.
func (e *Engine) HandleTurn(ctx context.Context, turn Turn) (*Reply, error) {
	text := strings.TrimSpace(turn.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	log := e.logger.With("user_id", turn.UserID)

	res, err := e.resolver.Resolve(ctx, turn.UserID, turn.GoalID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	goalID := res.GoalID()
	sess := res.Session

	var turns int
	if res.State == plan.StateReady {
		turns, err = e.messages.CountUserMessages(ctx, turn.UserID, goalID, sess.ActionSince)
		if err != nil {
			return nil, fmt.Errorf("count turns: %w", err)
		}
	}

	userMsg := domain.Message{UserID: turn.UserID, GoalID: goalID, Role: domain.RoleUser, Content: text, CreatedAt: e.now()}
	if err := e.messages.AppendMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	in := stage.Input{
		Plan:    res.State,
		GoalID:  goalID,
		Pending: sess.PendingCompletion,
		Intent:  intent.Classify(text, sess.PendingCompletion),
		Turns:   turns,
	}
	if res.Context.HasAction() {
		in.ActionID = res.Context.CurrentAction.ID
		in.ActionTitle = res.Context.CurrentAction.Title
	}
	d := stage.Decide(in)
	log.Debug("turn decided",
		"goal_id", goalID,
		"plan_state", res.State.String(),
		"keyword", in.Intent.Keyword.String(),
		"confirmation", in.Intent.Confirmation.String(),
		"kind", d.Kind.String(),
		"turns", turns,
	)
	if d.StaleDropped {
		log.Info("dropped stale completion confirmation", "goal_id", goalID,
			"pending_action_id", sess.PendingCompletion.ActionID, "current_action_id", in.ActionID)
	}

	if d.Patch != nil && !sess.IsNoop(*d.Patch) {
		sess, err = e.sessions.UpdateSession(ctx, turn.UserID, *d.Patch)
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
	}

	reply := &Reply{
		GoalID:   goalID,
		Kind:     d.Kind.String(),
		Template: d.Template,
		Plan:     res.State.String(),
	}
	if d.Kind == stage.KindGuidance && res.State == plan.StateReady {
		reply.Stage = d.Stage.String()
	}

	if d.Kind.ShortCircuit() {
		msg, err := e.say(ctx, turn.UserID, goalID, d.Reply)
		if err != nil {
			return nil, err
		}
		reply.Content = msg.Content
		reply.Messages = []domain.Message{msg}
		reply.Session = sess
		return reply, nil
	}

	var guidance string
	switch d.Kind {
	case stage.KindConfirmed:
		out, err := e.cascade.CompleteAction(ctx, turn.UserID, goalID, in.ActionID)
		if err != nil {
			return nil, fmt.Errorf("complete action: %w", err)
		}
		reply.Outcome = &out
		for _, m := range out.Messages {
			e.notifier.Notify(turn.UserID, m)
		}
		reply.Messages = append(reply.Messages, out.Messages...)
		if out.Aborted {
			guidance = stage.Guidance(stage.TemplateChecking, guidanceContext(res))
		} else {
			guidance = out.Guidance
		}
	case stage.KindCouldnt:
		e.cascade.RecordAttempt(ctx, turn.UserID, goalID, res.Context.CurrentMilestone.ID, in.ActionID)
		guidance = stage.Guidance(d.Template, guidanceContext(res))
	default:
		guidance = stage.Guidance(d.Template, guidanceContext(res))
	}

	// The session may have moved during the cascade.
	if current, err := e.sessions.GetSession(ctx, turn.UserID); err == nil {
		sess = current
	} else {
		log.Warn("failed to reload session", "error", err)
	}
	reply.Session = sess

	history, err := e.history(ctx, turn.UserID, goalID)
	if err != nil {
		return nil, err
	}
	content, err := e.llm.Complete(ctx, history, guidance)
	if err != nil {
		log.Error("language model call failed", "goal_id", goalID, "kind", llm.KindOf(err), "error", err)
		return nil, err
	}

	msg, err := e.say(ctx, turn.UserID, goalID, content)
	if err != nil {
		return nil, err
	}
	reply.Content = msg.Content
	reply.Messages = append(reply.Messages, msg)
	return reply, nil
}

// history returns recent messages oldest first.
func (e *Engine) history(ctx context.Context, userID, goalID string) ([]domain.Message, error) {
	recent, err := e.messages.GetRecentMessages(ctx, userID, goalID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (e *Engine) say(ctx context.Context, userID, goalID, content string) (domain.Message, error) {
	msg := domain.Message{UserID: userID, GoalID: goalID, Role: domain.RoleAssistant, Content: content, CreatedAt: e.now()}
	if err := e.messages.AppendMessage(ctx, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("store assistant message: %w", err)
	}
	e.notifier.Notify(userID, msg)
	return msg, nil
}

func guidanceContext(res plan.Resolution) stage.GuidanceContext {
	var gc stage.GuidanceContext
	for _, g := range res.Goals {
		gc.GoalTitles = append(gc.GoalTitles, g.Title)
	}
	pc := res.Context
	if pc == nil {
		return gc
	}
	gc.GoalTitle = pc.Goal.Title
	gc.MainGoal = pc.Goal.MainGoal
	gc.ActionsCompleted = pc.Counters.ActionsCompleted
	gc.TotalActions = pc.Counters.TotalActions
	gc.MilestonesCompleted = pc.Counters.MilestonesCompleted
	gc.TotalMilestones = pc.Counters.TotalMilestones
	gc.Percent = pc.Counters.Percent()
	gc.Tone = progress.ToneFor(gc.Percent)
	if pc.CurrentMilestone != nil {
		gc.MilestoneTitle = pc.CurrentMilestone.Title
	}
	if pc.CurrentAction != nil {
		gc.ActionTitle = pc.CurrentAction.Title
		gc.ActionDescription = pc.CurrentAction.Description
	}
	return gc
}
