package stage

import (
	"fmt"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/intent"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
)

// Kind is what the caller must do with a turn.
type Kind int

const (
	// KindGuidance forwards the turn to the language model with Template.
	KindGuidance Kind = iota
	// KindConfirmPrompt answers with Reply, a yes/no completion question.
	KindConfirmPrompt
	// KindDeclined answers with Reply after the user said the action is not done.
	KindDeclined
	// KindConfirmed runs the completion cascade for the pending action.
	KindConfirmed
	// KindCouldnt records a zero-point attempt and asks the model to re-plan.
	KindCouldnt
	// KindAdjust asks the model to renegotiate the action.
	KindAdjust
)

func (k Kind) String() string {
	switch k {
	case KindGuidance:
		return "guidance"
	case KindConfirmPrompt:
		return "confirm_prompt"
	case KindDeclined:
		return "declined"
	case KindConfirmed:
		return "confirmed"
	case KindCouldnt:
		return "couldnt"
	case KindAdjust:
		return "adjust"
	default:
		return "unknown"
	}
}

// ShortCircuit reports whether the turn is answered without the language model.
func (k Kind) ShortCircuit() bool {
	return k == KindConfirmPrompt || k == KindDeclined
}

// Input is everything Decide looks at.
type Input struct {
	Plan        plan.State
	GoalID      string
	ActionID    string
	ActionTitle string
	Pending     *domain.PendingCompletion
	Intent      intent.Result
	// Turns counts the user's prior messages since the action became current.
	Turns int
}

// Decision is the outcome of Decide.
type Decision struct {
	Kind     Kind
	Stage    Stage
	Template Template
	// Reply is the scripted answer for short-circuit kinds.
	Reply string
	// Patch holds the session change the decision implies, if any.
	Patch *domain.SessionPatch
	// StaleDropped is set when a pending confirmation no longer matched the focus.
	StaleDropped bool
}

// Decide applies the decision table of a turn. It is pure.
func Decide(in Input) Decision {
	var d Decision

	switch in.Plan {
	case plan.StateNoGoals:
		d.Template = TemplateOnboarding
		return d
	case plan.StateGoalsWithoutPlans:
		d.Template = TemplateNoPlan
		return d
	case plan.StatePlanComplete:
		d.Template = TemplatePlanComplete
		return d
	}

	pending := in.Pending
	confirmation := in.Intent.Confirmation
	if pending != nil && !pending.Matches(in.GoalID, in.ActionID) {
		d.StaleDropped = true
		d.Patch = clearPending()
		pending = nil
		confirmation = intent.ConfirmNone
	}

	if pending != nil {
		switch confirmation {
		case intent.ConfirmYes:
			d.Kind = KindConfirmed
			d.Template = TemplateCompletion
			d.Patch = clearPending()
			return d
		case intent.ConfirmNo:
			d.Kind = KindDeclined
			d.Reply = keepWorkingReply(in.ActionTitle)
			d.Patch = clearPending()
			return d
		}
	}

	switch in.Intent.Keyword {
	case intent.KeywordCompleted:
		if in.ActionID != "" {
			d.Kind = KindConfirmPrompt
			d.Reply = confirmPrompt(in.ActionTitle)
			if pending == nil {
				if d.Patch == nil {
					d.Patch = &domain.SessionPatch{}
				}
				d.Patch.PendingCompletion = &domain.PendingCompletion{GoalID: in.GoalID, ActionID: in.ActionID}
			}
			return d
		}
	case intent.KeywordCouldnt:
		d.Kind = KindCouldnt
		d.Template = TemplateCouldnt
		return d
	case intent.KeywordAdjust:
		d.Kind = KindAdjust
		d.Template = TemplateAdjust
		return d
	}

	d.Kind = KindGuidance
	d.Stage = StageForTurn(in.Turns)
	d.Template = templateForStage(d.Stage)
	return d
}

func clearPending() *domain.SessionPatch {
	return &domain.SessionPatch{Clear: []domain.SessionField{domain.FieldPendingCompletion}}
}

func confirmPrompt(actionTitle string) string {
	if actionTitle == "" {
		return "Nice! Just to confirm: did you complete your current action? Reply yes or no."
	}
	return fmt.Sprintf("Nice! Just to confirm: did you complete \"%s\"? Reply yes or no.", actionTitle)
}

func keepWorkingReply(actionTitle string) string {
	if actionTitle == "" {
		return "No problem, let's keep working on it. Tell me where you're stuck and we'll take the next small step together."
	}
	return fmt.Sprintf("No problem, let's keep working on \"%s\". Tell me where you're stuck and we'll take the next small step together.", actionTitle)
}
