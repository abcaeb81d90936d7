package stage

import (
	"strings"
	"testing"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/intent"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
)

func TestStageForTurn(t *testing.T) {
	tests := []struct {
		turns int
		want  Stage
	}{
		{0, Initial}, {1, Initial},
		{2, Guiding}, {4, Guiding},
		{5, Checking}, {7, Checking},
		{8, Evaluating}, {30, Evaluating},
	}
	for _, tt := range tests {
		if got := StageForTurn(tt.turns); got != tt.want {
			t.Errorf("StageForTurn(%d) = %s, want %s", tt.turns, got, tt.want)
		}
	}
}

func TestStageForTurnOnlyMovesForward(t *testing.T) {
	prev := StageForTurn(0)
	for turns := 1; turns <= 20; turns++ {
		got := StageForTurn(turns)
		if got < prev {
			t.Fatalf("stage moved back from %s to %s at turn %d", prev, got, turns)
		}
		prev = got
	}
}

func ready(in Input) Input {
	in.Plan = plan.StateReady
	if in.GoalID == "" {
		in.GoalID = "g1"
	}
	if in.ActionID == "" {
		in.ActionID = "a1"
	}
	in.ActionTitle = "Walk 20 minutes"
	return in
}

func classify(msg string, pending *domain.PendingCompletion) intent.Result {
	return intent.Classify(msg, pending)
}

func TestDecideTable(t *testing.T) {
	matching := &domain.PendingCompletion{GoalID: "g1", ActionID: "a1"}
	stale := &domain.PendingCompletion{GoalID: "g1", ActionID: "a0"}

	tests := []struct {
		name        string
		in          Input
		wantKind    Kind
		wantTmpl    Template
		wantPending *domain.PendingCompletion // expected pending after applying Patch
		wantStale   bool
	}{
		{
			name:        "done asks for confirmation",
			in:          ready(Input{Intent: classify("done", nil)}),
			wantKind:    KindConfirmPrompt,
			wantPending: matching,
		},
		{
			name:        "done again re-issues the prompt",
			in:          ready(Input{Pending: matching, Intent: classify("done", matching)}),
			wantKind:    KindConfirmPrompt,
			wantPending: matching,
		},
		{
			name:     "yes confirms",
			in:       ready(Input{Pending: matching, Intent: classify("yes", matching)}),
			wantKind: KindConfirmed,
			wantTmpl: TemplateCompletion,
		},
		{
			name:     "sim confirms",
			in:       ready(Input{Pending: matching, Intent: classify("sim", matching)}),
			wantKind: KindConfirmed,
			wantTmpl: TemplateCompletion,
		},
		{
			name:     "no declines",
			in:       ready(Input{Pending: matching, Intent: classify("não", matching)}),
			wantKind: KindDeclined,
		},
		{
			name:        "unrelated keeps pending",
			in:          ready(Input{Pending: matching, Intent: classify("what should I wear?", matching)}),
			wantKind:    KindGuidance,
			wantTmpl:    TemplateInitial,
			wantPending: matching,
		},
		{
			name:      "stale yes is dropped",
			in:        ready(Input{Pending: stale, Intent: classify("yes", stale)}),
			wantKind:  KindGuidance,
			wantTmpl:  TemplateInitial,
			wantStale: true,
		},
		{
			name:        "stale then done re-arms for the current action",
			in:          ready(Input{Pending: stale, Intent: classify("done", stale)}),
			wantKind:    KindConfirmPrompt,
			wantPending: matching,
			wantStale:   true,
		},
		{
			name:     "couldnt",
			in:       ready(Input{Intent: classify("I couldn't do it", nil)}),
			wantKind: KindCouldnt,
			wantTmpl: TemplateCouldnt,
		},
		{
			name:     "adjust",
			in:       ready(Input{Intent: classify("can you adjust this?", nil)}),
			wantKind: KindAdjust,
			wantTmpl: TemplateAdjust,
		},
		{
			name:     "stage by turns",
			in:       ready(Input{Intent: classify("ok", nil), Turns: 6}),
			wantKind: KindGuidance,
			wantTmpl: TemplateChecking,
		},
		{
			name:     "onboarding",
			in:       Input{Plan: plan.StateNoGoals, Intent: classify("done", nil)},
			wantKind: KindGuidance,
			wantTmpl: TemplateOnboarding,
		},
		{
			name:     "plan complete",
			in:       Input{Plan: plan.StatePlanComplete, GoalID: "g1"},
			wantKind: KindGuidance,
			wantTmpl: TemplatePlanComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.in)
			if d.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", d.Kind, tt.wantKind)
			}
			if tt.wantTmpl != "" && d.Template != tt.wantTmpl {
				t.Fatalf("template = %s, want %s", d.Template, tt.wantTmpl)
			}
			if d.StaleDropped != tt.wantStale {
				t.Fatalf("stale = %v, want %v", d.StaleDropped, tt.wantStale)
			}
			if d.Kind.ShortCircuit() && d.Reply == "" {
				t.Fatal("short-circuit decisions need a reply")
			}

			sess := domain.ConversationSession{GoalID: tt.in.GoalID, ActionID: tt.in.ActionID, PendingCompletion: tt.in.Pending}
			if d.Patch != nil {
				sess = sess.Merge(*d.Patch, sess.LastUpdated)
			}
			switch {
			case tt.wantPending == nil && sess.PendingCompletion != nil:
				t.Fatalf("expected no pending completion, got %+v", sess.PendingCompletion)
			case tt.wantPending != nil && (sess.PendingCompletion == nil || *sess.PendingCompletion != *tt.wantPending):
				t.Fatalf("expected pending %+v, got %+v", tt.wantPending, sess.PendingCompletion)
			}
		})
	}
}

func TestConfirmPromptMentionsAction(t *testing.T) {
	d := Decide(ready(Input{Intent: classify("finished", nil)}))
	if !strings.Contains(d.Reply, "Walk 20 minutes") {
		t.Fatalf("expected the action title in the prompt, got %q", d.Reply)
	}
}

func TestGuidanceIncludesPlanFacts(t *testing.T) {
	got := Guidance(TemplateCompletion, GuidanceContext{
		GoalTitle:          "Run a 5k",
		ActionsCompleted:   2,
		TotalActions:       4,
		TotalMilestones:    2,
		Percent:            50,
		Tone:               "mid",
		MilestoneCompleted: true,
		NextActionTitle:    "Jog 10 minutes",
		NextMilestoneTitle: "Build base",
	})
	for _, want := range []string{"Run a 5k", "2 of 4 actions", "50%", "Jog 10 minutes", "Build base", "halfway"} {
		if !strings.Contains(got, want) {
			t.Errorf("guidance missing %q:\n%s", want, got)
		}
	}
}
