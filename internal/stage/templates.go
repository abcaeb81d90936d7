package stage

import (
	"fmt"
	"strings"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
)

// Template names a block of guidance handed to the language model.
type Template string

const (
	TemplateInitial      Template = "initial"
	TemplateGuiding      Template = "guiding"
	TemplateChecking     Template = "checking"
	TemplateEvaluating   Template = "evaluating"
	TemplateCouldnt      Template = "couldnt"
	TemplateAdjust       Template = "adjust"
	TemplateCompletion   Template = "completion"
	TemplateOnboarding   Template = "onboarding"
	TemplateNoPlan       Template = "no_plan"
	TemplatePlanComplete Template = "plan_complete"
)

func templateForStage(s Stage) Template {
	switch s {
	case Guiding:
		return TemplateGuiding
	case Checking:
		return TemplateChecking
	case Evaluating:
		return TemplateEvaluating
	default:
		return TemplateInitial
	}
}

// GuidanceContext carries the plan facts a template may mention.
type GuidanceContext struct {
	GoalTitle         string
	MainGoal          string
	MilestoneTitle    string
	ActionTitle       string
	ActionDescription string

	ActionsCompleted    int
	TotalActions        int
	MilestonesCompleted int
	TotalMilestones     int
	Percent             int
	Tone                progress.Tone

	// Completion details, set for TemplateCompletion.
	MilestoneCompleted bool
	GoalCompleted      bool
	NextActionTitle    string
	NextMilestoneTitle string

	// GoalTitles lists plan-less goals for TemplateNoPlan.
	GoalTitles []string
}

const persona = "You are a warm, concise mentor helping the user make steady progress on a personal goal. " +
	"Keep answers short and concrete, ask at most one question, and never invent plan items."

// Guidance renders the system prompt for a template.
func Guidance(t Template, gc GuidanceContext) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if gc.GoalTitle != "" {
		fmt.Fprintf(&b, "Goal: %s\n", gc.GoalTitle)
		if gc.MainGoal != "" && gc.MainGoal != gc.GoalTitle {
			fmt.Fprintf(&b, "Main objective: %s\n", gc.MainGoal)
		}
		fmt.Fprintf(&b, "Progress: %d of %d actions, %d of %d milestones (%d%%).\n",
			gc.ActionsCompleted, gc.TotalActions, gc.MilestonesCompleted, gc.TotalMilestones, gc.Percent)
	}
	if gc.MilestoneTitle != "" {
		fmt.Fprintf(&b, "Current milestone: %s\n", gc.MilestoneTitle)
	}
	if gc.ActionTitle != "" {
		fmt.Fprintf(&b, "Current action: %s\n", gc.ActionTitle)
		if gc.ActionDescription != "" {
			fmt.Fprintf(&b, "Action details: %s\n", gc.ActionDescription)
		}
	}
	b.WriteString("\n")
	b.WriteString(instruction(t, gc))
	return b.String()
}

func instruction(t Template, gc GuidanceContext) string {
	switch t {
	case TemplateInitial:
		return "Introduce today's action in one or two sentences and ask whether it is clear. Do not ask about completion yet."
	case TemplateGuiding:
		return "Help the user understand and perform the action with practical tips. Do not ask whether it is done; status checks come later."
	case TemplateChecking:
		return "Ask how the action is going and stay supportive. Offer help with whatever is blocking them."
	case TemplateEvaluating:
		return "Invite the user to tell you where they stand: they can say \"done\", \"couldn't do it\" or ask to \"adjust\" the action."
	case TemplateCouldnt:
		return "The user could not complete the action. Be empathetic, normalize the setback and propose a smaller or easier next step without changing the plan yourself."
	case TemplateAdjust:
		return "The user wants to change the action. Collaborate on a realistic adjustment, asking what would make it doable, and summarize the agreed change."
	case TemplateCompletion:
		return completionInstruction(gc)
	case TemplateOnboarding:
		return "The user has no goal yet. Welcome them and help them describe one long-term goal they care about."
	case TemplateNoPlan:
		if len(gc.GoalTitles) > 0 {
			return fmt.Sprintf("The user has goals without a plan (%s). Help them break one of them into milestones and first actions.",
				strings.Join(gc.GoalTitles, "; "))
		}
		return "The user's goals have no plan yet. Help them break one into milestones and first actions."
	case TemplatePlanComplete:
		return "Every action of this goal is complete. Celebrate the achievement and invite the user to define a new goal."
	default:
		return ""
	}
}

func completionInstruction(gc GuidanceContext) string {
	var b strings.Builder
	b.WriteString("The user just completed an action. ")
	b.WriteString(toneLine(gc.Tone))
	switch {
	case gc.GoalCompleted:
		b.WriteString(" This finished the whole goal: congratulate them warmly and invite them to set a new goal.")
	case gc.MilestoneCompleted:
		fmt.Fprintf(&b, " This also closed a milestone. Next up is \"%s\" in milestone \"%s\".", gc.NextActionTitle, gc.NextMilestoneTitle)
	case gc.NextActionTitle != "":
		fmt.Fprintf(&b, " Next up is \"%s\".", gc.NextActionTitle)
	}
	return b.String()
}

func toneLine(t progress.Tone) string {
	switch t {
	case progress.ToneStarting, progress.ToneEarly:
		return "They are just getting started, so celebrate the first steps and build momentum."
	case progress.ToneMid:
		return "They are about halfway there; acknowledge the steady effort."
	case progress.ToneLate:
		return "The finish line is close; celebrate and keep the energy up."
	case progress.ToneComplete:
		return "Everything is done; celebrate big."
	default:
		return "Celebrate the progress."
	}
}
