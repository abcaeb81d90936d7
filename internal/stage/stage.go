// Package stage decides, per turn, which guidance the mentor gives and whether the
// turn is answered by a scripted reply instead of the language model.
package stage

// Stage is where the conversation about the current action stands.
type Stage int

const (
	// Initial introduces today's action and checks it is understood.
	Initial Stage = iota
	// Guiding helps the user perform the action and defers status checks.
	Guiding
	// Checking asks how it is going.
	Checking
	// Evaluating invites the user to report done, couldn't or adjust.
	Evaluating
)

func (s Stage) String() string {
	switch s {
	case Initial:
		return "initial"
	case Guiding:
		return "guiding"
	case Checking:
		return "checking"
	case Evaluating:
		return "evaluating"
	default:
		return "unknown"
	}
}

// StageForTurn is the transition function of the stage machine. It maps the
// number of prior user turns on the current action to a stage:
// 0-1 initial, 2-4 guiding, 5-7 checking, 8+ evaluating.
func StageForTurn(turns int) Stage {
	switch {
	case turns <= 1:
		return Initial
	case turns <= 4:
		return Guiding
	case turns <= 7:
		return Checking
	default:
		return Evaluating
	}
}
