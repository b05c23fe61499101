package dialogue

import "fmt"

type Phase int

const (
	PhaseScripted Phase = iota
	PhaseAwaitingConfirmation
	PhaseGeneratingEmail
	PhaseFreeChat
)

func (p Phase) String() string {
	switch p {
	case PhaseScripted:
		return "scripted"
	case PhaseAwaitingConfirmation:
		return "awaiting-confirmation"
	case PhaseGeneratingEmail:
		return "generating-email"
	case PhaseFreeChat:
		return "free-chat"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the position of a conversation in the dialogue. Only Scripted
// states carry a question index. States are comparable with ==.
type State struct {
	phase    Phase
	question int
}

func Scripted(question int) State {
	return State{phase: PhaseScripted, question: question}
}

func AwaitingConfirmation() State {
	return State{phase: PhaseAwaitingConfirmation}
}

func GeneratingEmail() State {
	return State{phase: PhaseGeneratingEmail}
}

func FreeChat() State {
	return State{phase: PhaseFreeChat}
}

func (s State) Phase() Phase {
	return s.phase
}

// Question returns the index of the scripted question in progress.
func (s State) Question() (int, bool) {
	if s.phase != PhaseScripted {
		return 0, false
	}
	return s.question, true
}

func (s State) IsScripted() bool {
	return s.phase == PhaseScripted
}

func (s State) String() string {
	if s.phase == PhaseScripted {
		return fmt.Sprintf("scripted(%d)", s.question)
	}
	return s.phase.String()
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
