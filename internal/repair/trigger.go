package repair

import "fmt"

// TriggerKind distinguishes automatic error repairs from operator requests.
type TriggerKind int

const (
	// TriggerError is a classified error line from the supervised process.
	TriggerError TriggerKind = iota
	// TriggerInstruction is free text typed by the operator.
	TriggerInstruction
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerError:
		return "error"
	case TriggerInstruction:
		return "instruction"
	}
	return fmt.Sprintf("TriggerKind(%d)", int(k))
}

// Trigger starts a repair episode.
type Trigger struct {
	Kind    TriggerKind
	Text    string   // the matched error line or the instruction
	Tag     string   // classifier tag for errors
	Context string   // trailing output at the time of the trigger
	Images  []string // image paths attached to an instruction
}

// Result reports how an episode ended.
type Result struct {
	Success   bool
	Attempts  int
	EpisodeID string
	Err       error
}
