// Package cart is the customer-side conversational cart. Reduce is a pure
// function; the viewer runtime performs the effects it returns and feeds
// their outcomes back as events.
package cart

import (
	"fmt"
	"strings"
)

// Phase is the stage of the conversation.
type Phase int

const (
	Idle Phase = iota
	AwaitingAssistant
	SuggestionPending
	ConfirmPending
	PostSuggestionPending
	Submitting
)

var phaseNames = [...]string{
	Idle:                  "idle",
	AwaitingAssistant:     "awaiting_assistant",
	SuggestionPending:     "suggestion_pending",
	ConfirmPending:        "confirm_pending",
	PostSuggestionPending: "post_suggestion_pending",
	Submitting:            "submitting",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Action is a button the customer can press.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionAddMore  Action = "add_more"
	ActionFinalize Action = "finalize"
	ActionCancel   Action = "cancel"
)

// ParseAction decodes an action name coming from a UI control.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionReject, ActionAddMore, ActionFinalize, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown cart action %q", s)
}

// Label is the button caption.
func (a Action) Label() string {
	switch a {
	case ActionAccept:
		return "Sim, adicionar"
	case ActionReject:
		return "Não, obrigado"
	case ActionAddMore:
		return "Adicionar mais"
	case ActionFinalize:
		return "Finalizar pedido"
	case ActionCancel:
		return "Cancelar"
	}
	return string(a)
}

// AvailableActions lists the buttons shown in the state's phase.
func AvailableActions(s State) []Action {
	switch s.Phase {
	case SuggestionPending:
		return []Action{ActionAccept, ActionReject, ActionCancel}
	case ConfirmPending, PostSuggestionPending:
		return []Action{ActionAddMore, ActionFinalize, ActionCancel}
	}
	return nil
}

// InputEnabled reports whether free text is accepted.
func InputEnabled(s State) bool {
	return s.Phase == Idle || s.Phase == ConfirmPending
}
