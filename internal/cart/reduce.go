package cart

import (
	"errors"
	"fmt"
	"strings"

	"coffeenet/internal/models"
	"coffeenet/internal/textnorm"

	"github.com/shopspring/decimal"
)

var (
	finalizeWords = textnorm.NewSet(
		"finalizar", "confirmar", "só isso", "é só isso", "eh so isso", "não",
		"finalize", "confirm", "done", "that's all", "no",
	)
	menuWords = textnorm.NewSet("cardápio", "menu")
)

// State is the cart of one customer session.
type State struct {
	Phase      Phase
	Lines      []models.CartLine
	Suggestion *models.CartLine
	// Seq identifies the latest outbound request; replies carrying an older
	// value are ignored.
	Seq  uint64
	Menu []models.Product
}

// Total sums the candidate lines.
func (s State) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

type (
	TextInput        struct{ Text string }
	ActionChosen     struct{ Action Action }
	MenuReceived     struct{ Products []models.Product }
	AssistantReplied struct {
		Seq   uint64
		Reply models.ChatReply
	}
	AssistantFailed struct {
		Seq uint64
		Err error
	}
	SubmitSucceeded struct {
		Seq   uint64
		Order models.Order
	}
	SubmitFailed struct {
		Seq uint64
		Err error
	}
)

func (TextInput) isEvent()        {}
func (ActionChosen) isEvent()     {}
func (MenuReceived) isEvent()     {}
func (AssistantReplied) isEvent() {}
func (AssistantFailed) isEvent()  {}
func (SubmitSucceeded) isEvent()  {}
func (SubmitFailed) isEvent()     {}

// Effect is work Reduce asks the runtime to do.
type Effect interface{ isEffect() }

type (
	// Say shows an assistant message in the chat.
	Say struct{ Text string }
	// AskAssistant sends the utterance and the current cart for interpretation.
	AskAssistant struct {
		Seq     uint64
		Request models.ChatRequest
	}
	// SubmitOrder places the order. Lines carry product ids and quantities only.
	SubmitOrder struct {
		Seq   uint64
		Lines []models.LineRequest
	}
)

func (Say) isEffect()          {}
func (AskAssistant) isEffect() {}
func (SubmitOrder) isEffect()  {}

// Reduce applies one event. It never mutates s.
func Reduce(s State, e Event) (State, []Effect) {
	switch e := e.(type) {
	case TextInput:
		return onText(s, e.Text)
	case ActionChosen:
		return onAction(s, e.Action)
	case MenuReceived:
		first := s.Menu == nil
		s.Menu = append([]models.Product{}, e.Products...)
		if first {
			return s, []Effect{Say{Text: "Olá! Bem-vindo ao CoffeeNet! " + FormatMenu(s.Menu, "O que você gostaria de pedir?")}}
		}
		return s, nil
	case AssistantReplied:
		if s.Phase != AwaitingAssistant || e.Seq != s.Seq {
			return s, nil
		}
		return onReply(s, e.Reply)
	case AssistantFailed:
		if s.Phase != AwaitingAssistant || e.Seq != s.Seq {
			return s, nil
		}
		s.Phase = settle(s)
		return s, []Effect{Say{Text: "Erro ao falar com o assistente: " + errorText(e.Err)}}
	case SubmitSucceeded:
		if s.Phase != Submitting || e.Seq != s.Seq {
			return s, nil
		}
		return State{Phase: Idle, Seq: s.Seq, Menu: s.Menu}, []Effect{
			Say{Text: fmt.Sprintf("Seu pedido #%d foi confirmado e enviado para a cozinha! Total R$ %s", e.Order.ID, e.Order.Total.StringFixed(2))},
		}
	case SubmitFailed:
		if s.Phase != Submitting || e.Seq != s.Seq {
			return s, nil
		}
		s.Phase = ConfirmPending
		if errors.Is(e.Err, models.ErrStockConflict) {
			return s, []Effect{Say{Text: "Estoque insuficiente: " + errorText(e.Err) + ". Ajuste o pedido ou cancele."}}
		}
		return s, []Effect{Say{Text: "Erro ao confirmar pedido: " + errorText(e.Err)}}
	}
	return s, nil
}

func onText(s State, text string) (State, []Effect) {
	text = strings.TrimSpace(text)
	if text == "" || !InputEnabled(s) {
		return s, nil
	}
	if menuWords.Contains(text) {
		return s, []Effect{Say{Text: "Claro! " + FormatMenu(s.Menu, "O que mais deseja pedir?")}}
	}
	if finalizeWords.Contains(text) {
		return finalize(s)
	}

	s.Seq++
	s.Phase = AwaitingAssistant
	req := models.ChatRequest{Text: text, CurrentItems: lineRequests(s.Lines)}
	return s, []Effect{AskAssistant{Seq: s.Seq, Request: req}}
}

func onReply(s State, reply models.ChatReply) (State, []Effect) {
	s.Lines = append([]models.CartLine{}, reply.ParsedItems...)
	var effects []Effect
	if reply.Recommendation != "" {
		effects = append(effects, Say{Text: reply.Recommendation})
	}

	switch {
	case reply.Intent == models.IntentSuggest && reply.SuggestedItem != nil:
		suggestion := *reply.SuggestedItem
		s.Suggestion = &suggestion
		s.Phase = SuggestionPending
	default:
		s.Suggestion = nil
		s.Phase = settle(s)
	}
	return s, effects
}

func onAction(s State, action Action) (State, []Effect) {
	if action == ActionCancel {
		// Bumping Seq discards whatever reply or submission is still in flight.
		return State{Phase: Idle, Seq: s.Seq + 1, Menu: s.Menu}, []Effect{
			Say{Text: "Pedido cancelado. Você pode começar de novo se quiser."},
		}
	}
	if !offers(s, action) {
		return s, nil
	}

	switch action {
	case ActionAccept:
		added := *s.Suggestion
		s.Lines = mergeLine(s.Lines, added)
		s.Suggestion = nil
		s.Phase = PostSuggestionPending
		return s, []Effect{Say{Text: fmt.Sprintf("Ok, adicionei %s ao seu pedido. O que deseja fazer agora?", added.Name)}}
	case ActionReject:
		s.Suggestion = nil
		s.Phase = PostSuggestionPending
		return s, []Effect{Say{Text: "Ok, sem o item extra. O que deseja fazer agora?"}}
	case ActionAddMore:
		s.Phase = ConfirmPending
		return s, []Effect{Say{Text: "Ok, pode adicionar mais itens ou digite 'finalizar'."}}
	case ActionFinalize:
		return finalize(s)
	}
	return s, nil
}

func offers(s State, action Action) bool {
	for _, a := range AvailableActions(s) {
		if a == action {
			return true
		}
	}
	return false
}

func finalize(s State) (State, []Effect) {
	if len(s.Lines) == 0 {
		s.Phase = Idle
		s.Suggestion = nil
		return s, []Effect{Say{Text: "Seu pedido está vazio. Digite algo para pedir ou cancele."}}
	}
	s.Seq++
	s.Phase = Submitting
	return s, []Effect{SubmitOrder{Seq: s.Seq, Lines: lineRequests(s.Lines)}}
}

// settle picks the resting phase after the assistant answered without a suggestion.
func settle(s State) Phase {
	if len(s.Lines) > 0 {
		return ConfirmPending
	}
	return Idle
}

// mergeLine adds line to lines, increasing the quantity of an existing line
// for the same product instead of duplicating it. lines is not modified.
func mergeLine(lines []models.CartLine, line models.CartLine) []models.CartLine {
	out := make([]models.CartLine, 0, len(lines)+1)
	merged := false
	for _, l := range lines {
		if l.ProductID == line.ProductID {
			l.Quantity += line.Quantity
			merged = true
		}
		out = append(out, l)
	}
	if !merged {
		out = append(out, line)
	}
	return out
}

func lineRequests(lines []models.CartLine) []models.LineRequest {
	out := make([]models.LineRequest, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Request())
	}
	return out
}

func errorText(err error) string {
	if err == nil {
		return "erro desconhecido"
	}
	return err.Error()
}

// FormatMenu renders the menu as a chat message ending with prompt.
func FormatMenu(products []models.Product, prompt string) string {
	if len(products) == 0 {
		return "Desculpe, estamos sem produtos no momento."
	}
	var b strings.Builder
	b.WriteString("Nosso cardápio de hoje é:\n\n")
	for _, p := range products {
		if p.OnPromotion && p.PromoPrice.Valid {
			fmt.Fprintf(&b, "- %s (Promoção: R$ %s)\n", p.Name, p.PromoPrice.Decimal.StringFixed(2))
			continue
		}
		fmt.Fprintf(&b, "- %s (R$ %s)\n", p.Name, p.Price.StringFixed(2))
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}
