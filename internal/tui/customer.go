package tui

import (
	"fmt"
	"strings"

	"coffeenet/internal/cart"
	"coffeenet/internal/tracker"
	"coffeenet/internal/viewer"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// CustomerController receives what the customer types and presses.
type CustomerController interface {
	Send(text string)
	Choose(action cart.Action)
}

// CustomerViewMsg delivers a new chat snapshot from the session.
type CustomerViewMsg struct{ View viewer.CustomerView }

type focus int

const (
	focusInput focus = iota
	focusActions
)

// CustomerModel is the chat screen with the order cards beside it.
type CustomerModel struct {
	ctl     CustomerController
	title   string
	view    viewer.CustomerView
	input   textinput.Model
	spinner spinner.Model
	chat    viewport.Model
	focus   focus
	button  int
	err     error
}

func NewCustomerModel(ctl CustomerController, title string) CustomerModel {
	ti := textinput.New()
	ti.Placeholder = "Ex.: quero dois cappuccinos"
	ti.CharLimit = 280
	ti.Width = 50
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return CustomerModel{
		ctl:     ctl,
		title:   title,
		input:   ti,
		spinner: s,
		chat:    viewport.New(60, 16),
	}
}

// Err is the error the session ended with, if any.
func (m CustomerModel) Err() error { return m.err }

func (m CustomerModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m CustomerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case CustomerViewMsg:
		m.view = msg.View
		if len(m.view.Actions) == 0 {
			m.setFocus(focusInput)
		} else if !m.view.InputEnabled {
			m.setFocus(focusActions)
		}
		if m.button >= len(m.view.Actions) {
			m.button = 0
		}
		m.chat.SetContent(renderMessages(m.view.Messages, m.chat.Width))
		m.chat.GotoBottom()
		return m, nil
	case SessionEndedMsg:
		m.err = msg.Err
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.chat.Width = msg.Width/2 + 10
		m.chat.Height = msg.Height - 10
		m.chat.SetContent(renderMessages(m.view.Messages, m.chat.Width))
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.focus == focusInput && len(m.view.Actions) > 0 {
				m.setFocus(focusActions)
			} else if m.view.InputEnabled {
				m.setFocus(focusInput)
			}
			return m, nil
		case "esc":
			m.ctl.Choose(cart.ActionCancel)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.chat, cmd = m.chat.Update(msg)
			return m, cmd
		}
		if m.focus == focusActions {
			return m.updateActions(msg), nil
		}
		if msg.Type == tea.KeyEnter {
			if text := strings.TrimSpace(m.input.Value()); text != "" && m.view.InputEnabled {
				m.ctl.Send(text)
				m.input.Reset()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m CustomerModel) updateActions(msg tea.KeyMsg) CustomerModel {
	switch msg.String() {
	case "left", "h":
		if m.button > 0 {
			m.button--
		}
	case "right", "l":
		if m.button < len(m.view.Actions)-1 {
			m.button++
		}
	case "enter", " ":
		if m.button < len(m.view.Actions) {
			m.ctl.Choose(m.view.Actions[m.button])
		}
	}
	return m
}

func (m *CustomerModel) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func (m CustomerModel) busy() bool {
	return m.view.Cart.Phase == cart.AwaitingAssistant || m.view.Cart.Phase == cart.Submitting
}

func (m CustomerModel) View() string {
	var left strings.Builder
	left.WriteString(m.chat.View())
	left.WriteString("\n")
	if m.busy() {
		left.WriteString(m.spinner.View() + " aguarde...\n")
	}
	if len(m.view.Cart.Lines) > 0 {
		left.WriteString(renderCart(m.view.Cart) + "\n")
	}
	if len(m.view.Actions) > 0 {
		left.WriteString(m.renderButtons() + "\n")
	}
	left.WriteString(m.input.View())

	header := titleStyle.Render(m.title)
	if m.view.Stale {
		header += " " + staleStyle.Render("reconectando...")
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().MarginRight(2).Render(left.String()),
		renderTrackerCards(m.view.Orders),
	)
	help := helpStyle.Render("enter enviar • tab botões • esc cancelar pedido • ctrl+c sair")
	return docStyle.Render(header + "\n\n" + body + "\n" + help)
}

func (m CustomerModel) renderButtons() string {
	buttons := make([]string, 0, len(m.view.Actions))
	for i, a := range m.view.Actions {
		style := buttonStyle
		if m.focus == focusActions && i == m.button {
			style = activeButtonStyle
		}
		buttons = append(buttons, style.Render(a.Label()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}

func renderMessages(messages []viewer.Message, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		var who string
		switch msg.From {
		case viewer.SpeakerCustomer:
			who = customerStyle.Render("Você:")
		case viewer.SpeakerAssistant:
			who = assistantStyle.Render("CoffeeNet:")
		default:
			lines = append(lines, wrap.Render(systemStyle.Render(msg.Text)))
			continue
		}
		lines = append(lines, wrap.Render(who+" "+msg.Text))
	}
	return strings.Join(lines, "\n")
}

func renderCart(s cart.State) string {
	var b strings.Builder
	b.WriteString("Seu pedido:\n")
	for _, l := range s.Lines {
		fmt.Fprintf(&b, "  %dx %s  R$ %s\n", l.Quantity, l.Name, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "  Total R$ %s", s.Total().StringFixed(2))
	return b.String()
}

func renderTrackerCards(cards []tracker.Card) string {
	if len(cards) == 0 {
		return columnStyle.Render(helpStyle.Render("Nenhum pedido em andamento"))
	}
	rendered := make([]string, 0, len(cards))
	for _, c := range cards {
		status := statusStyles[c.Order.Status.String()]
		rendered = append(rendered, cardStyle.Render(
			fmt.Sprintf("Pedido #%d\n%s\nTotal R$ %s", c.Order.ID, status.Render(c.Order.Status.Label()), c.Order.Total.StringFixed(2)),
		))
	}
	return columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rendered...))
}
