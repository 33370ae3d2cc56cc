package tui

import (
	"fmt"
	"strings"

	"coffeenet/internal/kanban"
	"coffeenet/internal/models"
	"coffeenet/internal/viewer"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// KitchenController receives the operator's card actions.
type KitchenController interface {
	Click(orderID uint, target models.OrderStatus)
}

// KitchenViewMsg delivers a new board snapshot from the session.
type KitchenViewMsg struct{ View viewer.KitchenView }

// SessionEndedMsg reports that the session stopped; the program quits.
type SessionEndedMsg struct{ Err error }

// KitchenModel is the kanban screen.
type KitchenModel struct {
	ctl    KitchenController
	title  string
	view   viewer.KitchenView
	column int
	row    int
	err    error
}

func NewKitchenModel(ctl KitchenController, title string) KitchenModel {
	return KitchenModel{ctl: ctl, title: title}
}

// Err is the error the session ended with, if any.
func (m KitchenModel) Err() error { return m.err }

func (m KitchenModel) Init() tea.Cmd { return nil }

func (m KitchenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case KitchenViewMsg:
		m.view = msg.View
		m.clampCursor()
	case SessionEndedMsg:
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "left", "h":
			if m.column > 0 {
				m.column--
			}
			m.clampCursor()
		case "right", "l":
			if m.column < len(kanban.Buckets)-1 {
				m.column++
			}
			m.clampCursor()
		case "up", "k":
			if m.row > 0 {
				m.row--
			}
		case "down", "j":
			m.row++
			m.clampCursor()
		case "1", "2":
			order, ok := m.selected()
			if !ok {
				break
			}
			actions := models.ActionsFor(order.Status)
			i := int(msg.String()[0] - '1')
			if i < len(actions) {
				m.ctl.Click(order.ID, actions[i].Target)
			}
		}
	}
	return m, nil
}

func (m *KitchenModel) clampCursor() {
	n := m.view.Board.Count(kanban.Buckets[m.column])
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m KitchenModel) selected() (models.Order, bool) {
	cards := m.view.Board.Cards(kanban.Buckets[m.column])
	if m.row < len(cards) {
		return cards[m.row], true
	}
	return models.Order{}, false
}

func (m KitchenModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	if m.view.Board.Stale {
		b.WriteString(" " + staleStyle.Render("reconectando..."))
	}
	b.WriteString("\n\n")

	columns := make([]string, 0, len(kanban.Buckets))
	for i, status := range kanban.Buckets {
		columns = append(columns, m.renderColumn(i, status))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	b.WriteString("\n")

	for _, n := range m.view.Notices {
		b.WriteString(noticeStyle.Render(n) + "\n")
	}
	b.WriteString(helpStyle.Render("←/→ coluna • ↑/↓ pedido • 1/2 ações • q sair"))
	return docStyle.Render(b.String())
}

func (m KitchenModel) renderColumn(index int, status models.OrderStatus) string {
	cards := m.view.Board.Cards(status)
	lines := []string{lipgloss.NewStyle().Bold(true).Render(kanban.Title(status, len(cards)))}
	if len(cards) == 0 {
		lines = append(lines, helpStyle.Render("Nenhum pedido"))
	}
	for i, o := range cards {
		style := cardStyle
		if index == m.column && i == m.row {
			style = selectedCardStyle
		}
		lines = append(lines, style.Render(renderOrderCard(o)))
	}
	col := columnStyle
	if index == m.column {
		col = activeColumnStyle
	}
	return col.Render(strings.Join(lines, "\n"))
}

func renderOrderCard(o models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pedido #%d  %s\n", o.ID, o.CreatedAt.Format("15:04"))
	for _, item := range o.Items {
		fmt.Fprintf(&b, "%dx %s\n", item.Quantity, item.ProductName)
	}
	fmt.Fprintf(&b, "Total R$ %s", o.Total.StringFixed(2))
	for i, a := range models.ActionsFor(o.Status) {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, a.Label)
	}
	return b.String()
}
