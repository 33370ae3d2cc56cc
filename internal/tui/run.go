package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Drive runs a session next to the program rendering it. When the operator
// quits the session is cancelled; when the session ends first the program
// receives SessionEndedMsg and quits. The session error wins over a clean exit.
func Drive(ctx context.Context, p *tea.Program, run func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := run(ctx)
		p.Send(SessionEndedMsg{Err: err})
		done <- err
	}()

	_, uiErr := p.Run()
	cancel()
	sessionErr := <-done
	if sessionErr != nil && !errors.Is(sessionErr, context.Canceled) {
		return sessionErr
	}
	return uiErr
}
