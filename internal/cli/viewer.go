package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"coffeenet/internal/client"
	"coffeenet/internal/config"
	"coffeenet/internal/logging"
	"coffeenet/internal/models"
	"coffeenet/internal/tui"
	"coffeenet/internal/viewer"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// ViewerOptions holds flags for the kitchen and customer commands.
type ViewerOptions struct {
	*RootOptions
	Server   string
	Email    string
	Password string
}

func newViewerCommand(rootOpts *RootOptions, use, short, email string, run func(ctx context.Context, cfg *config.Config, api *client.Client, log *slog.Logger) error) *cobra.Command {
	opts := &ViewerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if opts.Server != "" {
				cfg.Viewer.ServerURL = opts.Server
			}
			log, closeLog, err := viewerLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			api := client.New(cfg.Viewer.ServerURL, cfg.Viewer.RequestTimeout)
			if _, err := api.Login(ctx, opts.Email, opts.Password); err != nil {
				return fmt.Errorf("login as %s failed: %w", opts.Email, err)
			}
			log.Info("logged in", "email", opts.Email, "server", cfg.Viewer.ServerURL)
			return run(ctx, cfg, api, log)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "API base URL")
	cmd.Flags().StringVar(&opts.Email, "email", email, "login email")
	cmd.Flags().StringVar(&opts.Password, "password", "123", "login password")

	return cmd
}

// viewerLogger writes to the configured file so log lines do not tear the UI.
func viewerLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Viewer.LogFile == "" {
		return logging.NewWithWriter(io.Discard, cfg.LogLevel), func() {}, nil
	}
	f, err := os.OpenFile(cfg.Viewer.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open viewer log: %w", err)
	}
	return logging.NewWithWriter(f, cfg.LogLevel), func() { f.Close() }, nil
}

func viewerOptions(cfg *config.Config, log *slog.Logger) viewer.Options {
	return viewer.Options{
		MaxBackoff:     cfg.Viewer.MaxBackoff,
		RequestTimeout: cfg.Viewer.RequestTimeout,
		Log:            log,
	}
}

// NewKitchenCommand creates the kitchen command.
func NewKitchenCommand(rootOpts *RootOptions) *cobra.Command {
	return newViewerCommand(rootOpts, "kitchen", "Open the kitchen board", "cozinha@teste.com", runKitchen)
}

// NewCustomerCommand creates the customer command.
func NewCustomerCommand(rootOpts *RootOptions) *cobra.Command {
	return newViewerCommand(rootOpts, "customer", "Open the customer chat", "cliente@teste.com", runCustomer)
}

func runKitchen(ctx context.Context, cfg *config.Config, api *client.Client, log *slog.Logger) error {
	me, err := api.Me(ctx)
	if err != nil {
		return err
	}
	if me.Role != models.RoleKitchen {
		return fmt.Errorf("%w: %s is not a kitchen account", models.ErrUnauthorized, me.Email)
	}

	var p *tea.Program
	session := viewer.NewKitchenSession(api, viewerOptions(cfg, log), func(v viewer.KitchenView) {
		p.Send(tui.KitchenViewMsg{View: v})
	})
	p = tea.NewProgram(tui.NewKitchenModel(session, "CoffeeNet · Cozinha"), tea.WithAltScreen(), tea.WithContext(ctx))
	return tui.Drive(ctx, p, session.Run)
}

func runCustomer(ctx context.Context, cfg *config.Config, api *client.Client, log *slog.Logger) error {
	me, err := api.Me(ctx)
	if err != nil {
		return err
	}
	if me.Role != models.RoleCustomer {
		return fmt.Errorf("%w: %s is not a customer account", models.ErrUnauthorized, me.Email)
	}

	var p *tea.Program
	session := viewer.NewCustomerSession(api, viewerOptions(cfg, log), cfg.Viewer.EvictAfter, func(v viewer.CustomerView) {
		p.Send(tui.CustomerViewMsg{View: v})
	})
	p = tea.NewProgram(tui.NewCustomerModel(session, "CoffeeNet"), tea.WithAltScreen(), tea.WithContext(ctx))
	return tui.Drive(ctx, p, session.Run)
}
