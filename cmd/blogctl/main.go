package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ButyrinIA/blogsync/internal/api"
	"github.com/ButyrinIA/blogsync/internal/config"
	"github.com/ButyrinIA/blogsync/internal/credstore"
	"github.com/ButyrinIA/blogsync/internal/logging"
	"github.com/ButyrinIA/blogsync/internal/metrics"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app собирает синхронизатор для одной команды
type app struct {
	store *state.Store
	out   io.Writer
}

var (
	configPath string
	cli        *app

	rootCmd = &cobra.Command{
		Use:           "blogctl",
		Short:         "Command line client for the blog API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cli = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cli == nil {
				return nil
			}
			return cli.store.Close()
		},
	}
)

func newApp(ctx context.Context, path string, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log, errOut)

	creds, err := credstore.Open(cfg.Client.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	client := api.New(cfg.API, creds, logger)

	store := state.New(state.Deps{
		API:         client,
		Credentials: creds,
		Events:      client,
		Recorder:    metrics.NewSyncRecorder(prometheus.NewRegistry()),
		Logger:      logger,
		PageSize:    cfg.Client.PageSize,
	})
	if err := store.Session.Restore(ctx); err != nil {
		logger.Warn("Failed to restore session", "error", err)
	}

	return &app{store: store, out: out}, nil
}

// identity loads the signed-in user, or fails when nobody is signed in.
func (a *app) identity(ctx context.Context) (*models.Identity, error) {
	if a.store.Session.State() != state.Authenticated {
		return nil, errors.New("not signed in, run `blogctl login` first")
	}
	if me := a.store.Session.Identity(); me != nil {
		return me, nil
	}
	me, err := a.store.Session.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if me == nil {
		return nil, errors.New("session expired, sign in again")
	}
	return me, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(postsCmd, commentsCmd, repliesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
