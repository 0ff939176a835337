package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/accountpurge/internal/app"
	"github.com/prudhvinik1/accountpurge/internal/config"
	"github.com/prudhvinik1/accountpurge/internal/logger"
	"github.com/prudhvinik1/accountpurge/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "purgectl",
		Short:        "Operate the inactive-account purge tasks",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newTasksCmd(), newTokenCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Run a purge task once and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				run, err := a.Scheduler.RunNow(ctx, args[0])
				if run != nil && run.Report != "" {
					fmt.Fprintln(cmd.OutOrStdout(), run.Report)
				}
				return err
			})
		},
	}
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks and their last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Scheduler.Tasks(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, t := range tasks {
					last := "never run"
					if t.LastRun != nil {
						last = fmt.Sprintf("%s (%s)", t.LastRun.Report, t.LastRun.FinishedAt.Format(time.RFC3339))
						if !t.LastRun.Succeeded() {
							last = "failed: " + t.LastRun.Error
						}
					}
					fmt.Fprintf(out, "%-14s %-12s one_time=%-5t completed=%-5t %s\n",
						t.Key, t.Schedule, t.OneTime, t.Completed, last)
				}
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for POST /tasks/{key}/run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("ADMIN_JWT_SECRET")
			if secret == "" {
				return errors.New("ADMIN_JWT_SECRET is required")
			}
			token, err := services.NewAdminAuth(secret).IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "purgectl", "token subject recorded in the audit log")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logr, err := logger.Init(logger.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer logr.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
