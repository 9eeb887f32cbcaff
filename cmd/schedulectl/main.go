package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler-api/internal/service"
	"github.com/noah-isme/lesson-scheduler-api/pkg/config"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
	"github.com/noah-isme/lesson-scheduler-api/pkg/logger"
)

type cliOptions struct {
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Offline tooling for the lesson scheduler",
		Long:          "schedulectl runs the scheduling engine on CSV rosters, checks recurring lessons, issues access tokens and applies the database schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log solver progress to stderr")

	root.AddCommand(
		newGenerateCmd(opts),
		newValidateCmd(opts),
		newTokenCmd(),
		newMigrateCmd(opts),
	)
	return root
}

// loadRuntime reads configuration and builds a stderr logger for a command.
func loadRuntime(opts *cliOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.NewCLI(opts.verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func newEngine(cfg *config.Config, logr *zap.Logger) *service.Engine {
	return service.NewEngine(service.EngineConfig{
		MinClassSize: cfg.Scheduler.MinClassSize,
		MaxClassSize: cfg.Scheduler.MaxClassSize,
		SoftWeight:   cfg.Scheduler.SoftWeight,
		PhaseABudget: cfg.Scheduler.PhaseABudget,
		PhaseBBudget: cfg.Scheduler.PhaseBBudget,
		TotalBudget:  cfg.Scheduler.TotalBudget,
	}, cpsat.NewGiniSolver(logr.Named("sat")), logr.Named("engine"), nil)
}
