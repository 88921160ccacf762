// Command ammctl is a terminal client for the AMM: pool listing, quotes,
// balances and swaps signed with a local keypair.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/solana-amm-client/internal/config"
	"github.com/aman-zulfiqar/solana-amm-client/internal/swapengine"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

// app carries the engine built once per invocation.
type app struct {
	logLevel string
	logger   *logrus.Logger
	engine   *swapengine.Engine
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	loadEnv()

	a.logger = logrus.New()
	a.logger.SetOutput(os.Stderr)
	a.logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	a.logger.SetLevel(lvl)

	cfg := config.Load()
	e, err := swapengine.NewEngineFromConfig(cmd.Context(), cfg, a.logger, nil)
	if err != nil {
		return err
	}
	a.engine = e
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Close()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:                "ammctl",
		Short:              "Quote and swap against the constant-product AMM",
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		cmdPools(a),
		cmdQuote(a),
		cmdBalances(a),
		cmdSwap(a),
		cmdRecent(a),
		cmdHalt(a),
		cmdResume(a),
		cmdFlags(a),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
