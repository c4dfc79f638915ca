package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valyc0/fraudM/internal/app"
	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/realtime/bus"
)

var rootCmd = &cobra.Command{
	Use:   "rulemanager",
	Short: "Fraud rule lifecycle service",
	Long: `Stores fraud detection rules, generates their Flink artifacts from a
natural-language description and tracks each rule through
created -> validating -> validated -> deploying -> deployed.

Without a subcommand the HTTP API is served.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rule management HTTP API",
	RunE:  runServe,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the rule store schema",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the rules collection when it is missing",
	RunE:  runSchemaInit,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect rule lifecycle events",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print rule events from the Redis channel as JSON lines",
	RunE:  runEventsWatch,
}

func init() {
	schemaCmd.AddCommand(schemaInitCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
	rootCmd.AddCommand(serveCmd, schemaCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap() (*logger.Logger, app.Config, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, app.Config{}, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Loading environment variables...")
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		log.Sync()
		return nil, app.Config{}, err
	}
	return log, cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, cfg, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to build app", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()

	a.Start()
	if err := a.Run(ctx); err != nil {
		log.Error("HTTP server stopped", "error", err)
		return err
	}
	log.Info("Shut down cleanly")
	return nil
}

func runSchemaInit(cmd *cobra.Command, _ []string) error {
	log, cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	if err := app.InitSchema(cmd.Context(), log, cfg); err != nil {
		log.Error("Schema initialization failed", "error", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rules schema ready on %s\n", cfg.StoreBackend)
	return nil
}

func runEventsWatch(cmd *cobra.Command, _ []string) error {
	log, cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bus.NewRedisBus(ctx, log, cfg.Redis)
	if err != nil {
		return err
	}
	defer b.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	if err := b.StartForwarder(ctx, func(ev rules.Event) {
		_ = enc.Encode(ev)
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
