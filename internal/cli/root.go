// Package cli provides the command-line interface for capledger.
package cli

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/config"
	"github.com/javanstorm/capledger/internal/ledger"
	"github.com/javanstorm/capledger/internal/logging"
	"github.com/javanstorm/capledger/internal/store"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	dataDirFlag string

	// Set by the root command before any subcommand runs.
	cfg    *config.Config
	logger hclog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "capledger",
	Short: "capledger - capacity ledger for a single host",
	Long: `capledger tracks a host's fixed cpu, memory and storage capacity and
hands it out to VMs and named pools without ever overcommitting.

Every change is persisted before it is reported, so the ledger survives
restarts. Run "capledger serve" to expose it over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		switch cmd.Name() {
		case "version", "completion", "help":
			return nil
		}
		return loadConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: search ~/.capledger and the user config dir)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory holding the ledger records")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) error {
	c, err := config.Load(config.LoadOptions{ConfigFile: configFile, DataDir: dataDirFlag})
	if err != nil {
		return err
	}

	problems := c.Check()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(problems) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), config.FormatValidationErrors(problems))
	}

	l, err := logging.New(logging.Options{
		Level:  c.LogLevel,
		JSON:   c.LogJSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	cfg, logger = c, l
	return nil
}

// openLedger opens the configured backend and loads the ledger from it.
func openLedger() (*ledger.Ledger, error) {
	backend, err := store.Open(cfg.StoreBackend, cfg.DataDir, store.Options{LockTimeout: cfg.LockTimeout})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	l, err := ledger.New(ledger.Config{
		Store:  store.New(backend, cfg.DefaultResources(), logger),
		Logger: logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return l, nil
}
