// Package cli implements the pacing CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thorwhalen/pacing/internal/config"
	"github.com/thorwhalen/pacing/internal/observability/logging"
)

var (
	configPath string
	modeFlag   string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "pacing",
	Short:         "Clinical session orchestrator with concurrent transcript agents",
	Long:          "Runs clinical sessions: audio is transcribed chunk by chunk and every transcript event is fanned out to the registered agents, including the uncertainty auditor's review queue.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in defaults + environment)")
	RootCmd.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "", "Retention mode: persist|dev or ephemeral|prod (overrides config)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

// loadConfig resolves the configuration and initializes logging on logOut.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}
	if modeFlag != "" {
		cfg.Session.Mode = modeFlag
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	}, logOut); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
