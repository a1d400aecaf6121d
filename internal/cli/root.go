// Package cli implements treectl, a command line client for a tree server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cleantree/internal/client"
	"cleantree/internal/config"
)

// Config keys, also usable as TREECTL_* environment variables.
const (
	keyServer          = "server"
	keyTree            = "tree"
	keyToken           = "token"
	keyJSON            = "json"
	keyLogLevel        = "log_level"
	keyLogDir          = "log_dir"
	keyConfirmTimeout  = "confirm_timeout"
	keyAutoExpandDelay = "auto_expand_delay"
)

// app is the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	client  *client.Client
	logger  *slog.Logger
	logFile *os.File
}

// NewRootCmd builds the treectl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "treectl",
		Short:         "Inspect and edit trees on a tree server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logFile != nil {
				a.logFile.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/treectl/config.yaml)")
	flags.String(keyServer, "http://localhost:8080", "tree server URL")
	flags.StringP(keyTree, "t", "demo", "tree id")
	flags.String(keyToken, "", "bearer token")
	flags.Bool(keyJSON, false, "print JSON instead of text")
	flags.String("log-level", "warn", "console log level")
	for _, name := range []string{keyServer, keyTree, keyToken, keyJSON} {
		a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))

	cmd.AddCommand(
		newTreesCmd(a),
		newGetCmd(a),
		newChildrenCmd(a),
		newMoveCmd(a),
		newCreateCmd(a),
		newDeleteCmd(a),
		newOpenCmd(a, true),
		newOpenCmd(a, false),
		newSeedCmd(a),
		newWatchCmd(a),
		newShellCmd(a),
	)
	return cmd
}

// Execute runs treectl and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command) error {
	v := a.v
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "treectl"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TREECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyConfirmTimeout, config.DefaultConfirmTimeout)
	v.SetDefault(keyAutoExpandDelay, config.DefaultAutoExpandDelay)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the default location is optional
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var logFile io.Writer
	if dir := v.GetString(keyLogDir); dir != "" {
		f, err := config.SetupLogFile(dir, "treectl", config.MaxLogFiles)
		if err != nil {
			return err
		}
		a.logFile = f
		logFile = f
	}
	a.logger = config.NewLogger("dev", config.ParseLevel(v.GetString(keyLogLevel)), cmd.ErrOrStderr(), logFile)

	c, err := client.New(v.GetString(keyServer), v.GetString(keyTree),
		client.WithToken(v.GetString(keyToken)),
		client.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.client = c
	a.logger.Debug("treectl configured",
		"server", v.GetString(keyServer),
		"tree_id", c.TreeID(),
		"config_file", v.ConfigFileUsed(),
	)
	return nil
}

func (a *app) jsonOutput() bool { return a.v.GetBool(keyJSON) }

func (a *app) duration(key string) time.Duration { return a.v.GetDuration(key) }

// printJSON writes v indented, for --json output.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandContext bounds one-shot commands. Long-running ones use the
// command's own context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), time.Minute)
}
