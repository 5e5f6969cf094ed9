// Package main is ledgerctl, the operator CLI for the LifeLedger job queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kiranshivaraju/lifeledger/internal/app"
	"github.com/kiranshivaraju/lifeledger/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	v   *viper.Viper
	out io.Writer
}

// flagEnv maps persistent flags onto the environment variables they override.
var flagEnv = []struct {
	flag, env, usage string
}{
	{"store", "STORE_DRIVER", "store driver (postgres or memory)"},
	{"database-url", "DATABASE_URL", "Postgres connection URL"},
	{"redis-url", "REDIS_URL", "Redis URL for events and shared rate limits"},
	{"log-level", "LOG_LEVEL", "log level (debug, info, warn, error)"},
	{"batch-size", "ORCHESTRATOR_BATCH_SIZE", "jobs claimed per agent per poll"},
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and drive the LifeLedger job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfgLevel := slog.LevelWarn
			if lvl := c.v.GetString("LOG_LEVEL"); lvl != "" {
				_ = cfgLevel.UnmarshalText([]byte(lvl))
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfgLevel})))
			return nil
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	for _, f := range flagEnv {
		pf.String(f.flag, "", f.usage+" (env "+f.env+")")
		_ = c.v.BindPFlag(strings.ToLower(f.env), pf.Lookup(f.flag))
	}
	pf.Bool("json", false, "output JSON")
	_ = c.v.BindPFlag("json", pf.Lookup("json"))

	root.AddCommand(
		c.enqueueCmd(),
		c.entryCmd(),
		c.statusCmd(),
		c.cancelCmd(),
		c.logsCmd(),
		c.eventsCmd(),
		c.healthCmd(),
		c.migrateCmd(),
		c.runOnceCmd(),
	)
	return root
}

// loadConfig reads the environment with flags layered on top.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.LoadFrom(c.v.GetString)
}

// withApp builds the full application for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
