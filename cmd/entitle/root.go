package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/goentitle/internal/config"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	zerologadapter "github.com/mihaimyh/goentitle/pkg/entitle/logger/zerolog"
)

// app carries what every subcommand needs once the root command has run
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	logger entitle.Logger
	out    io.Writer
}

func newRootCommand(version, commit, date string) *cobra.Command {
	a := &app{}
	var (
		envFile   string
		logLevel  string
		logFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "entitle",
		Short: "Premium entitlement server and client",
		Long: `entitle runs the payments API that grants and answers premium status,
and acts as a client of that API: it lists products, buys them through the
store or card checkout, restores earlier purchases and reports the tier.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = logFormat
			}

			log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.log = log
			a.logger = zerologadapter.NewLogger(&a.log)
			a.out = cmd.OutOrStdout()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console or json)")

	rootCmd.AddCommand(
		newServeCommand(a),
		newStatusCommand(a),
		newProductsCommand(a),
		newPurchaseCommand(a),
		newRestoreCommand(a),
	)
	return rootCmd
}
