package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peregrine-check/peregrine/internal/config"
	"github.com/peregrine-check/peregrine/internal/lsp"
)

var persistentCmd = &cobra.Command{
	Use:   "persistent",
	Short: "Run the editor language-server bridge",
	Long: `Speak the Language Server Protocol over stdin/stdout and relay type
errors from the analyzer server into the editor. Editor plugins spawn this
command; it is not meant to be run by hand.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := config.Load()
		if err != nil {
			fatal(err)
		}
		binary, err := cfg.ResolveBinary()
		if err != nil {
			fatal(err)
		}
		logDirectory, err := cfg.ResolveLogDirectory()
		if err != nil {
			fatal(err)
		}

		options := lsp.Options{
			Version:          Version,
			Binary:           binary,
			ServerIdentifier: cfg.ServerIdentifier(),
			Arguments:        cfg.ServerArguments(logDirectory),
		}

		code, err := lsp.RunPersistent(context.Background(), lsp.Stdio(), options, logger)
		if err != nil {
			logger.Error("session ended abnormally", zap.Error(err))
		}
		os.Exit(code)
	},
}

// newLogger builds the session logger. Logs go to stderr; stdout belongs to
// the editor channel.
func newLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func fatal(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
