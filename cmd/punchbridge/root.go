package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BrandonDHaskell/punchbridge/internal/config"
)

// rootOptions holds flags shared by every subcommand. Set flags win over the
// environment.
type rootOptions struct {
	dbPath  string
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "punchbridge",
		Short: "Punch-clock to cloud attendance bridge",
		Long:  "Captures live punches from an attendance device, buffers them in a local SQLite queue and uploads them to the remote attendance collection.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "local queue database path (overrides PUNCHBRIDGE_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load variables from this file before reading the environment")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newRefreshCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))

	return cmd
}

func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	return cfg, nil
}

// newLogger writes to stdout, or to a rotated file when LogFile is set.
// The returned closer flushes the file.
func newLogger(cfg *config.Config) (*log.Logger, io.Closer) {
	if cfg.LogFile == "" {
		return log.New(os.Stdout, "punchbridge ", log.LstdFlags|log.LUTC), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	var w io.Writer = file
	if cfg.LogStdout {
		w = io.MultiWriter(os.Stdout, file)
	}
	return log.New(w, "punchbridge ", log.LstdFlags|log.LUTC), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
