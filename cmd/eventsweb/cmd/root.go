package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/supersquad/eventsweb/internal/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	envFiles    []string
	logLevel    string
	logFormat   string
	apiURL      string
	sessionFile string
}

// NewRootCommand builds the full command tree. Each call returns an
// independent tree so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "eventsweb",
		Short: "SuperSquad events front end",
		Long: `eventsweb is the front end for the SuperSquad events API.

It serves the event pages (browse, search, view, create, edit, delete and
login) and also offers the same operations from the command line:

- serve:        run the web front end
- login/logout: manage the command-line session
- events:       list, show, create, update and delete events`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFiles...)
		},
		// Run the serve command by default if no subcommand is specified
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts, serveOptions{})
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default: .env)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")
	flags.StringVar(&opts.apiURL, "api-url", "", "events API base URL (default: $API_BASE_URL)")
	flags.StringVar(&opts.sessionFile, "session-file", "", "where the command-line session is kept (default: $SESSION_FILE)")

	root.AddCommand(
		newServeCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newEventsCommand(opts),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.apiURL != "" {
		cfg.API.BaseURL = opts.apiURL
	}
	if opts.sessionFile != "" {
		cfg.Session.FilePath = opts.sessionFile
	}
	return cfg, nil
}

// cliLogger logs to stderr so command output stays pipeable. Only warnings
// and errors are shown unless a level is asked for.
func cliLogger(out io.Writer, opts *globalOptions) zerolog.Logger {
	level := opts.logLevel
	if level == "" {
		level = "warn"
	}
	format := opts.logFormat
	if format == "" {
		format = "console"
	}
	return config.NewLoggerTo(out, config.LoggingConfig{Level: level, Format: format})
}
