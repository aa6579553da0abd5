package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tterm/pkg/app"
	"tterm/pkg/config"
	"tterm/pkg/logging"
)

var (
	// Root command flags
	configPath string
	verbose    bool
	logFile    string
	transcript string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "tterm",
		Short: "A terminal front-end for shells and serial devices",
		Long: `tterm runs your shell, or a serial device, inside a terminal view with
mouse selection, clipboard integration and live settings reload.

Without a subcommand it starts the configured shell.`,
		Version:           "1.0.0",
		RunE:              runShell,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default is $XDG_CONFIG_HOME/tterm/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "write logs to this file")
	rootCmd.PersistentFlags().StringVar(&transcript, "transcript", "", "save the session traffic to this file (.json, .raw or text)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(connectCmd)
}

// settingsPath returns --config or the default location
func settingsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func loadSettings() (config.Settings, string, error) {
	path, err := settingsPath()
	if err != nil {
		return config.Settings{}, "", err
	}
	settings, err := config.Load(path)
	if err != nil {
		return settings, path, fmt.Errorf("%s: %w", path, err)
	}
	return settings, path, nil
}

// openLogger logs to --log or the settings file's log.file. --verbose
// forces debug level.
func openLogger(settings config.Settings) (*logging.Logger, io.Closer, error) {
	path := logFile
	if path == "" {
		path = settings.Log.File
	}
	level, err := logging.ParseLevel(settings.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return logging.Open(path, level)
}

func requireTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tterm needs an interactive terminal")
	}
	return nil
}

// runApp runs the host until the session ends
func runApp(cmd *cobra.Command, cfg app.AppConfig) error {
	if err := requireTerminal(); err != nil {
		return err
	}

	logger, closer, err := openLogger(cfg.Settings)
	if err != nil {
		return err
	}
	defer closer.Close()
	cfg.Logger = logger
	if transcript != "" {
		cfg.Transcript = transcript
	}

	runner, err := app.NewRunner(cfg)
	if err != nil {
		return err
	}
	runner.SetOutput(cmd.OutOrStdout())
	return runner.Run(cmd.Context())
}

// runShell is the main entry point for the terminal
func runShell(cmd *cobra.Command, args []string) error {
	settings, path, err := loadSettings()
	if err != nil {
		return err
	}

	cfg := app.DefaultAppConfig()
	cfg.Settings = settings
	cfg.ConfigPath = path
	cfg.Mode = app.ModeShell

	if verbose {
		shell := settings.Shell.Command
		if shell == "" {
			shell = "default shell"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Starting %s...\n", shell)
	}
	return runApp(cmd, cfg)
}
