package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tterm/pkg/app"
	"tterm/pkg/config"
	"tterm/pkg/serial"
)

var (
	connectLine    lineFlags
	connectRetries int
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port|profile>",
	Short: "Connect to a serial port",
	Long: `Connect to a serial port directly or using a saved profile.

You can specify either:
  - A port name (e.g., COM3, /dev/ttyUSB0) with optional line settings
  - A profile saved with 'tterm config save'

Flags given on the command line override the profile.

Examples:
  # Connect to COM3 with default settings
  tterm connect COM3

  # Connect to /dev/ttyUSB0 with custom baud rate
  tterm connect /dev/ttyUSB0 -b 9600

  # Connect using a saved profile
  tterm connect mydevice`,
	Args:    cobra.ExactArgs(1),
	Aliases: []string{"open"},
	RunE:    runConnect,
}

func init() {
	connectLine.register(connectCmd.Flags())
	connectCmd.Flags().IntVar(&connectRetries, "retries", -1, "open retries while the port is busy (default from settings)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	settings, path, err := loadSettings()
	if err != nil {
		return err
	}

	target := args[0]
	lineCfg, profile, err := resolveTarget(&settings, target, &connectLine, cmd.Flags(), time.Now())
	if err != nil {
		if errors.Is(err, errUnknownTarget) {
			printTargets(cmd.ErrOrStderr(), settings)
		}
		return err
	}

	if profile {
		// remember when the profile was last used
		if err := config.Save(path, settings); err != nil && verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not update profile: %v\n", err)
		}
	}

	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Connecting to %s...\n", lineCfg)
	}

	cfg := app.DefaultAppConfig()
	cfg.Settings = settings
	cfg.ConfigPath = path
	cfg.Mode = app.ModeSerial
	cfg.Serial = lineCfg
	cfg.Retry = settings.Retry
	if connectRetries >= 0 {
		cfg.Retry.MaxRetries = connectRetries
	}

	if err := runApp(cmd, cfg); err != nil {
		return withHint(err)
	}
	return nil
}

var errUnknownTarget = errors.New("neither a serial port nor a saved profile")

// resolveTarget turns a profile name or a port name into line settings. A
// profile is marked used in settings.
func resolveTarget(settings *config.Settings, target string, line *lineFlags, flags *pflag.FlagSet, now time.Time) (serial.SerialConfig, bool, error) {
	var (
		cfg     serial.SerialConfig
		profile bool
	)

	if _, ok := settings.Profiles[target]; ok {
		p, err := settings.UseProfile(target, now)
		if err != nil {
			return cfg, false, err
		}
		cfg, profile = p.Serial, true
	} else if isSerialPort(target) {
		cfg = settings.Serial
		cfg.Port = target
	} else {
		return cfg, false, fmt.Errorf("%q is %w", target, errUnknownTarget)
	}

	if err := line.apply(flags, &cfg); err != nil {
		return cfg, profile, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, profile, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, profile, nil
}

func isSerialPort(name string) bool {
	lower := strings.ToLower(name)

	// Windows COM ports
	if strings.HasPrefix(lower, "com") {
		return true
	}

	// Unix-like serial devices
	if strings.HasPrefix(name, "/dev/") {
		return true
	}

	ports, err := serial.ListPorts()
	if err == nil {
		for _, port := range ports {
			if strings.EqualFold(port, name) {
				return true
			}
		}
	}
	return false
}

func printTargets(w io.Writer, settings config.Settings) {
	fmt.Fprintf(w, "\nAvailable ports:\n")
	ports, _ := serial.ListPorts()
	if len(ports) == 0 {
		fmt.Fprintf(w, "  No serial ports found.\n")
	}
	for _, p := range ports {
		fmt.Fprintf(w, "  - %s\n", p)
	}

	if names := settings.ProfileNames(); len(names) > 0 {
		fmt.Fprintf(w, "\nSaved profiles:\n")
		for _, name := range names {
			fmt.Fprintf(w, "  - %s (port: %s)\n", name, settings.Profiles[name].Serial.Port)
		}
	}
	fmt.Fprintln(w)
}

// withHint adds advice for the usual reasons a port fails to open
func withHint(err error) error {
	if !app.IsErrorType(err, app.ErrorTypeSession) {
		return err
	}

	msg := strings.ToLower(err.Error())
	var hint string
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access"):
		hint = "check that you may access the port (on Linux: sudo usermod -a -G dialout $USER)"
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		hint = "the port may be in use by another application"
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no such"):
		hint = "the port does not exist; use 'tterm list' to see available ports"
	default:
		return err
	}
	return fmt.Errorf("%w\n  hint: %s", err, hint)
}
