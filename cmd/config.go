package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tterm/pkg/config"
	"tterm/pkg/serial"
)

var (
	// Config command flags
	initForce       bool
	saveLine        lineFlags
	savePort        string
	saveDescription string
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings and serial profiles",
	Long: `Manage the settings file and the serial port profiles saved in it.

The settings file is YAML. Font, palette and minimum grid changes apply to
running sessions as soon as the file is saved.`,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runShowConfig,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the settings file",
	Args:  cobra.NoArgs,
	RunE:  runValidateConfig,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runInitConfig,
}

var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a serial port profile",
	Long: `Save serial line settings under a name for 'tterm connect <name>'.

Example:
  tterm config save mydevice -p /dev/ttyUSB0 -b 115200`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveProfile,
}

var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a serial port profile",
	Aliases: []string{"rm", "remove"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteProfile,
}

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Short:   "List saved serial port profiles",
	Aliases: []string{"list"},
	Args:    cobra.NoArgs,
	RunE:    runListProfiles,
}

func init() {
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(saveCmd)
	configCmd.AddCommand(deleteCmd)
	configCmd.AddCommand(profilesCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")

	saveCmd.Flags().StringVarP(&savePort, "port", "p", "", "serial port")
	saveCmd.Flags().StringVar(&saveDescription, "description", "", "profile description")
	saveLine.register(saveCmd.Flags())
	saveCmd.MarkFlagRequired("port")
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s does not exist, defaults apply\n", path)
		return nil
	}
	if _, _, err := loadSettings(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runSaveProfile(cmd *cobra.Command, args []string) error {
	name := args[0]

	settings, path, err := loadSettings()
	if err != nil {
		return err
	}

	cfg := settings.Serial
	cfg.Port = savePort
	if p, ok := settings.Profiles[name]; ok {
		// start from the saved line so unset flags keep their values
		cfg = p.Serial
		cfg.Port = savePort
	}
	if err := saveLine.apply(cmd.Flags(), &cfg); err != nil {
		return err
	}
	if err := settings.SaveProfile(name, cfg, time.Now()); err != nil {
		return err
	}
	if saveDescription != "" {
		p := settings.Profiles[name]
		p.Description = saveDescription
		settings.Profiles[name] = p
	}
	if err := config.Save(path, settings); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile '%s' saved.\n", name)
	fmt.Fprintf(out, "  Port:      %s\n", cfg.Port)
	fmt.Fprintf(out, "  Baud Rate: %d\n", cfg.BaudRate)
	fmt.Fprintf(out, "  Data Bits: %d\n", cfg.DataBits)
	fmt.Fprintf(out, "  Stop Bits: %d\n", cfg.StopBits)
	fmt.Fprintf(out, "  Parity:    %s\n", cfg.Parity)
	fmt.Fprintf(out, "  Timeout:   %v\n", cfg.Timeout)
	return nil
}

func runDeleteProfile(cmd *cobra.Command, args []string) error {
	name := args[0]

	settings, path, err := loadSettings()
	if err != nil {
		return err
	}
	if err := settings.DeleteProfile(name); err != nil {
		return err
	}
	if err := config.Save(path, settings); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted.\n", name)
	return nil
}

func runListProfiles(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := settings.ProfileNames()
	if len(names) == 0 {
		fmt.Fprintln(out, "No saved profiles found.")
		fmt.Fprintln(out, "\nUse 'tterm config save <name>' to save one.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPORT\tLINE\tLAST USED\tCREATED")
	for _, name := range names {
		p := settings.Profiles[name]
		lastUsed := "Never"
		if !p.LastUsedAt.IsZero() {
			lastUsed = p.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name,
			p.Serial.Port,
			lineSummary(p.Serial),
			lastUsed,
			p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// lineSummary formats line settings as "115200 8N1"
func lineSummary(cfg serial.SerialConfig) string {
	cfg.Port = ""
	return strings.TrimSpace(cfg.String())
}
