package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tterm/pkg/serial"
)

var (
	listDetails bool
	listFormat  string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans the system for available serial ports and displays
them in a formatted list. On different platforms:
  - Windows: Lists COM ports
  - Linux: Lists /dev/tty* devices
  - macOS: Lists /dev/cu.* and /dev/tty.* devices`,
	Aliases: []string{"ls", "ports"},
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listDetails, "details", "d", false, "show detailed port information")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, csv, json)")
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("error listing ports: %w", err)
	}
	return printPorts(cmd.OutOrStdout(), ports, listFormat, listDetails)
}

func printPorts(w io.Writer, ports []serial.PortInfo, format string, details bool) error {
	switch format {
	case "table":
		printPortsTable(w, ports, details)
		return nil
	case "csv":
		return printPortsCSV(w, ports, details)
	case "json":
		return printPortsJSON(w, ports, details)
	default:
		return fmt.Errorf("unknown format %q (table, csv, json)", format)
	}
}

func printPortsTable(w io.Writer, ports []serial.PortInfo, details bool) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return
	}
	fmt.Fprintf(w, "Found %d serial port(s):\n", len(ports))

	if !details {
		for _, p := range ports {
			fmt.Fprintf(w, "  %s\n", p.Name)
		}
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  PORT\tUSB\tVID:PID\tPRODUCT\tSERIAL")
		for _, p := range ports {
			id := ""
			if p.VID != "" || p.PID != "" {
				id = p.VID + ":" + p.PID
			}
			fmt.Fprintf(tw, "  %s\t%t\t%s\t%s\t%s\n", p.Name, p.IsUSB, id, p.Description, p.SerialNumber)
		}
		tw.Flush()
	}

	fmt.Fprintln(w, "\nUse 'tterm connect <port>' to connect.")
}

func printPortsCSV(w io.Writer, ports []serial.PortInfo, details bool) error {
	cw := csv.NewWriter(w)
	if details {
		cw.Write([]string{"port", "is_usb", "vid", "pid", "product", "serial_number"})
		for _, p := range ports {
			cw.Write([]string{p.Name, strconv.FormatBool(p.IsUSB), p.VID, p.PID, p.Description, p.SerialNumber})
		}
	} else {
		cw.Write([]string{"port"})
		for _, p := range ports {
			cw.Write([]string{p.Name})
		}
	}
	cw.Flush()
	return cw.Error()
}

func printPortsJSON(w io.Writer, ports []serial.PortInfo, details bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if details {
		if ports == nil {
			ports = []serial.PortInfo{}
		}
		return enc.Encode(ports)
	}

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	return enc.Encode(names)
}
