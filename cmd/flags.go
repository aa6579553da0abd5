package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"tterm/pkg/serial"
)

// parityValue is a pflag.Value accepting only the supported parity names
type parityValue string

var _ pflag.Value = (*parityValue)(nil)

func newParityValue(p *string, def string) *parityValue {
	*p = def
	return (*parityValue)(p)
}

func (v *parityValue) String() string { return string(*v) }

func (v *parityValue) Set(s string) error {
	s = strings.ToLower(s)
	if !slices.Contains(serial.ValidParities, s) {
		return fmt.Errorf("must be one of %s", strings.Join(serial.ValidParities, ", "))
	}
	*v = parityValue(s)
	return nil
}

func (v *parityValue) Type() string { return "parity" }

// lineFlags holds the serial line flags shared by connect and config save
type lineFlags struct {
	baudRate int
	dataBits int
	stopBits int
	parity   string
	timeout  string
}

func (f *lineFlags) register(fs *pflag.FlagSet) {
	d := serial.DefaultConfig()
	fs.IntVarP(&f.baudRate, "baud", "b", d.BaudRate, "baud rate")
	fs.IntVarP(&f.dataBits, "data", "d", d.DataBits, "data bits (5, 6, 7, or 8)")
	fs.IntVarP(&f.stopBits, "stop", "s", d.StopBits, "stop bits (1 or 2)")
	fs.Var(newParityValue(&f.parity, d.Parity), "parity", "parity (none, odd, even, mark, space)")
	fs.StringVarP(&f.timeout, "timeout", "t", d.Timeout.String(), "read timeout")
}

// apply copies the flags the user set onto cfg
func (f *lineFlags) apply(fs *pflag.FlagSet, cfg *serial.SerialConfig) error {
	if fs.Changed("baud") {
		cfg.BaudRate = f.baudRate
	}
	if fs.Changed("data") {
		cfg.DataBits = f.dataBits
	}
	if fs.Changed("stop") {
		cfg.StopBits = f.stopBits
	}
	if fs.Changed("parity") {
		cfg.Parity = f.parity
	}
	if fs.Changed("timeout") {
		timeout, err := parseTimeout(f.timeout)
		if err != nil {
			return err
		}
		cfg.Timeout = timeout
	}
	return nil
}

// parseTimeout accepts a duration ("500ms") or whole seconds ("10")
func parseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return d, nil
}
