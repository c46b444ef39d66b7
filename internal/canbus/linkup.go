package canbus

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/banshee-data/cantrack/internal/monitoring"
)

// LinkOptions controls how a CAN network interface is brought up with
// iproute2 before a bus is opened on it.
type LinkOptions struct {
	Bitrate   int
	UseSudo   bool
	ExtraArgs []string // tokens prefixed to every ip invocation
}

// runCommand is swapped out by tests to capture the commands issued.
var runCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}

// SetupLink configures the bitrate of a CAN interface and brings the link up.
// The bitrate set is tolerated to fail (the link may already be configured
// and busy); the link-up itself is fatal.
func SetupLink(channel string, opts LinkOptions) error {
	set := append([]string{}, opts.ExtraArgs...)
	set = append(set, "ip", "link", "set", channel, "type", "can", "bitrate", strconv.Itoa(opts.Bitrate))
	if err := runLink(set, opts.UseSudo); err != nil {
		monitoring.Logf("canbus: bitrate set for %s failed (continuing): %v", channel, err)
	}

	up := append([]string{}, opts.ExtraArgs...)
	up = append(up, "ip", "link", "set", channel, "up")
	if err := runLink(up, opts.UseSudo); err != nil {
		return fmt.Errorf("canbus: bring up %s: %w", channel, err)
	}
	return nil
}

func runLink(args []string, useSudo bool) error {
	if useSudo {
		args = append([]string{"sudo"}, args...)
	}
	if len(args) == 0 {
		return fmt.Errorf("canbus: empty link command")
	}
	return runCommand(args[0], args[1:]...)
}
