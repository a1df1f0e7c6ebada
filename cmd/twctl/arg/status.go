package arg

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// accessReport is the CheckAccess reply in printable form.
type accessReport struct {
	Profile    string    `json:"profile" yaml:"profile"`
	State      string    `json:"state" yaml:"state"`
	Remaining  string    `json:"remaining" yaml:"remaining"`
	WindowEnd  time.Time `json:"window_end,omitzero" yaml:"window_end,omitempty"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	NextWindow time.Time `json:"next_window,omitzero" yaml:"next_window,omitempty"`

	left time.Duration
}

func newAccessReport(profile, state string, remaining, windowEnd int64, reason string, next int64) accessReport {
	left := time.Duration(remaining) * time.Second
	r := accessReport{
		Profile:   profile,
		State:     state,
		Remaining: left.String(),
		Reason:    reason,
		left:      left,
	}
	if windowEnd != 0 {
		r.WindowEnd = time.Unix(windowEnd, 0)
	}
	if next != 0 {
		r.NextWindow = time.Unix(next, 0)
	}
	return r
}

func (r accessReport) render() string {
	var windowEnd, next string
	if !r.WindowEnd.IsZero() {
		windowEnd = formatUnix(r.WindowEnd.Unix())
	}
	if !r.NextWindow.IsZero() {
		next = formatUnix(r.NextWindow.Unix())
	}
	return fields(
		[2]string{"Profile", r.Profile},
		[2]string{"State", stateText(r.State)},
		[2]string{"Remaining", formatDuration(r.left)},
		[2]string{"Window ends", windowEnd},
		[2]string{"Reason", r.Reason},
		[2]string{"Next window", next},
	)
}

var statusCmd = &cobra.Command{
	Use:   "status [profile]",
	Short: "Check that TimeWarden is running, or show a profile's access",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			var result string
			if err := call("GetStatus", nil, &result); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "TimeWarden Status:", result)
			return nil
		}

		var (
			state, reason               string
			remaining, windowEnd, next int64
		)
		if err := call("CheckAccess", []interface{}{args[0]}, &state, &remaining, &windowEnd, &reason, &next); err != nil {
			return err
		}
		report := newAccessReport(args[0], state, remaining, windowEnd, reason, next)
		if done, err := encode(cmd.OutOrStdout(), output, report); done || err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
