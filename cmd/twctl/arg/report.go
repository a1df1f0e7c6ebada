package arg

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// The report commands speak for the monitoring agent. They are meant for
// scripting and for checking an installation by hand.

var activityCategory string

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <profile>",
	Short: "Send one monitoring agent heartbeat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ack bool
		if err := call("ReportHeartbeat", []interface{}{args[0], time.Now().Unix()}, &ack); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat acknowledged: %t\n", ack)
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity <profile> <application|content> <id>",
	Short: "Ask whether an application or site is allowed",
	Example: `  twctl activity alice application steam
  twctl activity alice content www.example.com --category social-media`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			allow  bool
			reason string
		)
		err := call("ReportActivity", []interface{}{args[0], args[1], args[2], activityCategory, time.Now().Unix()}, &allow, &reason)
		if err != nil {
			return err
		}
		verdict := "denied"
		if allow {
			verdict = "allowed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[2], verdict, reason)
		return nil
	},
}

func init() {
	activityCmd.Flags().StringVar(&activityCategory, "category", "", "content or application category")
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(activityCmd)
}
