package arg

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	overrideDuration time.Duration
	overrideReason   string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Grant or revoke temporary overrides",
	Long:  `Grant extra access to a profile for a limited time, or end an override early.`,
}

var overrideGrantCmd = &cobra.Command{
	Use:   "grant <profile>",
	Short: "Grant a temporary override",
	Long: `Grant a temporary override. The profile is unlocked until it expires.
Examples:
  twctl override grant alice --admin mom --duration 30m --reason "finishing homework"
  twctl override grant bob --admin dad --duration 1h --password-file /run/secrets/pw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if overrideDuration < time.Second {
			return fmt.Errorf("--duration must be at least 1s")
		}
		cred, err := credential()
		if err != nil {
			return err
		}
		var ok bool
		secs := int64(overrideDuration / time.Second)
		if err := call("GrantOverride", []interface{}{args[0], secs, cred, overrideReason}, &ok); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Override granted for %s: %s\n", args[0], formatDuration(overrideDuration))
		if overrideReason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  Reason: %s\n", overrideReason)
		}
		return nil
	},
}

var overrideRevokeCmd = &cobra.Command{
	Use:   "revoke <profile>",
	Short: "End a profile's override early",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credential()
		if err != nil {
			return err
		}
		var ok bool
		if err := call("RevokeOverride", []interface{}{args[0], cred}, &ok); err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "No active override for %s\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Override revoked for %s\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{overrideGrantCmd, overrideRevokeCmd} {
		c.Flags().StringVarP(&adminName, "admin", "a", "", "administrator name")
		c.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
	}
	overrideGrantCmd.Flags().DurationVarP(&overrideDuration, "duration", "d", 30*time.Minute, "how long the override lasts")
	overrideGrantCmd.Flags().StringVarP(&overrideReason, "reason", "r", "", "reason for the override")

	overrideCmd.AddCommand(overrideGrantCmd)
	overrideCmd.AddCommand(overrideRevokeCmd)
	rootCmd.AddCommand(overrideCmd)
}
