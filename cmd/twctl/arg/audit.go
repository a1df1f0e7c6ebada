package arg

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
)

var auditLimit uint32

var auditCmd = &cobra.Command{
	Use:   "audit [profile]",
	Short: "Show the most recent audit events",
	Long:  `Show the most recent audit events, oldest first, for one profile or for all of them.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := ""
		if len(args) > 0 {
			profile = args[0]
		}
		var result string
		if err := call("ListAudit", []interface{}{profile, auditLimit}, &result); err != nil {
			return err
		}
		var events []audit.Event
		if err := json.Unmarshal([]byte(result), &events); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if done, err := encode(cmd.OutOrStdout(), output, events); done || err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No audit events")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderEvents(events))
		return nil
	},
}

func renderEvents(events []audit.Event) string {
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{e.Wall.Format("2006-01-02 15:04:05"), e.ProfileID, string(e.Kind), details(e.Payload)}
	}
	return table([]string{"TIME", "PROFILE", "EVENT", "DETAILS"}, rows)
}

func details(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + payload[k]
	}
	return strings.Join(parts, " ")
}

func init() {
	auditCmd.Flags().Uint32VarP(&auditLimit, "limit", "n", 50, "number of events to show")
	rootCmd.AddCommand(auditCmd)
}
