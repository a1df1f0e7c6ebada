package arg

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/TimeWarden/internal/auth"
	"github.com/SoarinFerret/TimeWarden/internal/config"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

var configPath string

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a password hash for an [[admins]] entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		if password == "" {
			return errors.New("empty password")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the daemon configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a configuration file and list its profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigFromFile(configPath)
		if err != nil {
			return err
		}
		profiles, err := cfg.ProfileList()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d profile(s), %d admin(s)\n", configPath, len(profiles), len(cfg.Admins))
		if len(profiles) > 0 {
			fmt.Fprint(cmd.OutOrStdout(), renderProfiles(profiles))
		}
		return nil
	},
}

func renderProfiles(profiles []profile.Profile) string {
	rows := make([][]string, len(profiles))
	for i, p := range profiles {
		budget := "none"
		if p.DailyBudget > 0 {
			budget = formatDuration(p.DailyBudget)
		}
		rows[i] = []string{p.ID, p.Account, budget, strconv.Itoa(len(p.Windows))}
	}
	return table([]string{"PROFILE", "ACCOUNT", "BUDGET", "WINDOWS"}, rows)
}

func init() {
	hashPasswordCmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
	configCheckCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(configCmd)
}
