package arg

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/SoarinFerret/TimeWarden/internal/ipc"
)

var output string

var rootCmd = &cobra.Command{
	Use:   "twctl",
	Short: "twctl is the command line tool for TimeWarden",
	Long: `twctl talks to the TimeWarden enforcement engine over the D-Bus system bus.
Use it to check access, grant or revoke overrides and read the audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch output {
		case "table", "json", "yaml":
			return nil
		}
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// call invokes an engine method on the system bus and stores the reply.
func call(method string, args []interface{}, ret ...interface{}) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(ipc.ServiceName, dbus.ObjectPath(ipc.ObjectPath))
	if err := obj.Call(ipc.InterfaceName+"."+method, 0, args...).Store(ret...); err != nil {
		return describe(err)
	}
	return nil
}

// describe turns engine D-Bus errors into readable messages.
func describe(err error) error {
	var derr dbus.Error
	switch e := err.(type) {
	case dbus.Error:
		derr = e
	case *dbus.Error:
		derr = *e
	default:
		return err
	}
	msg := derr.Error()
	switch derr.Name {
	case ipc.ErrProfileNotFound:
		return fmt.Errorf("profile not found: %s", msg)
	case ipc.ErrInvalidCredential:
		return fmt.Errorf("credential rejected: %s", msg)
	}
	return err
}
