package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/medrex/record-provenance/pkg/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(accessCmd)
	accessCmd.AddCommand(accessGrantCmd)
	accessCmd.AddCommand(accessRevokeCmd)
	accessCmd.AddCommand(accessCheckCmd)
	accessCmd.AddCommand(accessShowCmd)
	accessCmd.AddCommand(accessListCmd)

	accessListCmd.Flags().String("sharer", "", "List permissions granted by this identity")
	accessListCmd.Flags().String("receiver", "", "List permissions granted to this identity")
}

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage one-to-one access permissions",
}

var accessGrantCmd = &cobra.Command{
	Use:   "grant <permission-hash> <record> <receiver>",
	Short: "Share a record with a receiver",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.GrantAccess(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Access to %s granted to %s", args[1], args[2])
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke <permission-hash>",
	Short: "Revoke a permission you granted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.RevokeAccess(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Permission %s revoked", args[0])
	},
}

var accessCheckCmd = &cobra.Command{
	Use:   "check <record> <receiver>",
	Short: "Check whether a receiver holds active access to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		allowed, err := ledger.CheckAccess(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, map[string]interface{}{"record_id": args[0], "receiver": args[1], "allowed": allowed}); ok {
			return err
		}
		fmt.Fprintf(out, "%s -> %s: %s\n", args[1], args[0], yesNo(allowed))
		return nil
	},
}

var accessShowCmd = &cobra.Command{
	Use:   "show <permission-hash>",
	Short: "Show a permission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ledger.GetPermission(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printPermissions(cmd.OutOrStdout(), []*types.AccessPermission{p})
	},
}

var accessListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permissions by sharer or receiver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sharer, _ := cmd.Flags().GetString("sharer")
		receiver, _ := cmd.Flags().GetString("receiver")

		var (
			perms []*types.AccessPermission
			err   error
		)
		switch {
		case sharer != "" && receiver != "":
			return errors.New("use only one of --sharer or --receiver")
		case sharer != "":
			perms, err = ledger.GetPermissionsBySharer(cmd.Context(), sharer)
		case receiver != "":
			perms, err = ledger.GetPermissionsByReceiver(cmd.Context(), receiver)
		default:
			return errors.New("one of --sharer or --receiver is required")
		}
		if err != nil {
			return err
		}
		return printPermissions(cmd.OutOrStdout(), perms)
	},
}

func printPermissions(out io.Writer, perms []*types.AccessPermission) error {
	if ok, err := formatOutput(out, perms); ok {
		return err
	}
	if len(perms) == 0 {
		fmt.Fprintln(out, "No permissions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tRECORD\tSHARER\tRECEIVER\tACTIVE\tGRANTED")
	for _, p := range perms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.PermissionHash, p.RecordID, p.Sharer, p.Receiver, yesNo(p.IsActive), formatTime(p.GrantedAt))
	}
	return w.Flush()
}
