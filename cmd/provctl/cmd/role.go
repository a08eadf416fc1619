package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/medrex/record-provenance/pkg/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(roleCmd)
	roleCmd.AddCommand(roleInitCmd)
	roleCmd.AddCommand(roleGrantCmd)
	roleCmd.AddCommand(roleChangeCmd)
	roleCmd.AddCommand(roleRevokeCmd)
	roleCmd.AddCommand(roleLeaveCmd)
	roleCmd.AddCommand(roleShowCmd)
	roleCmd.AddCommand(roleMembersCmd)
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage per-record roles",
	Long: `Commands to bootstrap, grant, change and revoke owner, administrator
and viewer roles on a record.`,
}

var roleInitCmd = &cobra.Command{
	Use:   "init <record> <identity> <owner|administrator>",
	Short: "Bootstrap the first role on a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := types.ParseRole(args[2])
		if err != nil {
			return err
		}
		if err := ledger.InitializeRecordRole(cmd.Context(), args[0], args[1], role); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Record %s initialized with %s %s", args[0], role, args[1])
	},
}

var roleGrantCmd = &cobra.Command{
	Use:   "grant <record> <identity> <role>",
	Short: "Grant a role on a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := types.ParseRole(args[2])
		if err != nil {
			return err
		}
		if err := ledger.GrantRole(cmd.Context(), args[0], args[1], role); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Granted %s on %s to %s", role, args[0], args[1])
	},
}

var roleChangeCmd = &cobra.Command{
	Use:   "change <record> <identity> <role>",
	Short: "Change an existing role on a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := types.ParseRole(args[2])
		if err != nil {
			return err
		}
		if err := ledger.ChangeRole(cmd.Context(), args[0], args[1], role); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "%s is now %s on %s", args[1], role, args[0])
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke <record> <identity>",
	Short: "Revoke a role on a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.RevokeRole(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Revoked role of %s on %s", args[1], args[0])
	},
}

var roleLeaveCmd = &cobra.Command{
	Use:   "leave <record>",
	Short: "Give up your own ownership of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.VoluntarilyLeaveOwnership(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Left ownership of %s", args[0])
	},
}

var roleShowCmd = &cobra.Command{
	Use:   "show <record> [identity]",
	Short: "Show role counts of a record, or one identity's role",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 2 {
			role, err := ledger.GetRecordRole(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if ok, err := formatOutput(out, role); ok {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Record:\t%s\n", role.RecordID)
			fmt.Fprintf(w, "Identity:\t%s\n", role.IdentityID)
			fmt.Fprintf(w, "Role:\t%s\n", role.Role)
			fmt.Fprintf(w, "Active:\t%s\n", yesNo(role.IsActive))
			fmt.Fprintf(w, "Modified:\t%s\n", formatTime(role.LastModified))
			return w.Flush()
		}

		summary, err := ledger.GetRoleSummary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ok, err := formatOutput(out, summary); ok {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RECORD\tOWNERS\tADMINISTRATORS\tVIEWERS")
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", summary.RecordID, summary.Owners, summary.Administrators, summary.Viewers)
		return w.Flush()
	},
}

var roleMembersCmd = &cobra.Command{
	Use:   "members <record> <role>",
	Short: "List the identities holding a role on a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := types.ParseRole(args[1])
		if err != nil {
			return err
		}
		members, err := ledger.Members(cmd.Context(), args[0], role)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, members); ok {
			return err
		}
		if len(members) == 0 {
			fmt.Fprintf(out, "No active %s on %s.\n", role, args[0])
			return nil
		}
		for _, m := range members {
			fmt.Fprintln(out, m)
		}
		return nil
	},
}
