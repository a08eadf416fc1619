package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/medrex/record-provenance/pkg/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminShowCmd)
	adminCmd.AddCommand(adminTransferCmd)

	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletRegisterCmd)
	walletCmd.AddCommand(walletDeactivateCmd)
	walletCmd.AddCommand(walletReactivateCmd)
	walletCmd.AddCommand(walletShowCmd)

	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identityStatusCmd)
	identityCmd.AddCommand(identityHistoryCmd)

	walletRegisterCmd.Flags().String("identity", "", "Identity to bind the wallet to (default: a new identity named after the wallet)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the ledger with the caller as admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.InitLedger(cmd.Context()); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Ledger initialized")
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect and transfer the registry admin",
}

var adminShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := ledger.GetAdmin(cmd.Context())
		if err != nil {
			return err
		}
		if ok, err := formatOutput(cmd.OutOrStdout(), map[string]string{"admin": admin}); ok {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), admin)
		return nil
	},
}

var adminTransferCmd = &cobra.Command{
	Use:   "transfer <new-admin>",
	Short: "Hand the admin role to another caller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.TransferAdmin(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Admin transferred to %s", args[0])
	},
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
	Long:  `Commands to register wallets and toggle them active or inactive.`,
}

var walletRegisterCmd = &cobra.Command{
	Use:   "register <wallet>",
	Short: "Register a wallet to an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")
		if identity == "" {
			identity = args[0]
		}
		if err := ledger.RegisterWallet(cmd.Context(), args[0], identity); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Wallet %s registered", args[0])
	},
}

var walletDeactivateCmd = &cobra.Command{
	Use:   "deactivate <wallet>",
	Short: "Deactivate a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.DeactivateWallet(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Wallet %s deactivated", args[0])
	},
}

var walletReactivateCmd = &cobra.Command{
	Use:   "reactivate <wallet>",
	Short: "Reactivate a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.ReactivateWallet(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Wallet %s reactivated", args[0])
	},
}

var walletShowCmd = &cobra.Command{
	Use:   "show <wallet>",
	Short: "Show a wallet and its membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wallet, err := ledger.GetWallet(ctx, args[0])
		if err != nil {
			return err
		}
		active, err := ledger.IsActiveMember(ctx, args[0])
		if err != nil {
			return err
		}
		verified, err := ledger.IsVerifiedMember(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, map[string]interface{}{
			"wallet":          wallet,
			"active_member":   active,
			"verified_member": verified,
		}); ok {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Address:\t%s\n", wallet.Address)
		fmt.Fprintf(w, "Identity:\t%s\n", wallet.IdentityID)
		fmt.Fprintf(w, "Wallet active:\t%s\n", yesNo(wallet.IsWalletActive))
		fmt.Fprintf(w, "Active member:\t%s\n", yesNo(active))
		fmt.Fprintf(w, "Verified member:\t%s\n", yesNo(verified))
		fmt.Fprintf(w, "Registered:\t%s\n", formatTime(wallet.RegisteredAt))
		return w.Flush()
	},
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect identities and set their status",
}

var identityShowCmd = &cobra.Command{
	Use:   "show <identity>",
	Short: "Show an identity with its wallets and records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity, err := ledger.GetIdentity(ctx, args[0])
		if err != nil {
			return err
		}
		wallets, err := ledger.WalletsOf(ctx, args[0])
		if err != nil {
			return err
		}
		records, err := ledger.GetRecordsByIdentity(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, map[string]interface{}{
			"identity": identity,
			"wallets":  wallets,
			"records":  records,
		}); ok {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Identity:\t%s\n", identity.IdentityID)
		fmt.Fprintf(w, "Status:\t%s\n", identity.Status)
		fmt.Fprintf(w, "Wallets:\t%s\n", joinOrDash(wallets))
		fmt.Fprintf(w, "Records:\t%s\n", joinOrDash(records))
		fmt.Fprintf(w, "Updated:\t%s\n", formatTime(identity.UpdatedAt))
		return w.Flush()
	},
}

var identityStatusCmd = &cobra.Command{
	Use:   "status <identity> <Inactive|Active|Verified>",
	Short: "Set the status of an identity (admin only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := types.ParseIdentityStatus(args[1])
		if err != nil {
			return err
		}
		if err := ledger.SetIdentityStatus(cmd.Context(), args[0], status); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Identity %s is now %s", args[0], status)
	},
}

var identityHistoryCmd = &cobra.Command{
	Use:   "history <identity>",
	Short: "List the reviews authored by an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := ledger.GetAttestationHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, entries); ok {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No attestations found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RECORD HASH\tINDEX")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\n", e.RecordHash, e.Index)
		}
		return w.Flush()
	},
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
