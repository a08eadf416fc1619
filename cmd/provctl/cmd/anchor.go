package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorCreateCmd)
	anchorCmd.AddCommand(anchorShowCmd)
	anchorCmd.AddCommand(anchorListCmd)

	anchorListCmd.Flags().String("record", "", "List anchors of this record")
	anchorListCmd.Flags().String("subject", "", "List anchors of this subject")

	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewVerifyCmd)
	reviewCmd.AddCommand(reviewDisputeCmd)
	reviewCmd.AddCommand(reviewRetractCmd)
	reviewCmd.AddCommand(reviewModifyCmd)
	reviewCmd.AddCommand(reviewReactCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewReactionsCmd)

	reviewVerifyCmd.Flags().String("notes", "", "Free-text notes")
	reviewDisputeCmd.Flags().String("notes", "", "Free-text notes")
	for _, c := range []*cobra.Command{reviewDisputeCmd, reviewModifyCmd} {
		c.Flags().Int("severity", 0, fmt.Sprintf("Severity (%d-%d)", types.MinSeverity, types.MaxSeverity))
		c.Flags().Int("culpability", 0, fmt.Sprintf("Culpability (%d-%d)", types.MinCulpability, types.MaxCulpability))
		c.MarkFlagRequired("severity")
		c.MarkFlagRequired("culpability")
	}
	reviewReactCmd.Flags().Bool("oppose", false, "Oppose the dispute instead of supporting it")
}

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Anchor record hashes",
}

var anchorCreateCmd = &cobra.Command{
	Use:   "create <record-hash> <record> <subject>",
	Short: "Anchor a record hash",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.AnchorRecord(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Anchored %s for record %s", args[0], args[1])
	},
}

var anchorShowCmd = &cobra.Command{
	Use:   "show <record-hash>",
	Short: "Show an anchor with its review stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		anchor, err := ledger.GetAnchor(ctx, args[0])
		if err != nil {
			return err
		}
		stats, err := ledger.GetReviewStats(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, map[string]interface{}{"anchor": anchor, "stats": stats}); ok {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Hash:\t%s\n", anchor.RecordHash)
		fmt.Fprintf(w, "Record:\t%s\n", anchor.RecordID)
		fmt.Fprintf(w, "Subject:\t%s\n", anchor.Subject)
		fmt.Fprintf(w, "Created by:\t%s\n", anchor.CreatedBy)
		fmt.Fprintf(w, "Created:\t%s\n", formatTime(anchor.CreatedAt))
		fmt.Fprintf(w, "Reviews:\t%d (%s verified, %s disputed, %d retracted, %d amendments)\n", stats.Total,
			color.GreenString("%d", stats.ActiveVerifications), color.RedString("%d", stats.ActiveDisputes), stats.Retracted, stats.Amendments)
		return w.Flush()
	},
}

var anchorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List anchors by record or subject",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetString("record")
		subject, _ := cmd.Flags().GetString("subject")

		var (
			anchors []*types.AnchoredRecord
			err     error
		)
		switch {
		case record != "" && subject != "":
			return errors.New("use only one of --record or --subject")
		case record != "":
			anchors, err = ledger.GetAnchorsByRecord(cmd.Context(), record)
		case subject != "":
			anchors, err = ledger.GetAnchorsBySubject(cmd.Context(), subject)
		default:
			return errors.New("one of --record or --subject is required")
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, anchors); ok {
			return err
		}
		if len(anchors) == 0 {
			fmt.Fprintln(out, "No anchors found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HASH\tRECORD\tSUBJECT\tCREATED BY\tCREATED")
		for _, a := range anchors {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.RecordHash, a.RecordID, a.Subject, a.CreatedBy, formatTime(a.CreatedAt))
		}
		return w.Flush()
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Verify, dispute and react to anchored records",
}

var reviewVerifyCmd = &cobra.Command{
	Use:   "verify <record-hash>",
	Short: "Verify an anchored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		if err := ledger.VerifyRecord(cmd.Context(), args[0], notes); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Verified %s", args[0])
	},
}

var reviewDisputeCmd = &cobra.Command{
	Use:   "dispute <record-hash>",
	Short: "Dispute an anchored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		severity, _ := cmd.Flags().GetInt("severity")
		culpability, _ := cmd.Flags().GetInt("culpability")
		notes, _ := cmd.Flags().GetString("notes")
		if err := ledger.DisputeRecord(cmd.Context(), args[0], severity, culpability, notes); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Disputed %s", args[0])
	},
}

var reviewRetractCmd = &cobra.Command{
	Use:   "retract <record-hash>",
	Short: "Retract your active review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.RetractReview(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Retracted review of %s", args[0])
	},
}

var reviewModifyCmd = &cobra.Command{
	Use:   "modify <record-hash>",
	Short: "Change the severity and culpability of your active dispute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		severity, _ := cmd.Flags().GetInt("severity")
		culpability, _ := cmd.Flags().GetInt("culpability")
		if err := ledger.ModifyDispute(cmd.Context(), args[0], severity, culpability); err != nil {
			return err
		}
		return printSuccess(cmd.OutOrStdout(), "Dispute on %s modified", args[0])
	},
}

var reviewReactCmd = &cobra.Command{
	Use:   "react <record-hash> <disputer>",
	Short: "Support or oppose a dispute",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oppose, _ := cmd.Flags().GetBool("oppose")
		if err := ledger.ReactToDispute(cmd.Context(), args[0], args[1], !oppose); err != nil {
			return err
		}
		verb := "Supported"
		if oppose {
			verb = "Opposed"
		}
		return printSuccess(cmd.OutOrStdout(), "%s dispute by %s on %s", verb, args[1], args[0])
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list <record-hash>",
	Short: "List the review sequence of an anchored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviews, err := ledger.GetReviews(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printReviews(cmd.OutOrStdout(), reviews)
	},
}

var reviewReactionsCmd = &cobra.Command{
	Use:   "reactions <record-hash> <disputer>",
	Short: "List reactions to a dispute",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reactions, err := ledger.GetReactions(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		stats, err := ledger.GetReactionStats(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ok, err := formatOutput(out, map[string]interface{}{"reactions": reactions, "stats": stats}); ok {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tREACTOR\tSUPPORTS\tTIME")
		for _, r := range reactions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Index, r.Reactor, yesNo(r.SupportsDispute), formatTime(r.Timestamp))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d support, %d oppose\n", stats.Supports, stats.Opposes)
		return nil
	},
}

func printReviews(out io.Writer, reviews []*types.Review) error {
	if ok, err := formatOutput(out, reviews); ok {
		return err
	}
	if len(reviews) == 0 {
		fmt.Fprintln(out, "No reviews found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tREVIEWER\tTYPE\tSEVERITY\tCULPABILITY\tACTIVE\tTIME")
	for _, r := range reviews {
		kind := color.GreenString(string(r.ReviewType))
		if r.ReviewType == types.ReviewDispute {
			kind = color.RedString(string(r.ReviewType))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n", r.Index, r.Reviewer, kind, r.Severity, r.Culpability, yesNo(r.IsActive), formatTime(r.Timestamp))
	}
	return w.Flush()
}
