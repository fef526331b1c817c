package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/thorwhalen/pacing/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect the session archive",
	}

	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions, newest first",
		RunE:  runReviewSessions,
	}
	sessions.Flags().IntP("limit", "l", 20, "Max results")

	transcript := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print the archived transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runReviewTranscript,
	}

	items := &cobra.Command{
		Use:   "items",
		Short: "List archived review items, most urgent first",
		RunE:  runReviewItems,
	}
	items.Flags().Bool("unreviewed", false, "Only unreviewed items")

	cmd.AddCommand(sessions, transcript, items)
	RootCmd.AddCommand(cmd)
}

func openArchive() (*store.SQLiteStore, error) {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Session.ArchivePath)
}

func runReviewSessions(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openArchive()
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.ListSessions(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	return printJSON(cmd.OutOrStdout(), recs)
}

func runReviewTranscript(cmd *cobra.Command, args []string) error {
	s, err := openArchive()
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.Transcript(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), events)
}

func runReviewItems(cmd *cobra.Command, args []string) error {
	unreviewed, _ := cmd.Flags().GetBool("unreviewed")

	s, err := openArchive()
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.ListReviewItems(cmd.Context(), unreviewed)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), items)
}
