package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/backdrop/internal/store"
	"github.com/andresmejia3/backdrop/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded render sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			return err
		}
		return runSessions(cmd.Context(), os.Stdout)
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum number of sessions to show (0 = all)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(ctx context.Context, out io.Writer) error {
	sessions, err := DB.ListSessions(ctx, sessionsLimit)
	if err != nil {
		utils.ShowError("Failed to list sessions", err, nil)
		return err
	}
	printSessions(out, sessions)
	return nil
}

func printSessions(out io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No render sessions found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tMODEL\tSIZE\tFRAMES\tMS/FRAME\tSTARTED\tDURATION")
	fmt.Fprintln(w, "--\t----\t-----\t----\t------\t--------\t-------\t--------")

	for _, s := range sessions {
		duration := "running"
		if s.FinishedAt != nil {
			duration = s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%.2f\t%s\t%s\n",
			s.ID, s.Mode, s.Model, s.Width, s.Height, s.Frames, s.MeanFrameMs,
			s.StartedAt.Local().Format("2006-01-02 15:04"), duration)
	}
	w.Flush()
}
