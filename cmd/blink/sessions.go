package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/internal/config"
	"github.com/teslashibe/go-blink/pkg/store"
)

var (
	sessionsDB    string
	sessionsLimit int
	sessionsShow  string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionsDB == "" {
			return errors.New("no database configured (use --db, DATABASE_URL or POSTGRES_HOST)")
		}

		ctx := cmd.Context()
		st, err := store.New(ctx, sessionsDB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer st.Close(context.Background())

		if sessionsShow != "" {
			return showSession(ctx, st, sessionsShow)
		}
		return listSessions(ctx, st, sessionsLimit)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsDB, "db", config.DatabaseURL(), "PostgreSQL connection string")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "number of sessions to list")
	sessionsCmd.Flags().StringVar(&sessionsShow, "show", "", "print the segments of one session")
	rootCmd.AddCommand(sessionsCmd)
}

func listSessions(ctx context.Context, st *store.Store, limit int) error {
	sessions, err := st.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions archived.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tSEGMENTS\tBLINKS")
	fmt.Fprintln(w, "--\t-------\t--------\t--------\t------")
	for _, s := range sessions {
		dur := "running"
		if s.Ended != nil {
			dur = s.Ended.Sub(s.Started).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Started.Local().Format("2006-01-02 15:04"), dur, s.Segments, s.Blinks)
	}
	return w.Flush()
}

func showSession(ctx context.Context, st *store.Store, id string) error {
	segs, err := st.Segments(ctx, id)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		fmt.Println("No segments for", id)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTARTED\tLENGTH\tBLINKS\tRATE/MIN")
	for _, s := range segs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\n", s.Task, s.Started.Local().Format("15:04:05"), s.Ended.Sub(s.Started).Round(time.Second), s.Blinks, s.Rate)
	}
	return w.Flush()
}
