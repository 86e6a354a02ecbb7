package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/internal/httpc"
	"github.com/teslashibe/go-blink/pkg/web"
)

var ctlURL string

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running dashboard",
}

func ctlClient() *httpc.Client {
	return httpc.New(ctlURL, 30*time.Second)
}

var ctlStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Session string `json:"session"`
		}
		if err := ctlClient().Post(cmd.Context(), "/api/session/start", nil, &out); err != nil {
			return err
		}
		fmt.Println("session", out.Session)
		return nil
	},
}

var ctlTaskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Select a task and resume tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("task id must be a number: %w", err)
		}
		var out struct {
			URL string `json:"url"`
		}
		if err := ctlClient().Post(cmd.Context(), "/api/tasks/"+strconv.Itoa(id), nil, &out); err != nil {
			return err
		}
		fmt.Println(out.URL)
		return nil
	},
}

var ctlPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause tracking and print the segment blink rate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRate(cmd.Context(), "/api/session/pause")
	},
}

var ctlFinishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Finish the session and print the final blink rate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRate(cmd.Context(), "/api/session/finish")
	},
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var st web.StatusResponse
		if err := ctlClient().Get(cmd.Context(), "/api/status", &st); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Session:\t%s\n", orDash(st.Session))
		fmt.Fprintf(w, "State:\t%s\n", st.State)
		fmt.Fprintf(w, "Task:\t%s\n", orDash(st.TaskURL))
		fmt.Fprintf(w, "Blinks:\t%d in segment, %d total\n", st.Blinks, st.Total)
		fmt.Fprintf(w, "Rate:\t%.2f per minute\n", st.Rate)
		fmt.Fprintf(w, "Frames:\t%d (%d dropped)\n", st.Frames, st.DroppedFrames)
		fmt.Fprintf(w, "Stimuli:\t%d\n", st.Stimuli)
		fmt.Fprintf(w, "Viewers:\t%d camera, %d events\n", st.CameraClients, st.EventClients)
		return w.Flush()
	},
}

var ctlTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var tasks []web.TaskInfo
		if err := ctlClient().Get(cmd.Context(), "/api/tasks", &tasks); err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%d\t%s\n", t.ID, t.URL)
		}
		return nil
	},
}

func printRate(ctx context.Context, path string) error {
	var out struct {
		Rate float64 `json:"rate"`
	}
	if err := ctlClient().Post(ctx, path, nil, &out); err != nil {
		return err
	}
	fmt.Printf("Eye blink rate: %.2f\n", out.Rate)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlURL, "url", "http://localhost:8181", "dashboard URL")
	ctlCmd.AddCommand(ctlStartCmd, ctlTaskCmd, ctlPauseCmd, ctlFinishCmd, ctlStatusCmd, ctlTasksCmd)
	rootCmd.AddCommand(ctlCmd)
}
