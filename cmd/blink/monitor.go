package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/study"
)

var (
	monitorURL string
	monitorRaw bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print live events from a running dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), monitorURL, monitorRaw)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorURL, "url", "http://localhost:8181", "dashboard URL")
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "print raw JSON")
	rootCmd.AddCommand(monitorCmd)
}

// eventsURL turns a dashboard URL into its /ws/events endpoint.
func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/events"
	return u.String(), nil
}

func runMonitor(ctx context.Context, base string, raw bool) error {
	endpoint, err := eventsURL(base)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	defer conn.Close()
	log.Info("monitoring", "url", endpoint)

	// Unblock ReadMessage on Ctrl+C.
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if raw {
			fmt.Println(string(data))
			continue
		}

		var n study.Notice
		if err := json.Unmarshal(data, &n); err != nil {
			log.Debug("skipping undecodable event", "err", err)
			continue
		}
		fmt.Println(formatNotice(n))
	}
}

// formatNotice renders a notice as one terminal line.
func formatNotice(n study.Notice) string {
	ts := n.Time.Local().Format("15:04:05")
	if n.Time.IsZero() {
		ts = "--:--:--"
	}

	var detail string
	switch n.Type {
	case study.NoticeBlink:
		detail = fmt.Sprintf("blink #%d (segment %d)", n.Total, n.Blinks)
	case study.NoticeRate:
		detail = fmt.Sprintf("rate %.2f/min over %d blinks", n.Rate, n.Blinks)
	case study.NoticeTask:
		detail = "task " + n.Task
	case study.NoticeStimulus:
		detail = "stimulus " + string(n.Stimulus)
		if n.Stimulus == study.ModeNone {
			detail = "stimulus cleared"
		}
	case study.NoticeStatus:
		detail = "state " + n.State
		if n.Task != "" {
			detail += " task " + n.Task
		}
	case study.NoticeFinished:
		detail = fmt.Sprintf("finished after %d blinks", n.Total)
		if n.Error != "" {
			detail += ": " + n.Error
		}
	default:
		detail = n.Message
	}

	if n.Session != "" {
		short := n.Session
		if len(short) > 8 {
			short = short[:8]
		}
		return fmt.Sprintf("%s [%s] %-8s %s", ts, short, n.Type, detail)
	}
	return fmt.Sprintf("%s %-8s %s", ts, n.Type, detail)
}
