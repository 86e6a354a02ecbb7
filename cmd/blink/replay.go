package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/camera"
	"github.com/teslashibe/go-blink/pkg/study"
	"github.com/teslashibe/go-blink/pkg/vision"
)

type replayOptions struct {
	track    trackFlags
	asJSON   bool
	noBar    bool
	fallback float64
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay <video>",
	Short: "Count blinks in a recorded video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), args[0], replayOpts)
	},
}

func init() {
	replayOpts.track.register(replayCmd, blink.ReplayConfig())

	fl := replayCmd.Flags()
	fl.BoolVar(&replayOpts.asJSON, "json", false, "print the summary as JSON")
	fl.BoolVar(&replayOpts.noBar, "no-progress", false, "hide the progress bar")
	fl.Float64Var(&replayOpts.fallback, "video-fps", 30, "frame rate to assume when the file does not report one")

	rootCmd.AddCommand(replayCmd)
}

// ReplaySummary is the result of a replay.
type ReplaySummary struct {
	Video      string        `json:"video"`
	Frames     int64         `json:"frames"`
	Blinks     int           `json:"blinks"`
	Duration   time.Duration `json:"duration_ns"`
	Rate       float64       `json:"rate_per_minute"`
	Noise      int64         `json:"detection_errors"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	BlinkTimes []float64     `json:"blink_seconds"`
}

// replayConsumer advances the progress bar and collects blinks.
type replayConsumer struct {
	bar    *progressbar.ProgressBar
	fps    float64
	blinks []float64
}

func (c *replayConsumer) OnFrame(f blink.Frame, _ blink.Overlay) {
	if c.bar != nil {
		c.bar.Set(f.Seq + 1)
	}
}

func (c *replayConsumer) OnBlink(b blink.Blink) {
	c.blinks = append(c.blinks, float64(b.FrameSeq)/c.fps)
}

func runReplay(ctx context.Context, path string, o replayOptions) error {
	// Probe the file for the progress bar and the video clock.
	probe, err := camera.OpenFile(path)
	if err != nil {
		return err
	}
	total := probe.FrameCount()
	fps := probe.FPS()
	probe.Close()
	if fps <= 0 {
		fps = o.fallback
	}

	cfg := o.track.apply(blink.ReplayConfig())
	// Every frame is consumed for the bar; coalescing is pointless offline.
	cfg.MaxPendingFrames = 256

	det := blink.New(cfg, camera.FileOpener(path), vision.Loader())

	c := &replayConsumer{fps: fps}
	if !o.noBar {
		c.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("Replaying "+path),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	start := time.Now()
	if err := det.Start(ctx); err != nil {
		return describeStartError(err)
	}

	finishErr := blink.Dispatch(ctx, det.Events(), c)
	det.Stop()
	<-det.Done()
	if c.bar != nil {
		c.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	// End of file is how a replay normally ends.
	if finishErr != nil && !errors.Is(finishErr, blink.ErrStreamEnded) && !errors.Is(finishErr, context.Canceled) {
		return finishErr
	}

	stats := det.Stats()
	videoTime := time.Duration(float64(stats.Frames) / fps * float64(time.Second))
	sum := ReplaySummary{
		Video:      path,
		Frames:     stats.Frames,
		Blinks:     int(stats.Blinks),
		Duration:   videoTime,
		Rate:       study.Rate(int(stats.Blinks), videoTime),
		Noise:      stats.DetectionErrors,
		Elapsed:    time.Since(start),
		BlinkTimes: c.blinks,
	}

	if o.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Printf("Video:      %s\n", sum.Video)
	fmt.Printf("Frames:     %d (%s of video)\n", sum.Frames, sum.Duration.Round(time.Second))
	fmt.Printf("Blinks:     %d\n", sum.Blinks)
	fmt.Printf("Blink rate: %.2f per minute\n", sum.Rate)
	if sum.Noise > 0 {
		fmt.Printf("Detection errors: %d\n", sum.Noise)
	}
	fmt.Printf("Processed in %s\n", sum.Elapsed.Round(time.Millisecond))
	return nil
}
