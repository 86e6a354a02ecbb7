package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/internal/config"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/camera"
	"github.com/teslashibe/go-blink/pkg/store"
	"github.com/teslashibe/go-blink/pkg/study"
	"github.com/teslashibe/go-blink/pkg/telemetry"
	"github.com/teslashibe/go-blink/pkg/vision"
	"github.com/teslashibe/go-blink/pkg/web"
)

type serveOptions struct {
	track trackFlags

	addr       string
	staticDir  string
	logDir     string
	saveFrames bool
	tasks      []string
	noShuffle  bool
	stimulus   string
	fatigue    time.Duration
	autoStart  bool

	preset  string
	mirror  bool
	quality int

	dbURL      string
	mqttBroker string
	mqttPrefix string
	mqttFrames bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a live study with the web dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	defaults := study.DefaultConfig()
	serveOpts.track.register(serveCmd, defaults.Blink)

	fl := serveCmd.Flags()
	fl.StringVar(&serveOpts.addr, "addr", config.DashboardAddr(), "dashboard listen address (env BLINK_ADDR)")
	fl.StringVar(&serveOpts.staticDir, "static", "", "front-end directory served at /")
	fl.StringVar(&serveOpts.logDir, "log-dir", config.LogDir(), "session log root; empty disables (env BLINK_LOG_DIR)")
	fl.BoolVar(&serveOpts.saveFrames, "save-frames", false, "save annotated PNG frames for each task segment")
	fl.StringSliceVar(&serveOpts.tasks, "task", defaults.Tasks, "task URL (repeatable)")
	fl.BoolVar(&serveOpts.noShuffle, "no-shuffle", false, "keep tasks in the given order")
	fl.StringVar(&serveOpts.stimulus, "stimulus", string(defaults.Fatigue.Mode), "fatigue stimulus: none, flash, blur")
	fl.DurationVar(&serveOpts.fatigue, "fatigue", config.Duration("BLINK_FATIGUE", defaults.Fatigue.Limit), "time without a blink before a stimulus")
	fl.BoolVar(&serveOpts.autoStart, "start", false, "start a session immediately")

	fl.StringVar(&serveOpts.preset, "preset", camera.PresetDefault, "camera preset")
	fl.BoolVar(&serveOpts.mirror, "mirror", false, "mirror the camera image")
	fl.IntVar(&serveOpts.quality, "quality", camera.DefaultConfig().Quality, "dashboard JPEG quality")

	fl.StringVar(&serveOpts.dbURL, "db", config.DatabaseURL(), "PostgreSQL archive (env DATABASE_URL or POSTGRES_*); empty disables")
	fl.StringVar(&serveOpts.mqttBroker, "mqtt", config.MQTTBroker(), "MQTT broker for telemetry (env MQTT_BROKER); empty disables")
	fl.StringVar(&serveOpts.mqttPrefix, "mqtt-prefix", telemetry.DefaultConfig().Prefix, "MQTT topic prefix")
	fl.BoolVar(&serveOpts.mqttFrames, "mqtt-frames", false, "also publish annotated frames over MQTT")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, o serveOptions) error {
	mode, err := study.ParseMode(o.stimulus)
	if err != nil {
		return err
	}

	cfg := study.DefaultConfig()
	cfg.Blink = o.track.apply(cfg.Blink)
	cfg.Tasks = o.tasks
	cfg.Shuffle = !o.noShuffle
	cfg.LogDir = o.logDir
	cfg.SaveFrames = o.saveFrames
	cfg.Fatigue = study.FatigueConfig{Limit: o.fatigue, Mode: mode}
	if err := cfg.Validate(); err != nil {
		return err
	}

	camCfg, ok := camera.Preset(o.preset)
	if !ok {
		return fmt.Errorf("unknown camera preset %q (have %v)", o.preset, camera.PresetNames())
	}
	camCfg.Device = cfg.Blink.Device
	camCfg.Mirror = camCfg.Mirror || o.mirror
	camCfg.Quality = o.quality
	cams := camera.NewManager(camCfg)
	if err := cams.Set(camCfg); err != nil {
		return err
	}

	sess := study.New(cfg, camera.ManagedOpener(cams), vision.Loader())
	sess.SetEncoder(vision.NewEncoder(camCfg.Quality))
	cams.OnChange(func(c camera.Config) {
		sess.SetEncoder(vision.NewEncoder(c.Quality))
	})

	if o.dbURL != "" {
		st, err := store.New(ctx, o.dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		// ctx may already be cancelled at exit
		defer st.Close(context.Background())
		sess.SetArchive(st)
		log.Info("session archive enabled")
	}

	if o.mqttBroker != "" {
		tcfg := telemetry.DefaultConfig()
		tcfg.Broker = o.mqttBroker
		tcfg.Prefix = o.mqttPrefix
		tcfg.PublishFrames = o.mqttFrames
		pub, err := telemetry.Connect(tcfg)
		if err != nil {
			return err
		}
		defer pub.Close()
		sess.AddSink(pub)
	}

	srv := web.NewServer(web.Config{Addr: o.addr, StaticDir: o.staticDir, LogBuffer: 500}, sess, cams)
	sess.AddSink(srv)

	if o.autoStart {
		id, err := sess.Start(ctx)
		if err != nil {
			return describeStartError(err)
		}
		log.Info("session started", "session", id)
	}

	fmt.Printf("Dashboard: http://localhost%s\n", o.addr)
	serveErr := srv.ListenAndServe(ctx)

	if sess.Status().Session != "" {
		if rate, err := sess.Finish(); err == nil {
			log.Info("session finished on shutdown", "rate", rate)
		}
	}
	return serveErr
}

// describeStartError adds a hint for the failures users hit first.
func describeStartError(err error) error {
	switch {
	case errors.Is(err, blink.ErrClassifierLoad):
		return fmt.Errorf("%w (set --face-cascade/--eye-cascade or BLINK_RES_DIR)", err)
	case errors.Is(err, blink.ErrDeviceNotFound):
		return fmt.Errorf("%w (try --camera or BLINK_CAMERA)", err)
	}
	return err
}
