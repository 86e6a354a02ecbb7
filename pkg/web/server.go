// Package web serves the study dashboard: REST controls for the session and
// websocket streams for the annotated camera feed and session notices.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/camera"
	"github.com/teslashibe/go-blink/pkg/hub"
	"github.com/teslashibe/go-blink/pkg/study"
)

// Controller is the session surface the dashboard drives.
// *study.Session implements it.
type Controller interface {
	Start(ctx context.Context) (string, error)
	SelectTask(i int) (string, error)
	Pause() (float64, error)
	Finish() (float64, error)
	Status() study.Status
	Tasks() []string
}

// Config holds dashboard settings.
type Config struct {
	Addr      string // listen address, e.g. ":8181"
	StaticDir string // optional front-end directory served at /
	LogBuffer int    // recent log entries kept for /api/logs
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Addr:      ":8181",
		LogBuffer: 500,
	}
}

// LogEntry is one line in the dashboard log.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Server is the dashboard. It is a study.Sink: attach it to the session with
// AddSink so frames and notices reach the websocket clients.
type Server struct {
	cfg  Config
	app  *fiber.App
	ctrl Controller
	cam  *camera.Manager

	// base bounds sessions started from the dashboard
	mu   sync.Mutex
	base context.Context

	logs   []LogEntry
	logsMu sync.RWMutex

	cameraHub *hub.Hub
	eventHub  *hub.Hub
}

// NewServer builds the dashboard around ctrl. cam may be nil, in which case
// the /api/camera routes answer 404.
func NewServer(cfg Config, ctrl Controller, cam *camera.Manager) *Server {
	if cfg.LogBuffer <= 0 {
		cfg.LogBuffer = DefaultConfig().LogBuffer
	}

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		cam:       cam,
		base:      context.Background(),
		logs:      make([]LogEntry, 0, cfg.LogBuffer),
		cameraHub: hub.New("camera"),
		eventHub:  hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Blink Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tasks", s.handleTasks)
	api.Post("/tasks/:id", s.handleSelectTask)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/pause", s.handlePause)
	api.Post("/session/finish", s.handleFinish)
	api.Get("/logs", s.handleLogs)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and the HTTP server on ln until ctx is done. Sessions
// started from the dashboard are bound to ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	go s.cameraHub.Run(ctx)
	go s.eventHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Info("dashboard listening", "addr", ln.Addr().String())
		errc <- s.app.Listener(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return <-errc
	}
}

// Frame implements study.Sink.
func (s *Server) Frame(jpeg []byte) {
	if s.cameraHub.Subscribers() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// Notify implements study.Sink.
func (s *Server) Notify(n study.Notice) {
	if msg := describe(n); msg != "" {
		s.AddLog(string(n.Type), msg)
	}
	if err := s.eventHub.BroadcastJSON(n); err != nil {
		log.Warn("notice not broadcast", "type", n.Type, "err", err)
	}
}

// AddLog appends to the dashboard log ring.
func (s *Server) AddLog(kind, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    kind,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.cfg.LogBuffer {
		s.logs = s.logs[len(s.logs)-s.cfg.LogBuffer:]
	}
	s.logsMu.Unlock()
}

// Logs returns a copy of the log ring.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// describe renders a notice as a log line. Status notices are not logged.
func describe(n study.Notice) string {
	switch n.Type {
	case study.NoticeLog:
		return n.Message
	case study.NoticeBlink:
		return fmt.Sprintf("blink detected (%d in segment, %d total)", n.Blinks, n.Total)
	case study.NoticeTask:
		return "Task: " + n.Task
	case study.NoticeRate:
		return fmt.Sprintf("Eye blink rate: %.2f", n.Rate)
	case study.NoticeStimulus:
		if n.Stimulus == study.ModeNone {
			return "stimulus cleared"
		}
		return "stimulated: " + string(n.Stimulus)
	case study.NoticeFinished:
		if n.Error != "" {
			return "tracking stopped: " + n.Error
		}
		return "tracking finished"
	}
	return ""
}

// errorHandler renders errors as JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
