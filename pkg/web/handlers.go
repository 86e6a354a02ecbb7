package web

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/camera"
	"github.com/teslashibe/go-blink/pkg/hub"
	"github.com/teslashibe/go-blink/pkg/study"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	study.Status
	CameraClients int `json:"camera_clients"`
	EventClients  int `json:"event_clients"`
}

// TaskInfo is one entry of GET /api/tasks.
type TaskInfo struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Status:        s.ctrl.Status(),
		CameraClients: s.cameraHub.Subscribers(),
		EventClients:  s.eventHub.Subscribers(),
	})
}

func (s *Server) handleTasks(c *fiber.Ctx) error {
	tasks := s.ctrl.Tasks()
	out := make([]TaskInfo, len(tasks))
	for i, url := range tasks {
		out[i] = TaskInfo{ID: i, URL: url}
	}
	return c.JSON(out)
}

func (s *Server) handleSelectTask(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "task id must be an integer")
	}

	url, err := s.ctrl.SelectTask(id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"task": id, "url": url})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	// Not c.Context(): fiber recycles it once the handler returns.
	id, err := s.ctrl.Start(s.baseContext())
	if err != nil {
		return apiError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": id})
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	rate, err := s.ctrl.Pause()
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"rate": rate})
}

func (s *Server) handleFinish(c *fiber.Ctx) error {
	rate, err := s.ctrl.Finish()
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"rate": rate})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cam == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.cam.Config())
}

// handleUpdateCamera applies a partial change; it takes effect at the next
// session start.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.cam == nil {
		return fiber.ErrNotFound
	}

	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid camera update: "+err.Error())
	}

	cfg, err := s.cam.Apply(u)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.AddLog("camera", fmt.Sprintf("camera set to %dx%d@%d", cfg.Width, cfg.Height, cfg.Framerate))
	return c.JSON(cfg)
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	sub := hub.Attach(s.cameraHub, c)
	if sub == nil {
		return
	}
	sub.Serve()
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	// Current status first; the subscriber's writer is not running yet.
	st := s.ctrl.Status()
	if err := c.WriteJSON(study.Notice{Type: study.NoticeStatus, Session: st.Session, State: st.State, Task: st.TaskURL, Blinks: st.Blinks, Total: st.Total}); err != nil {
		log.Debug("event client gone before status", "err", err)
		return
	}

	sub := hub.Attach(s.eventHub, c)
	if sub == nil {
		return
	}
	sub.Serve()
}

// apiError maps session errors onto HTTP status codes.
func apiError(err error) error {
	var de *blink.DeviceError
	switch {
	case errors.Is(err, study.ErrSessionActive),
		errors.Is(err, study.ErrNoSession),
		errors.Is(err, study.ErrNoTask),
		errors.Is(err, study.ErrPausePending),
		errors.Is(err, blink.ErrFinished):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, study.ErrUnknownTask):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.As(err, &de):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
