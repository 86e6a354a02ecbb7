package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/camera"
	"github.com/teslashibe/go-blink/pkg/study"
)

// fakeController records calls and returns canned results.
type fakeController struct {
	mu       sync.Mutex
	started  int
	selected []int
	startErr error
	pauseErr error
	tasks    []string
	startCtx context.Context
}

func (f *fakeController) Start(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started++
	f.startCtx = ctx
	return "session-1", nil
}

func (f *fakeController) SelectTask(i int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.tasks) {
		return "", study.ErrUnknownTask
	}
	f.selected = append(f.selected, i)
	return f.tasks[i], nil
}

func (f *fakeController) Pause() (float64, error) {
	if f.pauseErr != nil {
		return 0, f.pauseErr
	}
	return 12.5, nil
}

func (f *fakeController) Finish() (float64, error) { return 3, nil }

func (f *fakeController) Status() study.Status {
	return study.Status{Session: "session-1", State: "running", Task: -1, Total: 4}
}

func (f *fakeController) Tasks() []string { return f.tasks }

func newTestServer() (*Server, *fakeController) {
	ctrl := &fakeController{tasks: []string{"http://task/a", "http://task/b"}}
	return NewServer(DefaultConfig(), ctrl, camera.NewManager(camera.DefaultConfig())), ctrl
}

func doJSON(t *testing.T, s *Server, method, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, body, err)
		}
	}
	return resp.StatusCode
}

func TestAPI_Status(t *testing.T) {
	s, _ := newTestServer()

	var st StatusResponse
	if code := doJSON(t, s, "GET", "/api/status", &st); code != 200 {
		t.Fatalf("status code: %d", code)
	}
	if st.Session != "session-1" || st.State != "running" || st.Total != 4 {
		t.Errorf("status body: %+v", st)
	}
}

func TestAPI_Tasks(t *testing.T) {
	s, ctrl := newTestServer()

	var tasks []TaskInfo
	doJSON(t, s, "GET", "/api/tasks", &tasks)
	if len(tasks) != 2 || tasks[1].ID != 1 || tasks[1].URL != "http://task/b" {
		t.Errorf("tasks: %+v", tasks)
	}

	var sel struct {
		Task int    `json:"task"`
		URL  string `json:"url"`
	}
	if code := doJSON(t, s, "POST", "/api/tasks/1", &sel); code != 200 {
		t.Fatalf("select code: %d", code)
	}
	if sel.URL != "http://task/b" || len(ctrl.selected) != 1 {
		t.Errorf("select: %+v, calls=%v", sel, ctrl.selected)
	}

	if code := doJSON(t, s, "POST", "/api/tasks/9", nil); code != 404 {
		t.Errorf("unknown task: got %d, want 404", code)
	}
	if code := doJSON(t, s, "POST", "/api/tasks/abc", nil); code != 400 {
		t.Errorf("bad task id: got %d, want 400", code)
	}
}

func TestAPI_SessionControls(t *testing.T) {
	s, ctrl := newTestServer()

	var started map[string]string
	if code := doJSON(t, s, "POST", "/api/session/start", &started); code != 201 {
		t.Fatalf("start code: %d", code)
	}
	if started["session"] != "session-1" || ctrl.started != 1 {
		t.Errorf("start: %v", started)
	}
	if ctrl.startCtx == nil || ctrl.startCtx.Err() != nil {
		t.Error("session should get a live base context")
	}

	var rate map[string]float64
	if code := doJSON(t, s, "POST", "/api/session/pause", &rate); code != 200 || rate["rate"] != 12.5 {
		t.Errorf("pause: code=%d body=%v", code, rate)
	}

	ctrl.pauseErr = study.ErrNoTask
	var apiErr map[string]string
	if code := doJSON(t, s, "POST", "/api/session/pause", &apiErr); code != 409 {
		t.Errorf("pause without task: got %d, want 409", code)
	}
	if apiErr["error"] == "" {
		t.Error("error body missing")
	}

	if code := doJSON(t, s, "POST", "/api/session/finish", &rate); code != 200 || rate["rate"] != 3 {
		t.Errorf("finish: code=%d body=%v", code, rate)
	}
}

func TestAPI_StartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"active", study.ErrSessionActive, 409},
		{"no camera", &blink.DeviceError{Device: "0", Err: blink.ErrDeviceNotFound}, 503},
		{"no cascade", &blink.ResourceError{Path: "face.xml", Err: io.ErrUnexpectedEOF}, 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, ctrl := newTestServer()
			ctrl.startErr = tc.err
			if code := doJSON(t, s, "POST", "/api/session/start", nil); code != tc.want {
				t.Errorf("got %d, want %d", code, tc.want)
			}
		})
	}
}

func TestNotify_Logs(t *testing.T) {
	s, _ := newTestServer()

	s.Notify(study.Notice{Type: study.NoticeTask, Task: "http://task/a"})
	s.Notify(study.Notice{Type: study.NoticeStatus})
	s.Notify(study.Notice{Type: study.NoticeRate, Rate: 14})

	var logs []LogEntry
	doJSON(t, s, "GET", "/api/logs", &logs)
	if len(logs) != 2 {
		t.Fatalf("logs: got %d entries, want 2: %+v", len(logs), logs)
	}
	if logs[0].Message != "Task: http://task/a" || logs[1].Message != "Eye blink rate: 14.00" {
		t.Errorf("logs: %+v", logs)
	}
}

func TestAddLog_Ring(t *testing.T) {
	s := NewServer(Config{LogBuffer: 3}, &fakeController{}, nil)
	for i := 0; i < 5; i++ {
		s.AddLog("log", string(rune('a'+i)))
	}

	logs := s.Logs()
	if len(logs) != 3 || logs[0].Message != "c" || logs[2].Message != "e" {
		t.Errorf("ring: %+v", logs)
	}
}

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWS_Events(t *testing.T) {
	s, _ := newTestServer()
	addr := startServer(t, s)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/events", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first study.Notice
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != study.NoticeStatus || first.Session != "session-1" {
		t.Errorf("first message: %+v", first)
	}

	waitFor(t, "event subscriber", func() bool { return s.eventHub.Subscribers() == 1 })

	s.Notify(study.Notice{Type: study.NoticeBlink, Blinks: 2, Total: 5})

	var n study.Notice
	if err := ws.ReadJSON(&n); err != nil {
		t.Fatalf("read blink: %v", err)
	}
	if n.Type != study.NoticeBlink || n.Total != 5 {
		t.Errorf("blink notice: %+v", n)
	}
}

func TestWS_Camera(t *testing.T) {
	s, _ := newTestServer()
	addr := startServer(t, s)

	// No subscribers: frames are skipped without touching the hub
	s.Frame([]byte{0})

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/camera", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	waitFor(t, "camera subscriber", func() bool { return s.cameraHub.Subscribers() == 1 })

	s.Frame([]byte{0xff, 0xd8, 0xff})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if kind != websocket.BinaryMessage || len(data) != 3 {
		t.Errorf("frame: type=%d len=%d", kind, len(data))
	}

	ws.Close()
	waitFor(t, "camera unsubscribe", func() bool { return s.cameraHub.Subscribers() == 0 })
}

func TestWS_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer()
	if code := doJSON(t, s, "GET", "/ws/events", nil); code != 426 {
		t.Errorf("plain GET on websocket route: got %d, want 426", code)
	}
}

func TestAPI_Camera(t *testing.T) {
	s, _ := newTestServer()

	var cfg camera.Config
	if code := doJSON(t, s, "GET", "/api/camera", &cfg); code != 200 || cfg.Width != 1280 {
		t.Fatalf("get camera: code=%d cfg=%+v", code, cfg)
	}

	req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"preset":"legacy","mirror":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || cfg.Width != 640 || !cfg.Mirror {
		t.Errorf("update camera: code=%d cfg=%+v", resp.StatusCode, cfg)
	}

	bad := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"width":5}`))
	bad.Header.Set("Content-Type", "application/json")
	resp, err = s.App().Test(bad)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("invalid width: got %d, want 400", resp.StatusCode)
	}

	var names []string
	doJSON(t, s, "GET", "/api/camera/presets", &names)
	if len(names) != 4 {
		t.Errorf("presets: %v", names)
	}

	noCam := NewServer(DefaultConfig(), &fakeController{}, nil)
	if code := doJSON(t, noCam, "GET", "/api/camera", nil); code != 404 {
		t.Errorf("camera without manager: got %d, want 404", code)
	}
}

func TestNotify_StimulusLogs(t *testing.T) {
	s, _ := newTestServer()

	s.Notify(study.Notice{Type: study.NoticeStimulus, Stimulus: study.ModeBlur})
	s.Notify(study.Notice{Type: study.NoticeStimulus, Stimulus: study.ModeNone})

	logs := s.Logs()
	if len(logs) != 2 {
		t.Fatalf("logs: got %d entries, want 2: %+v", len(logs), logs)
	}
	if logs[0].Message != "stimulated: blur" || logs[1].Message != "stimulus cleared" {
		t.Errorf("logs: %+v", logs)
	}
}
