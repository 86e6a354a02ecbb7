package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	closed chan struct{}
	once   sync.Once
	block  chan struct{} // when non-nil, writes wait on it
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(t int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch t {
	case websocket.TextMessage:
		c.writes = append(c.writes, TextMessage(data))
	case websocket.BinaryMessage:
		c.writes = append(c.writes, BinaryMessage(data))
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error                      { c.once.Do(func() { close(c.closed) }); return nil }

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.writes...)
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

func TestHub_Broadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)

	conn := newFakeConn()
	s := Attach(h, conn)
	if s == nil {
		t.Fatal("Attach returned nil on a running hub")
	}
	go s.Serve()

	waitFor(t, "subscriber", func() bool { return h.Subscribers() == 1 })

	if err := h.BroadcastJSON(map[string]int{"blinks": 3}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	waitFor(t, "two writes", func() bool { return len(conn.messages()) == 2 })

	msgs := conn.messages()
	if msgs[0].Kind != Text || string(msgs[0].Data) != `{"blinks":3}` {
		t.Errorf("first message: got %v %q", msgs[0].Kind, msgs[0].Data)
	}
	if msgs[1].Kind != Binary || len(msgs[1].Data) != 2 {
		t.Errorf("second message: got %v %v", msgs[1].Kind, msgs[1].Data)
	}
}

func TestHub_Disconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)

	conn := newFakeConn()
	s := Attach(h, conn)
	go s.Serve()
	waitFor(t, "subscriber", func() bool { return h.Subscribers() == 1 })

	conn.Close()
	waitFor(t, "unregister", func() bool { return h.Subscribers() == 0 })
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)

	slow := newFakeConn()
	slow.block = make(chan struct{})
	defer close(slow.block)

	s := Attach(h, slow)
	go s.Serve()
	waitFor(t, "subscriber", func() bool { return h.Subscribers() == 1 })

	// One message is held by the blocked writer, the rest fill the buffer
	for i := 0; i < sendBuffer+8; i++ {
		h.BroadcastBinary([]byte{byte(i)})
		time.Sleep(time.Millisecond)
	}

	waitFor(t, "slow subscriber dropped", func() bool { return h.Subscribers() == 0 })
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("test")
	go h.Run(ctx)

	conn := newFakeConn()
	s := Attach(h, conn)
	go s.Serve()
	waitFor(t, "subscriber", func() bool { return h.Subscribers() == 1 })

	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}

	if Attach(h, newFakeConn()) != nil {
		t.Error("Attach after stop should return nil")
	}

	// Must not block or panic
	h.BroadcastBinary([]byte{1})
}

func TestJSONMessage_Error(t *testing.T) {
	if _, err := JSONMessage(make(chan int)); err == nil {
		t.Error("Expected marshal error")
	}
}
