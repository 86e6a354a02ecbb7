package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			json.NewEncoder(w).Encode(map[string]any{"state": "running"})
		case "/api/camera":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if r.Header.Get("Content-Type") != "application/json" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			json.NewEncoder(w).Encode(body)
		case "/api/session/pause":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"study: no task selected"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	if c.Base() != srv.URL {
		t.Errorf("Base: got %s", c.Base())
	}
	ctx := context.Background()

	var st map[string]string
	if err := c.Get(ctx, "/api/status", &st); err != nil || st["state"] != "running" {
		t.Errorf("Get: %v %v", st, err)
	}

	var echoed map[string]bool
	if err := c.Put(ctx, "/api/camera", map[string]bool{"mirror": true}, &echoed); err != nil || !echoed["mirror"] {
		t.Errorf("Put: %v %v", echoed, err)
	}

	err := c.Post(ctx, "/api/session/pause", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 409 || apiErr.Message != "study: no task selected" {
		t.Errorf("Post error: %v", err)
	}

	err = c.Get(ctx, "/missing", nil)
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Errorf("404: %v", err)
	}
}
