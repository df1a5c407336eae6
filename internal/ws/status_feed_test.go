package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type staticSource struct {
	mu       sync.Mutex
	statuses map[string]string
	reads    int
}

func (s *staticSource) OverlayStatuses(ctx context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	out := make(map[string]string)
	for _, id := range ids {
		if st, ok := s.statuses[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *staticSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func dialFeed(t *testing.T, feed *StatusFeed, ids string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(feed.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?ids=" + ids
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// The connection must keep streaming after the upgrade handler has returned;
// a feed tied to the request context dies before the first snapshot.
func TestFeedStreamsSnapshots(t *testing.T) {
	source := &staticSource{statuses: map[string]string{"ch-1": "in_use", "ch-2": "available"}}
	feed := NewStatusFeed(source, 20*time.Millisecond, zap.NewNop())
	conn := dialFeed(t, feed, "ch-1,ch-2")

	for i := 1; i <= 3; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap struct {
			At       time.Time         `json:"at"`
			Statuses map[string]string `json:"statuses"`
		}
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		if snap.At.IsZero() {
			t.Fatalf("snapshot %d missing timestamp", i)
		}
		if snap.Statuses["ch-1"] != "in_use" || snap.Statuses["ch-2"] != "available" {
			t.Fatalf("snapshot %d statuses = %v", i, snap.Statuses)
		}
	}
}

func TestFeedStopsOnClientDisconnect(t *testing.T) {
	source := &staticSource{statuses: map[string]string{"ch-1": "available"}}
	feed := NewStatusFeed(source, 20*time.Millisecond, zap.NewNop())
	conn := dialFeed(t, feed, "ch-1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	conn.Close()

	// Give the read pump time to notice the disconnect, then verify the
	// push loop stopped polling the source.
	time.Sleep(150 * time.Millisecond)
	settled := source.readCount()
	time.Sleep(150 * time.Millisecond)
	if got := source.readCount(); got != settled {
		t.Fatalf("source still polled after disconnect: %d -> %d", settled, got)
	}
}

func TestFeedRequiresIDs(t *testing.T) {
	feed := NewStatusFeed(&staticSource{}, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	feed.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/chargers/status/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
