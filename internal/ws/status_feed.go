package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusSource reads overlay statuses for the feed.
type StatusSource interface {
	OverlayStatuses(ctx context.Context, chargerIDs []string) (map[string]string, error)
}

// StatusFeed pushes periodic overlay-status snapshots for a set of chargers
// over a websocket. Read-only: it never writes lock-store keys.
type StatusFeed struct {
	source   StatusSource
	interval time.Duration
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewStatusFeed builds the feed handler.
func NewStatusFeed(source StatusSource, interval time.Duration, logger *zap.Logger) *StatusFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusFeed{
		source:   source,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type snapshot struct {
	At       time.Time         `json:"at"`
	Statuses map[string]string `json:"statuses"`
}

// HandleWS is the HTTP handler for GET /chargers/status/ws?ids=a,b,c.
func (f *StatusFeed) HandleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}
	ids := strings.Split(raw, ",")

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	// The connection outlives this handler, so its lifetime cannot hang off
	// r.Context(): net/http cancels that as soon as ServeHTTP returns. The
	// read pump cancels on client disconnect instead.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go f.push(ctx, conn, ids)
}

func (f *StatusFeed) push(ctx context.Context, conn *websocket.Conn, ids []string) {
	defer conn.Close()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		statuses, err := f.source.OverlayStatuses(ctx, ids)
		if err != nil {
			f.logger.Warn("status feed read failed", zap.Error(err))
		} else {
			if err := conn.WriteJSON(snapshot{At: time.Now().UTC(), Statuses: statuses}); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
