package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cleantree/internal/domain/services"
	"cleantree/internal/event"
	"cleantree/internal/handler/sse"
	"cleantree/internal/httputil"
)

// FeedHandler streams the committed changes of a tree, as SSE for browsers
// and as CBOR frames over a websocket for Go clients.
type FeedHandler struct {
	treeService services.TreeService
	config      *sse.Config
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewFeedHandler creates a feed handler. Websocket upgrades are accepted
// from allowedOrigins ("*" for any) and from clients sending no Origin.
func NewFeedHandler(treeService services.TreeService, config *sse.Config, allowedOrigins []string, logger *slog.Logger) *FeedHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &FeedHandler{
		treeService: treeService,
		config:      config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// Register mounts the feed routes on mux.
func (h *FeedHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/trees/{tree}/events", h.StreamEvents)
	mux.HandleFunc("GET /api/trees/{tree}/ws", h.StreamFrames)
}

type sequenced struct {
	seq   uint64
	event event.Event
}

// subscription buffers feed events for one client. A client that falls
// BufferSize events behind is dropped rather than stalling the publisher.
type subscription struct {
	events   chan sequenced
	overflow chan struct{}
	once     sync.Once
	stop     func()
}

func (h *FeedHandler) subscribe(treeID string) *subscription {
	sub := &subscription{
		events:   make(chan sequenced, h.config.BufferSize),
		overflow: make(chan struct{}),
	}
	var seq atomic.Uint64
	sub.stop = h.treeService.Watch(treeID, func(e event.Event) {
		select {
		case sub.events <- sequenced{seq: seq.Add(1), event: e}:
		default:
			sub.once.Do(func() { close(sub.overflow) })
		}
	})
	return sub
}

// StreamEvents streams the change feed as Server-Sent Events
// GET /api/trees/{tree}/events
func (h *FeedHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	treeID := r.PathValue("tree")
	clientID := uuid.NewString()
	logger := h.logger.With("tree_id", treeID, "client_id", clientID, "transport", "sse")

	// Subscribe before the headers go out so a client that sees the
	// response cannot miss a change
	sub := h.subscribe(treeID)
	defer sub.stop()

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	keepAliveDone := keepAlive.Start(writer, logger)
	defer keepAlive.Stop()

	logger.Info("feed client connected")
	defer logger.Info("feed client disconnected")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAliveDone:
			return
		case <-sub.overflow:
			logger.Warn("feed client too slow, closing stream", "buffer", h.config.BufferSize)
			return
		case msg := <-sub.events:
			data, err := json.Marshal(msg.event)
			if err != nil {
				logger.Error("failed to encode feed event", "kind", msg.event.Kind(), "error", err)
				continue
			}
			if err := writer.WriteEvent(string(msg.event.Kind()), msg.seq, data); err != nil {
				logger.Debug("feed write failed", "error", err)
				return
			}
		}
	}
}

// StreamFrames streams the change feed as binary CBOR frames
// GET /api/trees/{tree}/ws
func (h *FeedHandler) StreamFrames(w http.ResponseWriter, r *http.Request) {
	treeID := r.PathValue("tree")
	clientID := uuid.NewString()
	logger := h.logger.With("tree_id", treeID, "client_id", clientID, "transport", "websocket")

	sub := h.subscribe(treeID)
	defer sub.stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	interval := h.config.KeepAliveInterval
	pongWait := 2 * interval

	// The feed is one-way; reading only services pongs and notices closes
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(interval)
	defer ping.Stop()

	logger.Info("feed client connected")
	defer logger.Info("feed client disconnected")

	for {
		select {
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			return
		case <-sub.overflow:
			logger.Warn("feed client too slow, closing stream", "buffer", h.config.BufferSize)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "slow consumer"),
				time.Now().Add(time.Second))
			return
		case msg := <-sub.events:
			data, err := event.EncodeFrame(msg.seq, msg.event)
			if err != nil {
				logger.Error("failed to encode feed frame", "kind", msg.event.Kind(), "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(interval))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				logger.Debug("feed write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
