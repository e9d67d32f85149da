// internal/server/stream.go
package server

import (
	"net/http"
	"sync"
	"time"

	"dealdesk/internal/catalog"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// StreamHandler pushes full catalog snapshots over WebSocket. Every
// message is a complete list; clients replace their view wholesale.
type StreamHandler struct {
	approved *catalog.Synchronizer
	source   catalog.Source
	upgrader websocket.Upgrader
	logger   logger.Logger
}

func NewStreamHandler(approved *catalog.Synchronizer, source catalog.Source, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		approved: approved,
		source:   source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.WithFields(map[string]interface{}{"handler": "stream"}),
	}
}

type snapshotMessage struct {
	Type  string        `json:"type"`
	Deals []models.Deal `json:"deals"`
	Total int           `json:"total"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// StreamApproved attaches the client to the shared approved-deals mirror.
func (h *StreamHandler) StreamApproved(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed", nil)
		return
	}

	client := newStreamClient(conn, h.logger)

	// Watch replays the current snapshot on attach, so a snapshot that
	// loaded before this connection is never skipped.
	detach := h.approved.Watch(client.sendSnapshot)
	defer detach()

	if serr := h.approved.Err(); serr != nil {
		client.sendError(serr.Error())
	}

	client.serve()
}

// StreamMine opens a dedicated mirror of the caller's own deals for the
// lifetime of the connection.
func (h *StreamHandler) StreamMine(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed", nil)
		return
	}

	client := newStreamClient(conn, h.logger)

	mirror := catalog.NewBySubmitter(h.source, identity.ID, h.logger)
	defer mirror.Close()

	// The mirror's initial load races this attach; Watch replays it when
	// it has already landed.
	detach := mirror.Watch(client.sendSnapshot)
	defer detach()

	client.serve()
}

// streamClient wraps one WebSocket connection. The write mutex serializes
// snapshot pushes against control frames; gorilla connections do not
// allow concurrent writers.
type streamClient struct {
	conn    *websocket.Conn
	logger  logger.Logger
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newStreamClient(conn *websocket.Conn, log logger.Logger) *streamClient {
	return &streamClient{
		conn:   conn,
		logger: log,
		done:   make(chan struct{}),
	}
}

func (sc *streamClient) sendSnapshot(deals []models.Deal) {
	sc.write(snapshotMessage{Type: "snapshot", Deals: deals, Total: len(deals)})
}

func (sc *streamClient) sendError(msg string) {
	sc.write(errorMessage{Type: "error", Error: msg})
}

func (sc *streamClient) write(v interface{}) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sc.conn.WriteJSON(v); err != nil {
		sc.logger.WithError(err).Debug("websocket write failed", nil)
		sc.close()
	}
}

// serve runs the connection until the client disconnects. The read loop
// exists to observe close frames and pong responses; clients send nothing
// else on this stream.
func (sc *streamClient) serve() {
	defer sc.conn.Close()

	sc.conn.SetReadLimit(512)
	sc.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sc.conn.SetPongHandler(func(string) error {
		sc.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	go sc.pingLoop()

	for {
		if _, _, err := sc.conn.ReadMessage(); err != nil {
			sc.close()
			return
		}
	}
}

func (sc *streamClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.done:
			return
		case <-ticker.C:
			sc.writeMu.Lock()
			err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			sc.writeMu.Unlock()
			if err != nil {
				sc.close()
				return
			}
		}
	}
}

func (sc *streamClient) close() {
	sc.once.Do(func() { close(sc.done) })
}
