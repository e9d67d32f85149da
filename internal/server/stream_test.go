// internal/server/stream_test.go
package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealdesk/internal/catalog"
	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/guard"
	"dealdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type wsMessage struct {
	Type  string        `json:"type"`
	Deals []models.Deal `json:"deals"`
	Total int           `json:"total"`
	Error string        `json:"error"`
}

func createStreamServer(t *testing.T, source *stubSource, identity *models.Identity) (*httptest.Server, *stubSource) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	approved := catalog.NewApproved(source, logger.NewTestLogger(t))
	t.Cleanup(approved.Close)
	h := NewStreamHandler(approved, source, logger.NewTestLogger(t))

	router := gin.New()
	router.GET("/ws/deals", h.StreamApproved)
	router.GET("/ws/deals/mine", func(c *gin.Context) {
		if identity != nil {
			c.Set(guard.ContextIdentity, identity)
		}
		h.StreamMine(c)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, source
}

func dialStream(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// ==========================
// Approved Stream Tests
// ==========================

func TestStreamApproved_ReplaysSnapshotLoadedBeforeConnect(t *testing.T) {
	srv, source := createStreamServer(t, &stubSource{}, nil)
	source.pushApproved([]models.Deal{approvedDeal("early", 100000)})

	conn := dialStream(t, srv, "/ws/deals")
	msg := readMessage(t, conn)

	assert.Equal(t, "snapshot", msg.Type)
	require.Equal(t, 1, msg.Total)
	assert.Equal(t, "early", msg.Deals[0].ID)
}

func TestStreamApproved_PushesSubsequentSnapshots(t *testing.T) {
	srv, source := createStreamServer(t, &stubSource{}, nil)

	conn := dialStream(t, srv, "/ws/deals")
	source.pushApproved([]models.Deal{approvedDeal("a", 100000), approvedDeal("b", 50000)})

	msg := readMessage(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, 2, msg.Total)
}

func TestStreamApproved_SendsErrorWhenFeedIsDown(t *testing.T) {
	srv, source := createStreamServer(t, &stubSource{}, nil)
	source.failApproved(errors.NewSubscriptionError("deal feed connection lost", nil))

	conn := dialStream(t, srv, "/ws/deals")
	msg := readMessage(t, conn)

	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "deal feed connection lost")
}

// ==========================
// Submitter Stream Tests
// ==========================

func TestStreamMine_DeliversSnapshotFromFastInitialLoad(t *testing.T) {
	// The dedicated mirror's initial load completes synchronously inside
	// the subscribe call, before the connection attaches its listener.
	// The snapshot must still reach the client.
	source := &stubSource{mineInitial: []models.Deal{{ID: "mine", SubmitterUID: "inv-1"}}}
	srv, _ := createStreamServer(t, source, &models.Identity{ID: "inv-1"})

	conn := dialStream(t, srv, "/ws/deals/mine")
	msg := readMessage(t, conn)

	assert.Equal(t, "snapshot", msg.Type)
	require.Equal(t, 1, msg.Total)
	assert.Equal(t, "mine", msg.Deals[0].ID)
	assert.Equal(t, "inv-1", source.submitterUID)
}

func TestStreamMine_WithoutIdentityIsRejected(t *testing.T) {
	srv, _ := createStreamServer(t, &stubSource{}, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/deals/mine"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err, "the stream must not upgrade without an authenticated identity")
}
