package broadcast

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers are unauthenticated browser tabs on the developer's machine.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsObserver writes events as text frames. Only the hub's pump goroutine
// calls Send and Close; Interrupt may run concurrently with them.
type wsObserver struct {
	conn *websocket.Conn
}

func (o *wsObserver) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = o.conn.SetWriteDeadline(deadline)
	}
	return o.conn.WriteMessage(websocket.TextMessage, payload)
}

// Interrupt fails a write stuck on a client that stopped reading. It sets the
// deadline on the underlying net.Conn, which is safe during a write.
func (o *wsObserver) Interrupt() {
	_ = o.conn.NetConn().SetWriteDeadline(time.Now())
}

func (o *wsObserver) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return o.conn.Close()
}

// ServeWS upgrades the request and attaches the connection to the hub until
// the client goes away. Incoming frames are read and discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	detach := h.Attach(r.RemoteAddr, &wsObserver{conn: conn})
	defer detach()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
