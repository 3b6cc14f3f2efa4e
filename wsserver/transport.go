package wsserver

import (
	"time"

	"github.com/gorilla/websocket"
)

// transport adapts a gorilla connection to sessions.Transport. The session
// manager serializes WriteMessage per connection; pings go through
// WriteControl, which gorilla allows concurrently.
type transport struct {
	conn *websocket.Conn
}

func (t *transport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) Close() error {
	return t.conn.Close()
}
