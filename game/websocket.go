package game

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = time.Minute
	writeWait  = 10 * time.Second
	closeWait  = 20 * time.Second
	maxMessage = 16 << 10
)

type gorillaWebSocketWrapper struct {
	socket      *websocket.Conn
	messageType int
	closeOnce   sync.Once
}

// NewGorillaWebSocketWrapper sends binary frames when binary is set, text frames otherwise.
func NewGorillaWebSocketWrapper(conn *websocket.Conn, binary bool) *gorillaWebSocketWrapper {
	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	return &gorillaWebSocketWrapper{socket: conn, messageType: messageType}
}

func (wc *gorillaWebSocketWrapper) Write(data []byte) error {
	wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(wc.messageType, data)
}

func (wc *gorillaWebSocketWrapper) Ping() error {
	return wc.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (wc *gorillaWebSocketWrapper) Read() ([]byte, error) {
	_, p, err := wc.socket.ReadMessage()
	return p, err
}

func (wc *gorillaWebSocketWrapper) Close() {
	wc.CloseWithReason("")
}

// CloseWithReason tells the peer why the connection ends before closing it. Only the first
// close has any effect.
func (wc *gorillaWebSocketWrapper) CloseWithReason(reason string) {
	wc.closeOnce.Do(func() {
		code := websocket.CloseNormalClosure
		if reason != "" {
			code = websocket.ClosePolicyViolation
		}
		wc.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWait))
		wc.socket.Close()
	})
}
