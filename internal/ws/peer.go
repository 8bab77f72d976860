package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// Transport is the subset of *websocket.Conn a Peer needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Peer is the send side of one live connection. Writes are serialized and
// Close is idempotent, so a Peer may be shared between the owning session
// and group fan-out.
type Peer struct {
	Info ConnInfo

	conn      Transport
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewPeer(conn Transport, info ConnInfo) *Peer {
	return &Peer{Info: info, conn: conn}
}

func (p *Peer) UserID() int {
	return p.Info.UserID
}

// Send writes one text frame. The write is abandoned once timeout elapses.
func (p *Peer) Send(payload []byte, timeout time.Duration) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

func (p *Peer) Ping(timeout time.Duration) error {
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// CloseWith sends a close frame with code and reason, then closes the
// transport. Only the first call has any effect.
func (p *Peer) CloseWith(code int, reason string) error {
	p.closeOnce.Do(func() {
		_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeGrace))
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *Peer) Close() error {
	return p.CloseWith(websocket.CloseNormalClosure, "")
}
