package ws

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// fakeTransport records written frames. A blocked transport holds each write
// until its write deadline passes, like a client that stopped reading.
type fakeTransport struct {
	mu        sync.Mutex
	deadline  time.Time
	frames    [][]byte
	closeCode []byte
	closed    bool
	blocked   bool
	failWith  error
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	return 0, nil, io.EOF
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	deadline, blocked, failWith, closed := f.deadline, f.blocked, f.failWith, f.closed
	f.mu.Unlock()

	if closed {
		return io.ErrClosedPipe
	}
	if failWith != nil {
		return failWith
	}
	if blocked {
		time.Sleep(time.Until(deadline))
		return os.ErrDeadlineExceeded
	}

	f.mu.Lock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeCode == nil {
		f.closeCode = append([]byte(nil), data...)
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	f.deadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) messages(t *testing.T) []models.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Message, 0, len(f.frames))
	for _, frame := range f.frames {
		var msg models.Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		out = append(out, msg)
	}
	return out
}

func newFakePeer(userID int) (*Peer, *fakeTransport) {
	transport := &fakeTransport{}
	return NewPeer(transport, ConnInfo{ConnID: "conn", Kind: KindGroup, UserID: userID, ConnectedAt: time.Now()}), transport
}
