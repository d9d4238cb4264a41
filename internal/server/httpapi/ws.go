package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/greenpoint-pos/kiosk/internal/workflow"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsQueueSize    = 8
)

// Stream fans workflow snapshots out to connected UI clients. A slow
// client gets latest-wins delivery: the queue drops the oldest pending
// snapshot, never blocks the workflow.
type Stream struct {
	log *zap.Logger

	mu    sync.Mutex
	last  workflow.Snapshot
	seen  bool
	conns map[chan workflow.Snapshot]struct{}
}

// NewStream constructs an empty stream.
func NewStream(log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{log: log, conns: map[chan workflow.Snapshot]struct{}{}}
}

// Publish is the orchestrator subscriber: it records the snapshot and
// forwards it to every connection.
func (s *Stream) Publish(snap workflow.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.seen = snap, true
	for ch := range s.conns {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Stream) attach() (chan workflow.Snapshot, workflow.Snapshot, bool) {
	ch := make(chan workflow.Snapshot, wsQueueSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[ch] = struct{}{}
	return ch, s.last, s.seen
}

func (s *Stream) detach(ch chan workflow.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, ch)
}

// HandleWS upgrades the request and writes one JSON snapshot per
// workflow transition, starting with the current state. The client is
// not expected to send anything; its reads are drained only to detect
// the close.
func (s *Stream) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := conn.CloseRead(r.Context())

	ch, last, seen := s.attach()
	defer s.detach(ch)

	if seen {
		if err := writeSnapshot(ctx, conn, last); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case snap := <-ch:
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				s.log.Debug("state stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeSnapshot(parent context.Context, conn *websocket.Conn, snap workflow.Snapshot) error {
	ctx, cancel := context.WithTimeout(parent, wsWriteTimeout)
	defer cancel()

	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
