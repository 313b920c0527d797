package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/archive"
	"github.com/DoyleJ11/ban-pick-server/internal/feed"
	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

const outboxSize = 16

type Options struct {
	RoomIDLength   int
	NameMaxLength  int
	OriginPatterns []string
	Archive        archive.Recorder
	Feed           feed.Publisher
	Now            func() time.Time
}

// Server routes client events to the hub and delivers outcomes back to
// the connections they concern.
type Server struct {
	hub  *hub.Hub
	log  *zap.Logger
	opts Options

	mu      sync.RWMutex
	clients map[lobby.ConnID]*client

	bg sync.WaitGroup
}

type client struct {
	id     lobby.ConnID
	out    chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

// drop stops the client's pumps. Safe to call more than once.
func (c *client) drop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func NewServer(h *hub.Hub, opts Options, log *zap.Logger) *Server {
	if opts.RoomIDLength <= 0 {
		opts.RoomIDLength = 6
	}
	if opts.NameMaxLength <= 0 {
		opts.NameMaxLength = 20
	}
	if opts.Archive == nil {
		opts.Archive = archive.Nop{}
	}
	if opts.Feed == nil {
		opts.Feed = feed.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:     h,
		log:     log,
		opts:    opts,
		clients: make(map[lobby.ConnID]*client),
	}
}

func (s *Server) register(id lobby.ConnID, cancel context.CancelFunc) *client {
	c := &client{id: id, out: make(chan []byte, outboxSize), cancel: cancel}
	s.mu.Lock()
	s.clients[id] = c
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Info("client connected", zap.String("conn", string(id)), zap.Int("clients", n))
	return c
}

func (s *Server) unregister(id lobby.ConnID) {
	s.mu.Lock()
	delete(s.clients, id)
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Info("client disconnected", zap.String("conn", string(id)), zap.Int("clients", n))
}

// Clients is the number of open connections.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// send never blocks. A client whose outbox is full is dropped; its reader
// then exits and the hub treats it as a disconnect.
func (s *Server) send(id lobby.ConnID, event string, data any) {
	payload, err := json.Marshal(types.ServerMessage{Event: event, Data: data})
	if err != nil {
		s.log.Error("marshal outbound message", zap.String("event", event), zap.Error(err))
		return
	}

	s.mu.RLock()
	c := s.clients[id]
	s.mu.RUnlock()
	if c == nil {
		return
	}

	select {
	case c.out <- payload:
	default:
		s.log.Warn("slow client dropped", zap.String("conn", string(id)), zap.String("event", event))
		c.drop()
	}
}

func (s *Server) broadcast(members []lobby.Member, event string, data any) {
	for _, m := range members {
		s.send(m.Conn, event, data)
	}
}

// broadcastState sends every member the snapshot tagged with their own side.
func (s *Server) broadcastState(members []lobby.Member, snap lobby.Snapshot) {
	for _, m := range members {
		s.send(m.Conn, types.EvtGameStateUpdate, types.GameStateUpdate{
			GameState: snap,
			YourSide:  string(m.Side),
		})
	}
}

// RoomClosing tells every member of a reaped room that it is going away.
func (s *Server) RoomClosing(code string, members []lobby.Member, reason string) {
	s.broadcast(members, types.EvtRoomClosed, types.RoomClosed{RoomID: code, Reason: reason})
}

// Wait blocks until background archive and feed writes have finished.
func (s *Server) Wait() {
	s.bg.Wait()
}

// record hands an accepted action to the feed and, when it finished the
// draft, to the archive. Neither can affect the room.
func (s *Server) record(kind, item string, out lobby.Outcome) {
	action := feed.FromOutcome(kind, item, out, s.opts.Now())
	completed := out.Completed()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.opts.Feed.Publish(ctx, action); err != nil {
			s.log.Warn("feed publish failed", zap.String("room", action.RoomID), zap.Error(err))
		}
		if !completed {
			return
		}
		if err := s.opts.Archive.Record(ctx, out.Snapshot); err != nil {
			s.log.Warn("archive draft failed", zap.String("room", out.Snapshot.RoomID), zap.Error(err))
			return
		}
		s.log.Info("draft archived", zap.String("room", out.Snapshot.RoomID))
	}()
}
