package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrCodeExhausted = errors.New("unable to generate unique room id")

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const maxCodeAttempts = 100

type Options struct {
	CodeLength   int
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	Now          func() time.Time
}

// Notifier is told about rooms the reaper is about to drop, while their
// members can still be reached.
type Notifier interface {
	RoomClosing(code string, members []lobby.Member, reason string)
}

type Stats struct {
	TotalRooms            int     `json:"totalRooms"`
	ActiveRooms           int     `json:"activeRooms"`
	WaitingRooms          int     `json:"waitingRooms"`
	PlayingRooms          int     `json:"playingRooms"`
	CompletedRooms        int     `json:"completedRooms"`
	TotalPlayers          int     `json:"totalPlayers"`
	AveragePlayersPerRoom float64 `json:"averagePlayersPerRoom"`
}

// Hub owns every live room. The map and the connection index are guarded
// by mu; game state lives inside each lobby's own loop.
type Hub struct {
	mu      sync.Mutex
	lobbies map[string]*lobby.Lobby
	members map[lobby.ConnID]string

	sched engine.Schedule
	opts  Options
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, sched engine.Schedule, opts Options, log *zap.Logger) *Hub {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Hub{
		lobbies: make(map[string]*lobby.Lobby),
		members: make(map[lobby.ConnID]string),
		sched:   sched,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (h *Hub) Schedule() engine.Schedule { return h.sched }

// GetOrCreate never hands out two lobbies for the same code.
func (h *Hub) GetOrCreate(code string) *lobby.Lobby {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lb := h.lobbies[code]; lb != nil {
		return lb
	}
	lb := lobby.NewLobby(h.ctx, code, h.sched, lobby.Options{
		IdleTimeout: h.opts.IdleTimeout,
		Now:         h.opts.Now,
		Logger:      h.log.Named("lobby"),
	})
	h.lobbies[code] = lb
	h.log.Info("room registered", zap.String("room", code), zap.Int("rooms", len(h.lobbies)))
	return lb
}

func (h *Hub) Get(code string) (*lobby.Lobby, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lb, ok := h.lobbies[code]
	return lb, ok
}

// Delete drops the room and stops its loop. Deleting twice is fine.
func (h *Hub) Delete(code string) bool {
	h.mu.Lock()
	lb, ok := h.lobbies[code]
	if ok {
		h.removeLocked(code, lb)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = lb.Close(ctx)
	return true
}

// forget removes code only while it still maps to lb, so a stale lobby
// never evicts its replacement.
func (h *Hub) forget(code string, lb *lobby.Lobby) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lobbies[code] == lb {
		h.removeLocked(code, lb)
	}
}

func (h *Hub) removeLocked(code string, lb *lobby.Lobby) {
	delete(h.lobbies, code)
	for conn, c := range h.members {
		if c == code {
			delete(h.members, conn)
		}
	}
	h.log.Info("room deleted", zap.String("room", code), zap.Int("rooms", len(h.lobbies)))
}

// RoomOf returns the room conn is seated in.
func (h *Hub) RoomOf(conn lobby.ConnID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code, ok := h.members[conn]
	return code, ok
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lobbies)
}

func (h *Hub) all() map[string]*lobby.Lobby {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]*lobby.Lobby, len(h.lobbies))
	for k, v := range h.lobbies {
		out[k] = v
	}
	return out
}

// GenerateCode returns a fresh code that no live room uses.
func (h *Hub) GenerateCode() (string, error) {
	for range maxCodeAttempts {
		code, err := randomCode(h.opts.CodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := h.Get(code); !taken {
			return code, nil
		}
		h.log.Debug("collision on code, regenerating", zap.String("code", code))
	}
	return "", ErrCodeExhausted
}

func randomCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

// Statistics counts rooms by phase. Rooms that close mid-scan are skipped.
func (h *Hub) Statistics(ctx context.Context) Stats {
	var st Stats
	for _, s := range h.RoomsInfo(ctx) {
		st.TotalRooms++
		st.TotalPlayers += s.PlayersCount
		switch {
		case s.Phase.InProgress():
			st.PlayingRooms++
			st.ActiveRooms++
		case s.Phase == engine.PhaseWaiting:
			st.WaitingRooms++
		case s.Phase == engine.PhaseComplete:
			st.CompletedRooms++
		}
	}
	if st.TotalRooms > 0 {
		avg := float64(st.TotalPlayers) / float64(st.TotalRooms)
		st.AveragePlayersPerRoom = math.Round(avg*100) / 100
	}
	return st
}

func (h *Hub) RoomsInfo(ctx context.Context) []lobby.Status {
	out := make([]lobby.Status, 0)
	for _, lb := range h.all() {
		s, err := lb.Status(ctx)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Shutdown stops every lobby and empties the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	n := len(h.lobbies)
	clear(h.lobbies)
	clear(h.members)
	h.mu.Unlock()
	h.cancel()
	h.log.Info("hub shut down", zap.Int("rooms", n))
}
