package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 64 << 10
)

// Handler upgrades the request and serves one connection until it closes.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.opts.OriginPatterns,
		})
		if err != nil {
			s.log.Warn("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		id := lobby.ConnID(uuid.NewString())
		c := s.register(id, cancel)
		defer s.disconnect(id)

		s.send(id, types.EvtConnected, types.Connected{ID: string(id), Timestamp: s.opts.Now()})

		go s.writePump(ctx, conn, c)
		s.readPump(ctx, conn, id)

		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// disconnect is the implicit leave for a connection that went away.
func (s *Server) disconnect(id lobby.ConnID) {
	s.unregister(id)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if dep, left := s.hub.Disconnect(ctx, id); left {
		s.log.Info("player disconnected from room",
			zap.String("conn", string(id)),
			zap.String("room", dep.Code))
		s.announceDeparture(dep)
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, id lobby.ConnID) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("read failed", zap.String("conn", string(id)), zap.Error(err))
				}
			}
			return
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(id, invalid("bad json"))
			continue
		}
		s.Dispatch(ctx, id, msg)
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	// Stopping the writer must also stop the reader.
	defer c.drop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.log.Warn("write failed", zap.String("conn", string(c.id)), zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Warn("ping failed", zap.String("conn", string(c.id)), zap.Error(err))
				return
			}
		}
	}
}
