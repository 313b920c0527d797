package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/internal/logging"
	"github.com/DoyleJ11/ban-pick-server/internal/ws"
)

type Options struct {
	AllowedOrigins []string
	Drafts         DraftLister
	Now            func() time.Time
}

func SetupRoutes(h *hub.Hub, s *ws.Server, opts Options, log *zap.Logger) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &API{hub: h, rooms: s, drafts: opts.Drafts, log: log, now: opts.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(opts.AllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.Health)
	r.Get("/ws", s.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Get("/stats", a.Stats)
		r.Get("/drafts", a.RecentDrafts)
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.ListRooms)
			r.Post("/", a.CreateRoomCode)
			r.Get("/{roomID}", a.GetRoom)
		})
	})
	return r
}

// corsOrigins turns websocket origin patterns ("localhost:3000") into
// CORS origins, which need a scheme.
func corsOrigins(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p == "*" {
			return []string{"*"}
		}
		out = append(out, "http://"+p, "https://"+p)
	}
	return out
}
