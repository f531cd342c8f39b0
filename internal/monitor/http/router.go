package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/hub"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/service"
	"github.com/aussiebroadwan/vrcwatch/pkg/httpx"
	"github.com/aussiebroadwan/vrcwatch/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	buildTime    string
	startTime    time.Time
	logger       *slog.Logger

	AuthManager *service.AuthManager
	Hub         *hub.Hub
}

func NewRouter(buildVersion, buildTime string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		buildTime:    buildTime,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()
	r.registerStream()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthManager: r.AuthManager}

	// GET /api/auth/status - lenient rate limit (dashboard polls this)
	r.Mux.Handle("GET /api/auth/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /api/auth/login - strict rate limit (credential and code attempts)
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /api/auth/logout - lenient rate limit
	r.Mux.Handle("POST /api/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health and build endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /api/system/build-info",
		httpx.Chain(BuildInfoHandler(r.buildVersion, r.buildTime),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerStream() {
	h := &StreamHandler{Hub: r.Hub}
	r.Mux.Handle("GET /ws", http.HandlerFunc(h.HandleUpgrade))
}
