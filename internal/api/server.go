// Package api exposes the admin REST surface. Every mutating handler
// persists to the database, writes an audit entry, and triggers a
// regenerate+apply of the affected Asterisk artifacts.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lq216/gonopbx/internal/ami"
	"github.com/lq216/gonopbx/internal/api/middleware"
	"github.com/lq216/gonopbx/internal/asterisk"
	"github.com/lq216/gonopbx/internal/database"
	"github.com/lq216/gonopbx/internal/database/models"
)

// Deps bundles the handler dependencies for NewServer.
type Deps struct {
	Logger *slog.Logger

	Users      database.AdminUserRepository
	Peers      database.SIPPeerRepository
	Trunks     database.SIPTrunkRepository
	Routes     database.InboundRouteRepository
	Forwards   database.CallForwardRepository
	Mailboxes  database.VoicemailMailboxRepository
	RingGroups database.RingGroupRepository
	IVRMenus   database.IVRMenuRepository
	Contacts   database.ContactRepository
	CDRs       database.CDRRepository
	Settings   database.SystemSettingRepository
	Audit      database.AuditLogRepository

	Manager    *asterisk.Manager
	Correlator *ami.Correlator
	AMI        *ami.Client
	Hub        http.Handler // WebSocket observer endpoint
	Metrics    http.Handler // Prometheus scrape endpoint

	JWTSecret []byte
	APIKey    string // optional static key for integrations; empty disables
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	logger *slog.Logger

	users      database.AdminUserRepository
	peers      database.SIPPeerRepository
	trunks     database.SIPTrunkRepository
	routes     database.InboundRouteRepository
	forwards   database.CallForwardRepository
	mailboxes  database.VoicemailMailboxRepository
	ringGroups database.RingGroupRepository
	ivrMenus   database.IVRMenuRepository
	contacts   database.ContactRepository
	cdrs       database.CDRRepository
	settings   database.SystemSettingRepository
	audit      database.AuditLogRepository

	manager    *asterisk.Manager
	correlator *ami.Correlator
	ami        *ami.Client
	hub        http.Handler
	metrics    http.Handler

	jwtSecret []byte
	apiKey    string

	apiLimiter   *middleware.IPRateLimiter
	loginLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		logger:       deps.Logger,
		users:        deps.Users,
		peers:        deps.Peers,
		trunks:       deps.Trunks,
		routes:       deps.Routes,
		forwards:     deps.Forwards,
		mailboxes:    deps.Mailboxes,
		ringGroups:   deps.RingGroups,
		ivrMenus:     deps.IVRMenus,
		contacts:     deps.Contacts,
		cdrs:         deps.CDRs,
		settings:     deps.Settings,
		audit:        deps.Audit,
		manager:      deps.Manager,
		correlator:   deps.Correlator,
		ami:          deps.AMI,
		hub:          deps.Hub,
		metrics:      deps.Metrics,
		jwtSecret:    deps.JWTSecret,
		apiKey:       deps.APIKey,
		apiLimiter:   middleware.NewIPRateLimiter(middleware.APIRateLimitConfig()),
		loginLimiter: middleware.NewIPRateLimiter(middleware.LoginRateLimitConfig()),
	}

	s.mountRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.loginLimiter.Stop()
}

// mountRoutes configures all middleware and mounts all route groups.
func (s *Server) mountRoutes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.hub != nil {
		r.With(middleware.RequireAuth(s.jwtSecret, s.apiKey)).Get("/ws", s.hub.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)
		r.With(middleware.RateLimit(s.loginLimiter)).Post("/auth/login", s.handleLogin)

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwtSecret, s.apiKey))

			r.Get("/auth/me", s.handleMe)
			r.Put("/auth/password", s.handleChangePassword)

			r.Route("/peers", func(r chi.Router) {
				r.Get("/", s.handleListPeers)
				r.Post("/", s.handleCreatePeer)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPeer)
					r.Put("/", s.handleUpdatePeer)
					r.Delete("/", s.handleDeletePeer)
				})
			})

			r.Route("/trunks", func(r chi.Router) {
				r.Get("/", s.handleListTrunks)
				r.Post("/", s.handleCreateTrunk)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTrunk)
					r.Put("/", s.handleUpdateTrunk)
					r.Delete("/", s.handleDeleteTrunk)
				})
			})

			r.Route("/routes", func(r chi.Router) {
				r.Get("/", s.handleListRoutes)
				r.Post("/", s.handleCreateRoute)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRoute)
					r.Put("/", s.handleUpdateRoute)
					r.Delete("/", s.handleDeleteRoute)
				})
			})

			r.Route("/callforward", func(r chi.Router) {
				r.Get("/{extension}", s.handleGetCallForwards)
				r.Put("/{extension}/{type}", s.handleSetCallForward)
				r.Delete("/{extension}/{type}", s.handleDeleteCallForward)
			})

			r.Route("/voicemail", func(r chi.Router) {
				r.Get("/mailbox/{extension}", s.handleGetMailbox)
				r.Put("/mailbox/{extension}", s.handleUpdateMailbox)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListRingGroups)
				r.Post("/", s.handleCreateRingGroup)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRingGroup)
					r.Put("/", s.handleUpdateRingGroup)
					r.Delete("/", s.handleDeleteRingGroup)
				})
			})

			r.Route("/ivr", func(r chi.Router) {
				r.Get("/", s.handleListIVRMenus)
				r.Post("/", s.handleCreateIVRMenu)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetIVRMenu)
					r.Put("/", s.handleUpdateIVRMenu)
					r.Delete("/", s.handleDeleteIVRMenu)
				})
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.handleListContacts)
				r.Post("/", s.handleCreateContact)
				r.Get("/export", s.handleExportContacts)
				r.Post("/import", s.handleImportContacts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetContact)
					r.Put("/", s.handleUpdateContact)
					r.Delete("/", s.handleDeleteContact)
				})
			})

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)

			r.Get("/cdr", s.handleListCDRs)
			r.Get("/cdr/export", s.handleExportCDRs)

			r.Get("/audit", s.handleListAudit)

			r.Get("/dashboard/status", s.handleDashboardStatus)

			r.Route("/calls", func(r chi.Router) {
				r.Get("/active", s.handleActiveCalls)
				r.Post("/originate", s.handleOriginate)
			})

			r.Post("/system/reload", s.handleSystemReload)
		})
	})

	s.logger.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ami_connected": s.ami != nil && s.ami.Connected(),
	})
}

// handleSystemReload regenerates every Asterisk artifact on demand.
func (s *Server) handleSystemReload(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ApplyAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	s.auditLog(r, "reload", "system", "", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// auditLog records a configuration mutation. Failures are logged, never
// surfaced to the caller.
func (s *Server) auditLog(r *http.Request, action, objectType, objectID string, details any) {
	username := ""
	if u := middleware.AdminUserFromContext(r.Context()); u != nil {
		username = u.Username
	}

	detailJSON := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailJSON = string(b)
		}
	}

	entry := &models.AuditLog{
		Username:   username,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Details:    detailJSON,
		IPAddress:  clientIP(r),
	}
	if err := s.audit.Log(r.Context(), entry); err != nil {
		s.logger.Error("writing audit log failed", "action", action, "object_type", objectType, "error", err)
	}
}

// applyAsterisk runs the given apply steps after a successful database
// write. A reload failure leaves the engine on the previous config until
// the next successful apply, so it is logged but not returned.
func (s *Server) applyAsterisk(ctx context.Context, steps ...func(context.Context) error) {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			s.logger.Error("applying asterisk config failed", "error", err)
		}
	}
}

// destinationExists reports whether an extension number resolves to a SIP
// peer, a ring group, or an IVR menu.
func (s *Server) destinationExists(ctx context.Context, extension string) (bool, error) {
	peer, err := s.peers.GetByExtension(ctx, extension)
	if err != nil {
		return false, err
	}
	if peer != nil {
		return true, nil
	}
	group, err := s.ringGroups.GetByExtension(ctx, extension)
	if err != nil {
		return false, err
	}
	if group != nil {
		return true, nil
	}
	menu, err := s.ivrMenus.GetByExtension(ctx, extension)
	if err != nil {
		return false, err
	}
	return menu != nil, nil
}

// clientIP returns the request's client IP without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
