package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wacrm/wacrm/internal/auth"
	"github.com/wacrm/wacrm/internal/broadcast"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/inbox"
	"github.com/wacrm/wacrm/internal/report"
	"github.com/wacrm/wacrm/internal/status"
	"github.com/wacrm/wacrm/internal/storage"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

// Device is the slice of the WhatsApp adapter the HTTP layer needs.
type Device interface {
	PhoneNumber() string
	IsLoggedIn() bool
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
}

// Deps wires the server to the rest of the daemon.
type Deps struct {
	DB         *store.DB
	Bus        *bus.Bus
	Logger     *zap.Logger
	Auth       *auth.Service
	State      *inbox.State
	Dispatcher *inbox.Dispatcher
	Channel    *inbox.Channel
	Broadcasts *broadcast.Runner
	Machine    *status.Machine
	Device     Device
	Media      *storage.MediaStore
	Reports    *report.Service
}

// Server is the HTTP surface the browser client talks to.
type Server struct {
	db         *store.DB
	bus        *bus.Bus
	logger     *zap.Logger
	auth       *auth.Service
	state      *inbox.State
	dispatcher *inbox.Dispatcher
	channel    *inbox.Channel
	broadcasts *broadcast.Runner
	machine    *status.Machine
	device     Device
	media      *storage.MediaStore
	reports    *report.Service
}

// NewServer creates the API server.
func NewServer(d Deps) *Server {
	if d.Reports == nil {
		d.Reports = report.NewService(d.DB)
	}
	return &Server{
		db:         d.DB,
		bus:        d.Bus,
		logger:     d.Logger,
		auth:       d.Auth,
		state:      d.State,
		dispatcher: d.Dispatcher,
		channel:    d.Channel,
		broadcasts: d.Broadcasts,
		machine:    d.Machine,
		device:     d.Device,
		media:      d.Media,
		reports:    d.Reports,
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/api/me", s.handleMe)

		r.Get("/api/conversations", s.handleListConversations)
		r.Get("/api/conversations/{id}", s.handleGetConversation)
		r.Delete("/api/conversations/{id}", s.handleDeleteConversation)
		r.Post("/api/conversations/{id}/archive", s.handleArchiveConversation)
		r.Post("/api/conversations/{id}/tags", s.handleAddTag)
		r.Post("/api/conversations/{id}/assign", s.handleAssign)
		r.Post("/api/conversations/{id}/read", s.handleMarkRead)
		r.Post("/api/conversations/{id}/open", s.handleOpenConversation)
		r.Get("/api/conversations/{id}/messages", s.handleListMessages)
		r.Post("/api/conversations/{id}/messages", s.handleSendText)
		r.Post("/api/conversations/{id}/attachments", s.handleSendAttachment)
		r.Post("/api/conversations/{id}/voice", s.handleSendVoice)
		r.Get("/api/search", s.handleSearch)

		r.Get("/api/contacts", s.handleListContacts)
		r.Get("/api/clients", s.handleListClients)
		r.Post("/api/clients", s.handleUpsertClient)
		r.Get("/api/clients/export.csv", s.handleExportClients)
		r.Post("/api/clients/import", s.handleImportClients)
		r.Get("/api/clients/{id}", s.handleGetClient)
		r.Delete("/api/clients/{id}", s.handleDeleteClient)
		r.Get("/api/leads", s.handleListLeads)
		r.Post("/api/leads", s.handleUpsertLead)
		r.Get("/api/leads/{id}", s.handleGetLead)
		r.Delete("/api/leads/{id}", s.handleDeleteLead)
		r.Post("/api/leads/{id}/convert", s.handleConvertLead)
		r.Get("/api/team", s.handleListTeam)
		r.Post("/api/team", auth.RequireRole(auth.RoleAdmin, s.handleUpsertTeamMember))

		r.Get("/api/templates", s.handleListTemplates)
		r.Post("/api/templates", s.handleUpsertTemplate)
		r.Delete("/api/templates/{id}", s.handleDeleteTemplate)
		r.Get("/api/chatbots", s.handleListChatbots)
		r.Post("/api/chatbots", s.handleUpsertChatbot)
		r.Delete("/api/chatbots/{id}", s.handleDeleteChatbot)
		r.Get("/api/broadcasts", s.handleListBroadcasts)
		r.Post("/api/broadcasts", s.handleUpsertBroadcast)
		r.Get("/api/broadcasts/{id}", s.handleGetBroadcast)
		r.Post("/api/broadcasts/{id}/launch", s.handleLaunchBroadcast)

		r.Get("/api/report", s.handleReport)
		r.Get("/api/report/volume", s.handleReportVolume)

		r.Get("/api/device", s.handleDeviceStatus)
		r.Get("/api/device/qr.png", s.handleDeviceQR)
		r.Post("/api/device/sync/start", auth.RequireRole(auth.RoleAdmin, s.handleDeviceSyncStart))
		r.Post("/api/device/sync/stop", auth.RequireRole(auth.RoleAdmin, s.handleDeviceSyncStop))
		r.Post("/api/device/logout", auth.RequireRole(auth.RoleAdmin, s.handleDeviceLogout))

		r.Post("/api/media", s.handleUploadMedia)

		r.Get("/api/org", s.handleGetOrg)
		r.Get("/api/org/subscription", s.handleGetSubscription)
		r.Put("/api/org/subscription", auth.RequireRole(auth.RoleSuperAdmin, s.handleSetSubscription))
		r.Post("/api/org/members", auth.RequireRole(auth.RoleAdmin, s.handleAddOrgMember))
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
