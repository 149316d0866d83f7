package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/store"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.db.ListTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list templates failed")
		return
	}
	out := make([]templateJSON, len(templates))
	for i := range templates {
		out[i] = toTemplateJSON(&templates[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "name and body are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := s.db.UpsertTemplate(&store.Template{
		ID: req.ID, Name: req.Name, Language: req.Language, Category: req.Category,
		Status: req.Status, Body: req.Body, CreatedAt: req.CreatedAt,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "save template failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteTemplate(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "delete template failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChatbots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.db.ListChatbots(false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list chatbots failed")
		return
	}
	out := make([]chatbotJSON, len(bots))
	for i := range bots {
		out[i] = toChatbotJSON(&bots[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatbots": out})
}

func (s *Server) handleUpsertChatbot(w http.ResponseWriter, r *http.Request) {
	var req chatbotJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || len(req.Keywords) == 0 || req.ReplyBody == "" {
		writeError(w, http.StatusBadRequest, "name, keywords and reply body are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := s.db.UpsertChatbot(&store.Chatbot{
		ID: req.ID, Name: req.Name, Enabled: req.Enabled,
		Keywords: req.Keywords, ReplyBody: req.ReplyBody, CreatedAt: req.CreatedAt,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "save chatbot failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleDeleteChatbot(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteChatbot(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "delete chatbot failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	broadcasts, err := s.db.ListBroadcasts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list broadcasts failed")
		return
	}
	out := make([]broadcastJSON, len(broadcasts))
	for i := range broadcasts {
		out[i] = toBroadcastJSON(&broadcasts[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"broadcasts": out})
}

func (s *Server) handleUpsertBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || req.TemplateID == "" {
		writeError(w, http.StatusBadRequest, "name and template_id are required")
		return
	}

	// Counters and lifecycle fields are owned by the runner; a client edit
	// can only touch a draft's definition.
	if req.ID != "" {
		existing, err := s.db.GetBroadcast(req.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save broadcast failed")
			return
		}
		if existing != nil && existing.Status != store.BroadcastDraft {
			writeError(w, http.StatusConflict, "only draft broadcasts can be edited")
			return
		}
	} else {
		req.ID = uuid.NewString()
	}

	if err := s.db.UpsertBroadcast(&store.Broadcast{
		ID: req.ID, Name: req.Name, TemplateID: req.TemplateID,
		Audience: req.Audience, AudienceTag: req.AudienceTag,
		Status: store.BroadcastDraft, CreatedAt: req.CreatedAt,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "save broadcast failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	bc, err := s.db.GetBroadcast(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get broadcast failed")
		return
	}
	if bc == nil {
		writeError(w, http.StatusNotFound, "broadcast not found")
		return
	}

	recipients, err := s.db.ListBroadcastRecipients(bc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get broadcast failed")
		return
	}
	type recipientJSON struct {
		Phone  string `json:"phone"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	rs := make([]recipientJSON, len(recipients))
	for i, rec := range recipients {
		rs[i] = recipientJSON{Phone: rec.Phone, Name: rec.Name, Status: rec.Status}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"broadcast":  toBroadcastJSON(bc),
		"recipients": rs,
	})
}

func (s *Server) handleLaunchBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := s.broadcasts.Launch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 || days > 365 {
		days = 30
	}
	rep, err := s.reports.Overview(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"conversations":     rep.Counts.Conversations,
		"active_chats":      rep.Counts.ActiveChats,
		"clients":           rep.Counts.Clients,
		"leads":             rep.Counts.Leads,
		"team_members":      rep.Counts.TeamMembers,
		"messages_sent":     rep.Counts.MessagesSent,
		"messages_received": rep.Counts.MessagesReceived,
		"broadcasts":        rep.Counts.Broadcasts,
		"broadcast_queued":  int64(rep.BroadcastQueued),
		"broadcast_sent":    int64(rep.BroadcastSent),
		"broadcast_failed":  int64(rep.BroadcastFailed),
	})
}

func (s *Server) handleReportVolume(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 || days > 365 {
		days = 30
	}
	volumes, err := s.reports.Volume(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	type dayJSON struct {
		Day      string `json:"day"`
		Sent     int64  `json:"sent"`
		Received int64  `json:"received"`
	}
	out := make([]dayJSON, len(volumes))
	for i, v := range volumes {
		out[i] = dayJSON{Day: v.Day, Sent: v.Sent, Received: v.Received}
	}
	writeJSON(w, http.StatusOK, map[string]any{"volume": out})
}

func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	org, err := s.db.GetOrganization(session.OrgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get organization failed")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         org.ID,
		"name":       org.Name,
		"slug":       org.Slug,
		"created_at": org.CreatedAt,
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	sub, err := s.db.GetSubscription(session.OrgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get subscription failed")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "no subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":       sub.Plan,
		"status":     sub.Status,
		"expires_at": sub.ExpiresAt,
	})
}

func (s *Server) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan      string `json:"plan"`
		Status    string `json:"status"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Plan == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "plan and status are required")
		return
	}
	session := sessionFrom(r)
	if err := s.db.SetSubscription(&store.Subscription{
		OrgID: session.OrgID, Plan: req.Plan, Status: req.Status, ExpiresAt: req.ExpiresAt,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "set subscription failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddOrgMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "email and a password of 8+ characters are required")
		return
	}
	if req.Role == "" {
		req.Role = "agent"
	}

	session := sessionFrom(r)
	id, err := s.createOrgUser(session.OrgID, req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
