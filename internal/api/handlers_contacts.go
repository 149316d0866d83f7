package api

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.db.ListContacts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list contacts failed")
		return
	}
	out := make([]contactJSON, len(contacts))
	for i, c := range contacts {
		out[i] = contactJSON{ID: c.ID, Name: c.Name, Phone: c.Phone, Type: c.Type, AvatarURL: c.AvatarURL}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": out})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.db.ListClients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list clients failed")
		return
	}
	out := make([]clientJSON, len(clients))
	for i := range clients {
		out[i] = toClientJSON(&clients[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (s *Server) handleUpsertClient(w http.ResponseWriter, r *http.Request) {
	var req clientJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "name and phone are required")
		return
	}
	created := req.ID == ""
	if created {
		req.ID = uuid.NewString()
	}
	if err := s.db.UpsertClient(req.toStore()); err != nil {
		writeError(w, http.StatusInternalServerError, "save client failed")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"id": req.ID})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.db.GetClient(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get client failed")
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, toClientJSON(client))
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteClient(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "delete client failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportClients streams the client book as CSV.
func (s *Server) handleExportClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.db.ListClients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="clients.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "name", "phone", "email", "tags", "notes"})
	for i := range clients {
		c := &clients[i]
		_ = cw.Write([]string{c.ID, c.Name, c.Phone, c.Email, strings.Join(c.Tags, ";"), c.Notes})
	}
	cw.Flush()
}

// handleImportClients ingests a CSV body with a name,phone[,email,tags,notes]
// header row. Rows missing name or phone are skipped and counted.
func (s *Server) handleImportClients(w http.ResponseWriter, r *http.Request) {
	cr := csv.NewReader(r.Body)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid csv: %v", err)
		return
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["name"]; !ok {
		writeError(w, http.StatusBadRequest, "csv must have a name column")
		return
	}
	if _, ok := col["phone"]; !ok {
		writeError(w, http.StatusBadRequest, "csv must have a phone column")
		return
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	imported, skipped := 0, 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid csv: %v", err)
			return
		}

		name, phone := field(row, "name"), field(row, "phone")
		if name == "" || phone == "" {
			skipped++
			continue
		}
		var tags []string
		if raw := field(row, "tags"); raw != "" {
			tags = strings.Split(raw, ";")
		}
		client := &store.Client{
			ID:    field(row, "id"),
			Name:  name,
			Phone: phone,
			Email: field(row, "email"),
			Tags:  tags,
			Notes: field(row, "notes"),
		}
		if client.ID == "" {
			client.ID = uuid.NewString()
		}
		if err := s.db.UpsertClient(client); err != nil {
			writeError(w, http.StatusInternalServerError, "import failed")
			return
		}
		imported++
	}

	s.logger.Info("clients imported", zap.Int("imported", imported), zap.Int("skipped", skipped))
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "skipped": skipped})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.db.ListLeads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	out := make([]leadJSON, len(leads))
	for i := range leads {
		out[i] = toLeadJSON(&leads[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": out})
}

func (s *Server) handleUpsertLead(w http.ResponseWriter, r *http.Request) {
	var req leadJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "name and phone are required")
		return
	}
	created := req.ID == ""
	if created {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = "new"
	}
	if err := s.db.UpsertLead(req.toStore()); err != nil {
		writeError(w, http.StatusInternalServerError, "save lead failed")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"id": req.ID})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.db.GetLead(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get lead failed")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, toLeadJSON(lead))
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteLead(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "delete lead failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConvertLead promotes a lead to a client. The record keeps its id so
// conversations linked to the contact follow it across.
func (s *Server) handleConvertLead(w http.ResponseWriter, r *http.Request) {
	client, err := s.db.ConvertLeadToClient(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "convert lead failed")
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, toClientJSON(client))
}

func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.db.ListTeamMembers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list team failed")
		return
	}
	out := make([]teamMemberJSON, len(members))
	for i, m := range members {
		out[i] = teamMemberJSON{
			ID: m.ID, UserID: m.UserID, Name: m.Name, Phone: m.Phone,
			Role: m.Role, Online: m.Online, LastSeenAt: m.LastSeenAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": out})
}

func (s *Server) handleUpsertTeamMember(w http.ResponseWriter, r *http.Request) {
	var req teamMemberJSON
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Name == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "name and phone are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := s.db.UpsertTeamMember(&store.TeamMember{
		ID: req.ID, UserID: req.UserID, Name: req.Name, Phone: req.Phone,
		Role: req.Role, Online: req.Online, LastSeenAt: req.LastSeenAt,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "save team member failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}
