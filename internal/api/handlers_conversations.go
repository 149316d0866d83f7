package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wacrm/wacrm/internal/inbox"
	"github.com/wacrm/wacrm/internal/store"
)

const maxPageSize = 200

func parseFilters(r *http.Request) inbox.Filters {
	q := r.URL.Query()
	f := inbox.Filters{
		ContactType: q.Get("type"),
		Search:      q.Get("search"),
		Assignee:    q.Get("assignee"),
		Tag:         q.Get("tag"),
	}
	f.DateFrom, _ = strconv.ParseInt(q.Get("from"), 10, 64)
	f.DateTo, _ = strconv.ParseInt(q.Get("to"), 10, 64)
	return f
}

func parsePage(r *http.Request, defaultLimit int) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultLimit
	}
	offset, _ = strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleListConversations returns the filtered inbox, optionally grouped by
// contact type. The shared inbox state is refreshed so selection repair after
// a delete operates on what the client last saw.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r, maxPageSize)
	list, err := s.db.ListConversations(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list conversations failed")
		return
	}

	filters := parseFilters(r)
	s.state.SetConversations(list)
	s.state.SetFilters(filters)
	filtered := inbox.Apply(list, filters)

	if r.URL.Query().Get("group") != "" {
		groups := inbox.Group(filtered)
		out := make(map[string][]conversationJSON, len(groups))
		for name, convs := range groups {
			out[name] = toConversationList(convs)
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": out})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": toConversationList(filtered)})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.db.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get conversation failed")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, toConversationJSON(conv))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_id": s.state.ActiveID()})
}

func (s *Server) handleArchiveConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if err := s.dispatcher.AddTag(r.Context(), chi.URLParam(r, "id"), req.Tag); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignee string `json:"assignee"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if err := s.dispatcher.Assign(r.Context(), chi.URLParam(r, "id"), req.Assignee); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.db.MarkConversationRead(id); err != nil {
		writeError(w, http.StatusInternalServerError, "mark read failed")
		return
	}
	s.state.Update(id, func(c *store.Conversation) {
		c.UnreadCount = 0
		c.LastMessageRead = true
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenConversation activates a conversation and loads its history into
// the shared state. Responses from superseded opens are dropped, so the
// returned messages always belong to the latest open.
func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.db.GetConversation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "open conversation failed")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	s.state.SetActive(id)
	if err := s.channel.Load(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "load messages failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": toConversationJSON(conv),
		"messages":     toMessageList(s.state.Messages(id)),
	})
}

// handleListMessages pages backwards through history. "before" is a unix
// millisecond timestamp; messages are returned oldest first.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePage(r, 50)
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	msgs, err := s.db.ListMessages(chi.URLParam(r, "id"), before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list messages failed")
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessageList(msgs)})
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	clientID, err := s.channel.SendText(chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_msg_id": clientID})
}

func (s *Server) handleSendAttachment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string `json:"type"`
		MediaURL string `json:"media_url"`
		Filename string `json:"filename"`
		Caption  string `json:"caption"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Type == "" {
		req.Type = "document"
	}
	clientID, err := s.channel.SendAttachment(chi.URLParam(r, "id"), req.Type, req.MediaURL, req.Filename, req.Caption)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_msg_id": clientID})
}

func (s *Server) handleSendVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MediaURL string `json:"media_url"`
		Duration int    `json:"duration"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	clientID, err := s.channel.SendVoice(chi.URLParam(r, "id"), req.MediaURL, req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_msg_id": clientID})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit, _ := parsePage(r, 50)

	results, err := s.db.SearchMessages(query, r.URL.Query().Get("conversation_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	type resultJSON struct {
		Message messageJSON `json:"message"`
		Snippet string      `json:"snippet"`
	}
	out := make([]resultJSON, len(results))
	for i := range results {
		out[i] = resultJSON{Message: toMessageJSON(&results[i].Message), Snippet: results[i].Snippet}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
