package api

import "github.com/wacrm/wacrm/internal/store"

// Wire representations of the store types. Field names follow the JSON the
// browser client expects.

type conversationJSON struct {
	ID                 string   `json:"id"`
	ChatJID            string   `json:"chat_jid"`
	ContactID          string   `json:"contact_id"`
	ContactName        string   `json:"contact_name"`
	ContactPhone       string   `json:"contact_phone"`
	ContactAvatar      string   `json:"contact_avatar,omitempty"`
	ContactType        string   `json:"contact_type"`
	Status             string   `json:"status"`
	Tags               []string `json:"tags"`
	AssignedTo         string   `json:"assigned_to,omitempty"`
	UnreadCount        int      `json:"unread_count"`
	LastMessageAt      int64    `json:"last_message_at"`
	LastMessagePreview string   `json:"last_message_preview"`
	LastMessageFromMe  bool     `json:"last_message_from_me"`
	LastMessageRead    bool     `json:"last_message_read"`
}

func toConversationJSON(c *store.Conversation) conversationJSON {
	return conversationJSON{
		ID:                 c.ID,
		ChatJID:            c.ChatJID,
		ContactID:          c.ContactID,
		ContactName:        c.ContactName,
		ContactPhone:       c.ContactPhone,
		ContactAvatar:      c.ContactAvatar,
		ContactType:        c.ContactType,
		Status:             c.Status,
		Tags:               c.Tags,
		AssignedTo:         c.AssignedTo,
		UnreadCount:        c.UnreadCount,
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageFromMe:  c.LastMessageFromMe,
		LastMessageRead:    c.LastMessageRead,
	}
}

func toConversationList(list []store.Conversation) []conversationJSON {
	out := make([]conversationJSON, len(list))
	for i := range list {
		out[i] = toConversationJSON(&list[i])
	}
	return out
}

type messageJSON struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	MsgID          string  `json:"msg_id"`
	SenderName     string  `json:"sender_name,omitempty"`
	Body           string  `json:"body"`
	MessageType    string  `json:"message_type"`
	FromMe         bool    `json:"from_me"`
	Status         string  `json:"status"`
	Timestamp      int64   `json:"timestamp"`
	MediaURL       string  `json:"media_url,omitempty"`
	MediaType      string  `json:"media_type,omitempty"`
	MediaFilename  string  `json:"media_filename,omitempty"`
	MediaDuration  int     `json:"media_duration,omitempty"`
	MediaSize      int64   `json:"media_size,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		MsgID:          m.MsgID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		MessageType:    m.MessageType,
		FromMe:         m.FromMe,
		Status:         m.Status,
		Timestamp:      m.Timestamp,
		MediaURL:       m.MediaURL,
		MediaType:      m.MediaType,
		MediaFilename:  m.MediaFilename,
		MediaDuration:  m.MediaDuration,
		MediaSize:      m.MediaSize,
		Latitude:       m.Latitude,
		Longitude:      m.Longitude,
	}
}

func toMessageList(list []store.Message) []messageJSON {
	out := make([]messageJSON, len(list))
	for i := range list {
		out[i] = toMessageJSON(&list[i])
	}
	return out
}

type clientJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Email     string   `json:"email,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Tags      []string `json:"tags"`
	Notes     string   `json:"notes,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

func toClientJSON(c *store.Client) clientJSON {
	return clientJSON{
		ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email,
		AvatarURL: c.AvatarURL, Tags: c.Tags, Notes: c.Notes, CreatedAt: c.CreatedAt,
	}
}

func (c clientJSON) toStore() *store.Client {
	return &store.Client{
		ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email,
		AvatarURL: c.AvatarURL, Tags: c.Tags, Notes: c.Notes, CreatedAt: c.CreatedAt,
	}
}

type leadJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Source    string `json:"source,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

func toLeadJSON(l *store.Lead) leadJSON {
	return leadJSON{
		ID: l.ID, Name: l.Name, Phone: l.Phone, Email: l.Email,
		Source: l.Source, Status: l.Status, CreatedAt: l.CreatedAt,
	}
}

func (l leadJSON) toStore() *store.Lead {
	return &store.Lead{
		ID: l.ID, Name: l.Name, Phone: l.Phone, Email: l.Email,
		Source: l.Source, Status: l.Status, CreatedAt: l.CreatedAt,
	}
}

type teamMemberJSON struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"last_seen_at,omitempty"`
}

type contactJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Type      string `json:"type"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type templateJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Language  string `json:"language,omitempty"`
	Category  string `json:"category,omitempty"`
	Status    string `json:"status,omitempty"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

func toTemplateJSON(t *store.Template) templateJSON {
	return templateJSON{
		ID: t.ID, Name: t.Name, Language: t.Language, Category: t.Category,
		Status: t.Status, Body: t.Body, CreatedAt: t.CreatedAt,
	}
}

type chatbotJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Enabled   bool     `json:"enabled"`
	Keywords  []string `json:"keywords"`
	ReplyBody string   `json:"reply_body"`
	CreatedAt int64    `json:"created_at"`
}

func toChatbotJSON(b *store.Chatbot) chatbotJSON {
	return chatbotJSON{
		ID: b.ID, Name: b.Name, Enabled: b.Enabled, Keywords: b.Keywords,
		ReplyBody: b.ReplyBody, CreatedAt: b.CreatedAt,
	}
}

type broadcastJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TemplateID  string `json:"template_id"`
	Audience    string `json:"audience"`
	AudienceTag string `json:"audience_tag,omitempty"`
	Status      string `json:"status"`
	QueuedCount int    `json:"queued_count"`
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
	CreatedAt   int64  `json:"created_at"`
	StartedAt   int64  `json:"started_at,omitempty"`
	FinishedAt  int64  `json:"finished_at,omitempty"`
}

func toBroadcastJSON(b *store.Broadcast) broadcastJSON {
	return broadcastJSON{
		ID: b.ID, Name: b.Name, TemplateID: b.TemplateID,
		Audience: b.Audience, AudienceTag: b.AudienceTag, Status: b.Status,
		QueuedCount: b.QueuedCount, SentCount: b.SentCount, FailedCount: b.FailedCount,
		CreatedAt: b.CreatedAt, StartedAt: b.StartedAt, FinishedAt: b.FinishedAt,
	}
}
