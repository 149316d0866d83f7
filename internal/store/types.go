package store

import "encoding/json"

// Contact types. A conversation's contact type is derived from which CRM
// table the phone number matched at creation time and is stored once.
const (
	ContactTeam   = "team"
	ContactClient = "client"
	ContactLead   = "lead"
)

// Message statuses.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusReceived  = "received"
)

// Conversation represents an inbox conversation with a CRM contact.
type Conversation struct {
	ID                 string
	ChatJID            string
	ContactID          string
	ContactName        string
	ContactPhone       string
	ContactAvatar      string
	ContactType        string // team, client, lead
	Status             string // new, active, archived
	Tags               []string
	AssignedTo         string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	LastMessageFromMe  bool
	LastMessageRead    bool
}

// Message represents a message inside a conversation.
type Message struct {
	ID             int64
	ConversationID string
	MsgID          string
	SenderName     string
	Body           string
	MessageType    string // text, image, video, document, voice, location
	FromMe         bool
	Status         string
	Timestamp      int64

	MediaURL      string
	MediaType     string
	MediaFilename string
	MediaDuration int // seconds, voice messages
	MediaSize     int64

	Latitude  float64
	Longitude float64
}

// Contact is the merged contact view over clients, leads and team members.
// There is no canonical contact table; this is derived per query.
type Contact struct {
	ID        string
	Name      string
	Phone     string
	Type      string
	AvatarURL string
}

// Client is a CRM client record.
type Client struct {
	ID        string
	OrgID     string
	Name      string
	Phone     string
	Email     string
	AvatarURL string
	Tags      []string
	Notes     string
	CreatedAt int64
}

// Lead is a CRM lead record.
type Lead struct {
	ID        string
	OrgID     string
	Name      string
	Phone     string
	Email     string
	Source    string
	Status    string
	CreatedAt int64
}

// TeamMember is an organization agent reachable in the inbox.
type TeamMember struct {
	ID         string
	OrgID      string
	UserID     string
	Name       string
	Phone      string
	Role       string
	Online     bool
	LastSeenAt int64
}

// Organization is the tenant profile hosted by this workspace.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt int64
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrgID  string
	UserID string
	Role   string
}

// Subscription is an organization's plan state.
type Subscription struct {
	OrgID     string
	Plan      string
	Status    string
	ExpiresAt int64
}

// User is an authenticated portal user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // agent, admin, superadmin
	OrgID        string
	CreatedAt    int64
}

// Template is a reusable message template.
type Template struct {
	ID        string
	OrgID     string
	Name      string
	Language  string
	Category  string
	Status    string
	Body      string
	CreatedAt int64
}

// Chatbot is a keyword-triggered auto-reply configuration.
type Chatbot struct {
	ID        string
	OrgID     string
	Name      string
	Enabled   bool
	Keywords  []string
	ReplyBody string
	CreatedAt int64
}

// Broadcast statuses.
const (
	BroadcastDraft    = "draft"
	BroadcastRunning  = "running"
	BroadcastFinished = "finished"
)

// Broadcast is a campaign that fans a template out to an audience.
type Broadcast struct {
	ID          string
	OrgID       string
	Name        string
	TemplateID  string
	Audience    string // clients, leads, tag
	AudienceTag string
	Status      string
	QueuedCount int
	SentCount   int
	FailedCount int
	CreatedAt   int64
	StartedAt   int64
	FinishedAt  int64
}

// BroadcastRecipient tracks one delivery of a broadcast.
type BroadcastRecipient struct {
	BroadcastID string
	Phone       string
	Name        string
	ClientMsgID string
	Status      string
}

// DeviceAccount is the WhatsApp account paired to this workspace.
type DeviceAccount struct {
	ID          string
	Phone       string
	DisplayName string
	Status      string // disconnected, pairing, connected
	ConnectedAt int64
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	ChatJID        string
	Body           string
	MessageType    string
	MediaURL       string
	MediaDuration  int
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

// Tags are stored as JSON arrays in a TEXT column.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
