package sync

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"github.com/wacrm/wacrm/internal/wa"
	"go.uber.org/zap"
)

// Engine ingests inbound WhatsApp traffic into the CRM store. It subscribes
// to "wa." events on the bus; ingestion is idempotent on (conversation, msg id)
// so replayed history never duplicates rows.
//
// Every inbound number is classified against the CRM: team members first,
// then clients, then leads. Unknown numbers are captured as new leads so no
// conversation ever dangles without a contact.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound WhatsApp events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindInboundMessage:
		msg, ok := evt.Payload.(*wa.ParsedMessage)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MsgID))
		}
	case bus.KindHistoryBatch:
		msgs, ok := evt.Payload.([]*wa.ParsedMessage)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(msgs); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
		} else {
			e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)))
		}
	}
}

// phoneFromJID extracts the phone number from a user JID. Group JIDs have no
// phone and yield "".
func phoneFromJID(jid string) string {
	if strings.HasSuffix(jid, "@g.us") {
		return ""
	}
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return jid
	}
	return jid[:at]
}

// EnsureConversation returns the conversation for a chat JID, creating it
// when the chat is new. The contact type is derived once at creation by
// matching the phone against team members, clients and leads; an unknown
// number is captured as a lead first.
func (e *Engine) EnsureConversation(chatJID, pushName string) (*store.Conversation, error) {
	conv, err := e.db.GetConversationByJID(chatJID)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	phone := phoneFromJID(chatJID)
	contact, err := e.db.ResolveContactByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}
	if contact == nil && phone != "" {
		lead := &store.Lead{
			ID:     uuid.NewString(),
			Name:   pushName,
			Phone:  phone,
			Source: "whatsapp",
			Status: "new",
		}
		if lead.Name == "" {
			lead.Name = phone
		}
		if err := e.db.UpsertLead(lead); err != nil {
			return nil, fmt.Errorf("capture lead: %w", err)
		}
		contact = &store.Contact{ID: lead.ID, Name: lead.Name, Phone: phone, Type: store.ContactLead}
	}

	conv = &store.Conversation{
		ID:           uuid.NewString(),
		ChatJID:      chatJID,
		ContactPhone: phone,
		ContactType:  store.ContactLead,
		Status:       "new",
	}
	if contact != nil {
		conv.ContactID = contact.ID
		conv.ContactName = contact.Name
		conv.ContactType = contact.Type
		conv.ContactAvatar = contact.AvatarURL
	}
	if conv.ContactName == "" {
		conv.ContactName = pushName
	}
	if err := e.db.UpsertConversation(conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// IngestMessage processes one live message into the store (idempotent).
func (e *Engine) IngestMessage(msg *wa.ParsedMessage) error {
	conv, err := e.EnsureConversation(msg.ChatJID, msg.SenderName)
	if err != nil {
		return err
	}

	if err := e.db.UpsertMessage(toStoreMessage(conv.ID, msg)); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	conv.LastMessageAt = msg.Timestamp
	conv.LastMessagePreview = preview(msg)
	conv.LastMessageFromMe = msg.FromMe
	conv.LastMessageRead = msg.FromMe
	if !msg.FromMe {
		conv.UnreadCount++
	}
	if err := e.db.UpsertConversation(conv); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	fromMe := "false"
	if msg.FromMe {
		fromMe = "true"
	}
	e.bus.Emit(bus.KindMessageUpserted, map[string]string{
		"conversation_id": conv.ID,
		"msg_id":          msg.MsgID,
		"body":            msg.Body,
		"from_me":         fromMe,
		"contact_name":    conv.ContactName,
	})
	e.bus.Emit(bus.KindConversationUpdated, conv.ID)

	return nil
}

// IngestHistoryBatch processes a batch of history messages in one transaction.
// History never bumps unread counters; it backfills silently.
func (e *Engine) IngestHistoryBatch(msgs []*wa.ParsedMessage) error {
	// Conversations are created up front so the tx only touches messages
	// and last-message summaries.
	convByJID := make(map[string]*store.Conversation)
	for _, m := range msgs {
		if _, ok := convByJID[m.ChatJID]; ok {
			continue
		}
		conv, err := e.EnsureConversation(m.ChatJID, m.SenderName)
		if err != nil {
			return err
		}
		convByJID[m.ChatJID] = conv
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	count := 0
	for _, m := range msgs {
		conv := convByJID[m.ChatJID]
		sm := toStoreMessage(conv.ID, m)
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_name, body, message_type, from_me, status, timestamp,
				media_url, media_type, media_filename, media_duration, media_size, latitude, longitude, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				status = excluded.status`,
			sm.ConversationID, sm.MsgID, sm.SenderName, sm.Body, sm.MessageType, sm.FromMe, sm.Status, sm.Timestamp,
			sm.MediaURL, sm.MediaType, sm.MediaFilename, sm.MediaDuration, sm.MediaSize, sm.Latitude, sm.Longitude, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}

		if _, err := tx.Exec(`
			UPDATE conversations SET
				last_message_at = MAX(last_message_at, ?),
				last_message_preview = CASE WHEN ? > last_message_at THEN ? ELSE last_message_preview END,
				updated_at = ?
			WHERE id = ?`,
			sm.Timestamp, sm.Timestamp, preview(m), now, conv.ID); err != nil {
			return fmt.Errorf("update conversation in batch: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Emit(bus.KindSyncHistoryBatch, map[string]int{
		"messages":      count,
		"conversations": len(convByJID),
	})

	return nil
}

func toStoreMessage(conversationID string, m *wa.ParsedMessage) *store.Message {
	status := store.StatusReceived
	if m.FromMe {
		status = store.StatusSent
	}
	return &store.Message{
		ConversationID: conversationID,
		MsgID:          m.MsgID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		MessageType:    m.MessageType,
		FromMe:         m.FromMe,
		Status:         status,
		Timestamp:      m.Timestamp,
		MediaType:      m.MediaMime,
		MediaFilename:  m.MediaFilename,
		MediaDuration:  m.MediaDuration,
		MediaSize:      m.MediaSize,
		Latitude:       m.Latitude,
		Longitude:      m.Longitude,
	}
}

// preview renders the conversation list summary line for a message.
func preview(m *wa.ParsedMessage) string {
	if m.Body != "" {
		return truncate(m.Body, 100)
	}
	switch m.MessageType {
	case "image":
		return "[photo]"
	case "video":
		return "[video]"
	case "voice":
		return "[voice message]"
	case "audio":
		return "[audio]"
	case "document":
		if m.MediaFilename != "" {
			return "[file] " + m.MediaFilename
		}
		return "[file]"
	case "location":
		return "[location]"
	case "sticker":
		return "[sticker]"
	case "contact":
		return "[contact]"
	default:
		return ""
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
