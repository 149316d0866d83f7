package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

// Channel loads message history for the active conversation and provides the
// optimistic send path for text, attachments and voice notes.
//
// A send constructs a placeholder with a temporary client id and status
// "sending", visible immediately. The outbox delivers it in the background;
// on ack the placeholder takes the server-assigned id and "sent" status, on
// failure it flips to "failed" and stays visible. A placeholder is never
// removed.
type Channel struct {
	state  *State
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewChannel creates a message channel over the shared inbox state.
func NewChannel(state *State, db *store.DB, b *bus.Bus, logger *zap.Logger) *Channel {
	return &Channel{
		state:  state,
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to outbox acks so in-memory placeholders get reconciled.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe("message.send", 128)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handleAck(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the ack listener.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Channel) handleAck(evt bus.Event) {
	payload, ok := evt.Payload.(map[string]string)
	if !ok {
		return
	}
	convID := payload["conversation_id"]
	clientID := payload["client_msg_id"]

	switch evt.Kind {
	case bus.KindMessageSendAck:
		serverID := payload["server_msg_id"]
		c.state.PatchMessage(convID, clientID, func(m *store.Message) {
			m.MsgID = serverID
			m.Status = store.StatusSent
		})
	case bus.KindMessageSendFail:
		c.state.PatchMessage(convID, clientID, func(m *store.Message) {
			m.Status = store.StatusFailed
		})
	}
}

// Load fetches the message history for a conversation into the state,
// oldest first. A response that lands after a newer Load for the same
// conversation has started is discarded.
func (c *Channel) Load(ctx context.Context, conversationID string) error {
	gen := c.state.BeginFetch(conversationID)

	msgs, err := c.db.ListMessages(conversationID, 0, 200)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	// ListMessages returns newest first; the view wants chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if !c.state.CompleteFetch(conversationID, gen, msgs) {
		c.logger.Debug("discarded stale message fetch",
			zap.String("conversation_id", conversationID), zap.Uint64("generation", gen))
	}
	return nil
}

// SendText queues a text message and returns the placeholder's client id.
func (c *Channel) SendText(conversationID, body string) (string, error) {
	if body == "" {
		return "", fmt.Errorf("send: message body is required")
	}
	return c.send(conversationID, &store.Message{
		Body:        body,
		MessageType: "text",
	}, "")
}

// SendAttachment queues a media message referencing an uploaded object.
func (c *Channel) SendAttachment(conversationID, messageType, mediaURL, filename, caption string) (string, error) {
	if mediaURL == "" {
		return "", fmt.Errorf("send: media url is required")
	}
	return c.send(conversationID, &store.Message{
		Body:          caption,
		MessageType:   messageType,
		MediaURL:      mediaURL,
		MediaFilename: filename,
	}, mediaURL)
}

// SendVoice queues a voice note with its duration in seconds.
func (c *Channel) SendVoice(conversationID, mediaURL string, seconds int) (string, error) {
	if mediaURL == "" {
		return "", fmt.Errorf("send: media url is required")
	}
	return c.send(conversationID, &store.Message{
		MessageType:   "voice",
		MediaURL:      mediaURL,
		MediaDuration: seconds,
	}, mediaURL)
}

func (c *Channel) send(conversationID string, msg *store.Message, mediaURL string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("send: conversation id is required")
	}
	conv, err := c.db.GetConversation(conversationID)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if conv == nil {
		return "", fmt.Errorf("send: conversation %s not found", conversationID)
	}

	clientID := uuid.NewString()
	now := time.Now().UnixMilli()
	msg.ConversationID = conversationID
	msg.MsgID = clientID
	msg.FromMe = true
	msg.Status = store.StatusSending
	msg.Timestamp = now

	// Placeholder is visible before any delivery work happens.
	c.state.AppendMessage(conversationID, *msg)

	if err := c.db.UpsertMessage(msg); err != nil {
		return "", fmt.Errorf("persist placeholder: %w", err)
	}
	if err := c.db.QueueOutbox(&store.OutboxEntry{
		ClientMsgID:    clientID,
		ConversationID: conversationID,
		ChatJID:        conv.ChatJID,
		Body:           msg.Body,
		MessageType:    msg.MessageType,
		MediaURL:       mediaURL,
		MediaDuration:  msg.MediaDuration,
	}); err != nil {
		return "", fmt.Errorf("queue outbox: %w", err)
	}

	// Opportunistic conversation summary update.
	summary := msg.Body
	if summary == "" {
		summary = "[" + msg.MessageType + "]"
	}
	c.state.Update(conversationID, func(cv *store.Conversation) {
		cv.LastMessageAt = now
		cv.LastMessagePreview = summary
		cv.LastMessageFromMe = true
		cv.LastMessageRead = true
	})
	if err := c.db.TouchLastMessage(conversationID, summary, now, true); err != nil {
		c.logger.Warn("failed to update conversation summary", zap.Error(err))
	}
	c.bus.Emit(bus.KindConversationUpdated, conversationID)

	return clientID, nil
}
