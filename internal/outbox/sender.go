package outbox

import (
	"context"
	"time"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"github.com/wacrm/wacrm/internal/wa"
	"go.uber.org/zap"
)

// MessageSender is the WhatsApp-facing side of the outbox.
type MessageSender interface {
	SendText(ctx context.Context, jid string, text string) (serverMsgID string, err error)
	SendMediaURL(ctx context.Context, jid string, kind wa.MediaKind, mediaURL, caption string, seconds int) (serverMsgID string, err error)
}

// Sender drains the outbox and delivers entries via the WhatsApp adapter.
// The optimistic placeholder row already exists when an entry is queued; the
// sender's job is to reconcile it: on ack the placeholder's client id is
// swapped for the server message id, on failure it is marked failed. The
// placeholder is never removed.
type Sender struct {
	db     *store.DB
	sender MessageSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	interval time.Duration
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		interval: 500 * time.Millisecond,
	}
}

// Start begins polling the outbox for pending entries.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending drains all queued entries once.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		serverMsgID, err := s.deliver(ctx, entry)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.db.SetMessageStatus(entry.ConversationID, entry.ClientMsgID, store.StatusFailed)
			s.bus.Emit(bus.KindMessageSendFail, map[string]string{
				"conversation_id": entry.ConversationID,
				"client_msg_id":   entry.ClientMsgID,
				"error":           err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		_ = s.db.ReassignMessageID(entry.ConversationID, entry.ClientMsgID, serverMsgID, store.StatusSent)

		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", serverMsgID))
		s.bus.Emit(bus.KindMessageSendAck, map[string]string{
			"conversation_id": entry.ConversationID,
			"client_msg_id":   entry.ClientMsgID,
			"server_msg_id":   serverMsgID,
		})
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) (string, error) {
	switch entry.MessageType {
	case "", "text":
		return s.sender.SendText(ctx, entry.ChatJID, entry.Body)
	case "voice":
		return s.sender.SendMediaURL(ctx, entry.ChatJID, wa.MediaVoice, entry.MediaURL, "", entry.MediaDuration)
	case "image":
		return s.sender.SendMediaURL(ctx, entry.ChatJID, wa.MediaImage, entry.MediaURL, entry.Body, 0)
	case "video":
		return s.sender.SendMediaURL(ctx, entry.ChatJID, wa.MediaVideo, entry.MediaURL, entry.Body, 0)
	default:
		return s.sender.SendMediaURL(ctx, entry.ChatJID, wa.MediaDocument, entry.MediaURL, entry.Body, 0)
	}
}
