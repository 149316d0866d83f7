package bot

import (
	"context"
	"strings"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/inbox"
	"github.com/wacrm/wacrm/internal/store"
	"github.com/wacrm/wacrm/internal/template"
	"go.uber.org/zap"
)

// Responder auto-replies to inbound messages matching chatbot keywords.
// It listens to ingested messages on the bus; for each inbound message the
// first enabled bot with a matching keyword wins, and at most one reply is
// queued per message.
type Responder struct {
	db      *store.DB
	channel *inbox.Channel
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewResponder creates a chatbot responder.
func NewResponder(db *store.DB, channel *inbox.Channel, b *bus.Bus, logger *zap.Logger) *Responder {
	return &Responder{
		db:      db,
		channel: channel,
		bus:     b,
		logger:  logger,
	}
}

// Start subscribes to ingested messages.
func (r *Responder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe(bus.KindMessageUpserted, 128)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the responder.
func (r *Responder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Responder) handle(evt bus.Event) {
	payload, ok := evt.Payload.(map[string]string)
	if !ok {
		return
	}
	if payload["from_me"] == "true" {
		return
	}
	if err := r.Respond(payload["conversation_id"], payload["body"], payload["contact_name"]); err != nil {
		r.logger.Error("chatbot reply failed", zap.Error(err),
			zap.String("conversation_id", payload["conversation_id"]))
	}
}

// Respond checks the inbound body against every enabled bot and queues the
// first matching bot's reply. Returns nil when nothing matches.
func (r *Responder) Respond(conversationID, body, contactName string) error {
	if conversationID == "" || body == "" {
		return nil
	}

	bots, err := r.db.ListChatbots(true)
	if err != nil {
		return err
	}

	bot := match(bots, body)
	if bot == nil {
		return nil
	}

	reply := template.Render(bot.ReplyBody, map[string]string{"name": contactName})
	if _, err := r.channel.SendText(conversationID, reply); err != nil {
		return err
	}
	r.logger.Info("chatbot replied",
		zap.String("bot", bot.Name),
		zap.String("conversation_id", conversationID))
	return nil
}

// match returns the first bot whose keyword appears in the body,
// case-insensitively. Bots are ordered by creation time.
func match(bots []store.Chatbot, body string) *store.Chatbot {
	lower := strings.ToLower(body)
	for i := range bots {
		for _, kw := range bots[i].Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return &bots[i]
			}
		}
	}
	return nil
}
