package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"github.com/wacrm/wacrm/internal/template"
	"go.uber.org/zap"
)

// Audience selectors.
const (
	AudienceClients = "clients"
	AudienceLeads   = "leads"
	AudienceTag     = "tag"
)

// Runner fans a broadcast's template out to its audience through the outbox
// and tracks per-recipient delivery from the outbox acks. Each recipient gets
// the template rendered with their own name.
type Runner struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewRunner creates a broadcast runner.
func NewRunner(db *store.DB, b *bus.Bus, logger *zap.Logger) *Runner {
	return &Runner{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to outbox acks to resolve recipient delivery.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("message.send", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleAck(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the runner.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// recipient is one expansion target.
type recipient struct {
	phone string
	name  string
}

// Launch expands a draft broadcast's audience and queues one message per
// recipient. Duplicate phones collapse to a single delivery.
func (r *Runner) Launch(ctx context.Context, broadcastID string) error {
	bc, err := r.db.GetBroadcast(broadcastID)
	if err != nil {
		return err
	}
	if bc == nil {
		return fmt.Errorf("broadcast %s not found", broadcastID)
	}
	if bc.Status != store.BroadcastDraft {
		return fmt.Errorf("broadcast %s is %s, only drafts can launch", broadcastID, bc.Status)
	}

	tmpl, err := r.db.GetTemplate(bc.TemplateID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("template %s not found", bc.TemplateID)
	}

	recipients, err := r.expand(bc)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return fmt.Errorf("broadcast %s has no recipients", broadcastID)
	}

	seen := make(map[string]bool)
	queued := 0
	for _, rc := range recipients {
		if rc.phone == "" || seen[rc.phone] {
			continue
		}
		seen[rc.phone] = true

		clientID := uuid.NewString()
		if err := r.db.AddBroadcastRecipient(&store.BroadcastRecipient{
			BroadcastID: broadcastID,
			Phone:       rc.phone,
			Name:        rc.name,
			ClientMsgID: clientID,
			Status:      "queued",
		}); err != nil {
			return fmt.Errorf("add recipient: %w", err)
		}

		body := template.Render(tmpl.Body, map[string]string{"name": rc.name})
		if err := r.db.QueueOutbox(&store.OutboxEntry{
			ClientMsgID: clientID,
			ChatJID:     rc.phone + "@s.whatsapp.net",
			Body:        body,
			MessageType: "text",
		}); err != nil {
			return fmt.Errorf("queue recipient: %w", err)
		}
		queued++
	}

	bc.Status = store.BroadcastRunning
	bc.QueuedCount = queued
	bc.StartedAt = time.Now().UnixMilli()
	if err := r.db.UpsertBroadcast(bc); err != nil {
		return err
	}

	r.logger.Info("broadcast launched",
		zap.String("broadcast_id", broadcastID),
		zap.Int("recipients", queued))
	r.bus.Emit(bus.KindBroadcastStarted, broadcastID)
	return nil
}

func (r *Runner) expand(bc *store.Broadcast) ([]recipient, error) {
	switch bc.Audience {
	case AudienceLeads:
		leads, err := r.db.ListLeads()
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(leads))
		for _, l := range leads {
			out = append(out, recipient{phone: l.Phone, name: l.Name})
		}
		return out, nil
	case AudienceTag:
		clients, err := r.db.ListClients()
		if err != nil {
			return nil, err
		}
		var out []recipient
		for _, c := range clients {
			for _, tag := range c.Tags {
				if tag == bc.AudienceTag {
					out = append(out, recipient{phone: c.Phone, name: c.Name})
					break
				}
			}
		}
		return out, nil
	default:
		clients, err := r.db.ListClients()
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(clients))
		for _, c := range clients {
			out = append(out, recipient{phone: c.Phone, name: c.Name})
		}
		return out, nil
	}
}

func (r *Runner) handleAck(evt bus.Event) {
	payload, ok := evt.Payload.(map[string]string)
	if !ok {
		return
	}
	clientID := payload["client_msg_id"]
	if clientID == "" {
		return
	}

	failed := evt.Kind == bus.KindMessageSendFail
	status := "sent"
	if failed {
		status = "failed"
	}

	broadcastID, err := r.db.SetRecipientStatusByClientMsgID(clientID, status)
	if err != nil {
		r.logger.Error("failed to record delivery", zap.Error(err))
		return
	}
	if broadcastID == "" {
		// Direct send, not part of a broadcast.
		return
	}

	bc, err := r.db.RecordBroadcastDelivery(broadcastID, failed)
	if err != nil {
		r.logger.Error("failed to update broadcast counts", zap.Error(err))
		return
	}
	if bc != nil && bc.Status == store.BroadcastFinished {
		r.logger.Info("broadcast finished",
			zap.String("broadcast_id", broadcastID),
			zap.Int("sent", bc.SentCount),
			zap.Int("failed", bc.FailedCount))
		r.bus.Emit(bus.KindBroadcastFinished, broadcastID)
	}
}
