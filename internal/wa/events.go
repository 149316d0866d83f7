package wa

import (
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/status"
	"go.uber.org/zap"

	"go.mau.fi/whatsmeow/types/events"
)

// EventHandler processes whatsmeow events, drives the device state machine,
// and publishes parsed domain events on the bus. It never touches the store
// directly; the sync engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Handle is the whatsmeow event handler entry point.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Syncing)
		h.bus.Emit(bus.KindSyncConnected, nil)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Emit(bus.KindSyncDisconnected, nil)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Emit(bus.KindDeviceLoggedOut, evt.Reason.String())
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if h.machine.Current() == status.Syncing {
		_ = h.machine.Transition(status.Ready)
	}
	h.bus.Emit(bus.KindInboundMessage, ParseLiveMessage(evt))
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var msgs []*ParsedMessage
	for _, conv := range data.GetConversations() {
		chatJID := NormalizeJID(conv.GetID())
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			info := wmsg.GetMessage()
			p := &ParsedMessage{
				ChatJID:     chatJID,
				MsgID:       wmsg.GetKey().GetID(),
				SenderJID:   NormalizeJID(wmsg.GetKey().GetParticipant()),
				Body:        extractTextBody(info),
				MessageType: detectMessageType(info),
				FromMe:      wmsg.GetKey().GetFromMe(),
				Timestamp:   int64(wmsg.GetMessageTimestamp()) * 1000,
			}
			extractMedia(info, p)
			msgs = append(msgs, p)
		}
	}

	if len(msgs) > 0 {
		h.bus.Emit(bus.KindHistoryBatch, msgs)
	}
}
