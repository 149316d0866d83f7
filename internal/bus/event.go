package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kind namespaces. Subscribers match on prefix, so "message." receives
// every message-related kind.
const (
	KindInboundMessage = "wa.message"       // payload *wa.ParsedMessage
	KindHistoryBatch   = "wa.history_batch" // payload []*wa.ParsedMessage

	KindMessageUpserted = "message.upserted"
	KindMessageSendAck  = "message.send_ack"
	KindMessageSendFail = "message.send_failed"

	KindConversationUpdated = "conversation.updated"
	KindConversationDeleted = "conversation.deleted"

	KindDeviceStatusChanged = "device.status_changed"
	KindDeviceQRGenerated   = "device.qr_generated"
	KindDeviceAuthenticated = "device.authenticated"
	KindDeviceAuthFailed    = "device.auth_failed"
	KindDeviceLoggedOut     = "device.logged_out"

	KindSyncConnected    = "sync.connected"
	KindSyncDisconnected = "sync.disconnected"
	KindSyncHistoryBatch = "sync.history_batch"

	KindNotifySuccess = "notify.success"
	KindNotifyInfo    = "notify.info"
	KindNotifyError   = "notify.error"

	KindBroadcastStarted  = "broadcast.started"
	KindBroadcastFinished = "broadcast.finished"
)
