package sync

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"github.com/wacrm/wacrm/internal/wa"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) (*Engine, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := bus.New()
	return NewEngine(db, b, zap.NewNop()), db, b
}

func inbound(jid, msgID, body string, ts int64) *wa.ParsedMessage {
	return &wa.ParsedMessage{
		ChatJID:     jid,
		MsgID:       msgID,
		SenderName:  "Alice",
		Body:        body,
		MessageType: "text",
		Timestamp:   ts,
	}
}

func TestIngestUnknownNumberCapturesLead(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.IngestMessage(inbound("5511999@s.whatsapp.net", "M1", "hi", 1000)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	conv, err := db.GetConversationByJID("5511999@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation not created")
	}
	if conv.ContactType != store.ContactLead {
		t.Errorf("contact type = %q, want lead", conv.ContactType)
	}
	if conv.ContactName != "Alice" {
		t.Errorf("contact name = %q, want push name", conv.ContactName)
	}

	leads, err := db.ListLeads()
	if err != nil {
		t.Fatal(err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 captured lead, got %d", len(leads))
	}
	if leads[0].Phone != "5511999" || leads[0].Source != "whatsapp" {
		t.Errorf("lead = %+v", leads[0])
	}
	if conv.ContactID != leads[0].ID {
		t.Error("conversation not linked to captured lead")
	}
}

func TestIngestKnownClientSetsClientType(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := db.UpsertClient(&store.Client{ID: "cl1", Name: "Bob Buyer", Phone: "5511888"}); err != nil {
		t.Fatal(err)
	}

	if err := e.IngestMessage(inbound("5511888@s.whatsapp.net", "M1", "quote?", 1000)); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversationByJID("5511888@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ContactType != store.ContactClient {
		t.Errorf("contact type = %q, want client", conv.ContactType)
	}
	if conv.ContactName != "Bob Buyer" {
		t.Errorf("contact name = %q, want CRM name over push name", conv.ContactName)
	}

	// No lead is captured for a known client.
	leads, err := db.ListLeads()
	if err != nil {
		t.Fatal(err)
	}
	if len(leads) != 0 {
		t.Errorf("lead captured for known client: %+v", leads)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	e, db, _ := testEngine(t)

	msg := inbound("5511999@s.whatsapp.net", "M1", "hi", 1000)
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	n, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 message after replay, got %d", n)
	}
	if cnt, _ := db.ConversationCount(); cnt != 1 {
		t.Errorf("expected 1 conversation after replay, got %d", cnt)
	}
}

func TestInboundBumpsUnreadOutboundDoesNot(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.IngestMessage(inbound("5511999@s.whatsapp.net", "M1", "hi", 1000)); err != nil {
		t.Fatal(err)
	}
	out := inbound("5511999@s.whatsapp.net", "M2", "reply", 2000)
	out.FromMe = true
	if err := e.IngestMessage(out); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversationByJID("5511999@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", conv.UnreadCount)
	}
	if !conv.LastMessageFromMe {
		t.Error("last message should be from me")
	}
}

func TestIngestPublishesBusEvents(t *testing.T) {
	e, _, b := testEngine(t)

	msgCh, unsub := b.Subscribe("message.", 10)
	defer unsub()
	convCh, unsub2 := b.Subscribe("conversation.", 10)
	defer unsub2()

	if err := e.IngestMessage(inbound("5511999@s.whatsapp.net", "M1", "hi", 1000)); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-msgCh:
		if evt.Kind != bus.KindMessageUpserted {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.upserted event")
	}
	select {
	case evt := <-convCh:
		if evt.Kind != bus.KindConversationUpdated {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no conversation.updated event")
	}
}

func TestHistoryBatchDoesNotBumpUnread(t *testing.T) {
	e, db, _ := testEngine(t)

	batch := []*wa.ParsedMessage{
		inbound("5511999@s.whatsapp.net", "H1", "old one", 1000),
		inbound("5511999@s.whatsapp.net", "H2", "old two", 2000),
		inbound("5522888@s.whatsapp.net", "H3", "other chat", 1500),
	}
	if err := e.IngestHistoryBatch(batch); err != nil {
		t.Fatalf("batch: %v", err)
	}

	conv, err := db.GetConversationByJID("5511999@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if conv.UnreadCount != 0 {
		t.Errorf("history bumped unread to %d", conv.UnreadCount)
	}
	if conv.LastMessageAt != 2000 {
		t.Errorf("last_message_at = %d, want 2000", conv.LastMessageAt)
	}
	if n, _ := db.MessageCount(); n != 3 {
		t.Errorf("message count = %d, want 3", n)
	}
}

// Replaying history after live traffic must not move the last-message summary
// backwards.
func TestHistoryNeverRewindsLastMessage(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.IngestMessage(inbound("5511999@s.whatsapp.net", "M9", "latest", 9000)); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestHistoryBatch([]*wa.ParsedMessage{
		inbound("5511999@s.whatsapp.net", "H1", "ancient", 1000),
	}); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversationByJID("5511999@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessageAt != 9000 {
		t.Errorf("last_message_at = %d, want 9000", conv.LastMessageAt)
	}
	if conv.LastMessagePreview != "latest" {
		t.Errorf("preview = %q, want latest", conv.LastMessagePreview)
	}
}

func TestMediaPreview(t *testing.T) {
	tests := []struct {
		msg  wa.ParsedMessage
		want string
	}{
		{wa.ParsedMessage{Body: "text wins", MessageType: "image"}, "text wins"},
		{wa.ParsedMessage{MessageType: "image"}, "[photo]"},
		{wa.ParsedMessage{MessageType: "voice"}, "[voice message]"},
		{wa.ParsedMessage{MessageType: "document", MediaFilename: "a.pdf"}, "[file] a.pdf"},
		{wa.ParsedMessage{MessageType: "location"}, "[location]"},
	}
	for _, tt := range tests {
		if got := preview(&tt.msg); got != tt.want {
			t.Errorf("preview(%s) = %q, want %q", tt.msg.MessageType, got, tt.want)
		}
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}

	// 3-byte runes, so a 100-byte cut lands mid-rune.
	long := strings.Repeat("日", 40)
	got := truncate(long, 100)
	if len(got) > 100 {
		t.Errorf("len = %d, want <= 100", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated preview is invalid UTF-8: %q", got)
	}
}

func TestReconcilerCheckpoints(t *testing.T) {
	_, db, b := testEngine(t)
	r := NewReconciler(db, b, nil, zap.NewNop())

	v, err := r.GetCheckpoint(CheckpointHistoryCursor)
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("fresh checkpoint = %q, want empty", v)
	}
	if err := r.UpdateCheckpoint(CheckpointHistoryCursor, "42"); err != nil {
		t.Fatal(err)
	}
	v, err = r.GetCheckpoint(CheckpointHistoryCursor)
	if err != nil {
		t.Fatal(err)
	}
	if v != "42" {
		t.Errorf("checkpoint = %q, want 42", v)
	}
}

func TestReconcilerTracksDeviceAccount(t *testing.T) {
	_, db, b := testEngine(t)
	r := NewReconciler(db, b, nil, zap.NewNop())

	r.handleEvent(bus.Event{Kind: bus.KindDeviceQRGenerated})
	d, err := db.GetDeviceAccount(PrimaryDeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Status != "pairing" {
		t.Fatalf("after qr: device = %+v", d)
	}

	r.handleEvent(bus.Event{Kind: bus.KindSyncConnected})
	d, err = db.GetDeviceAccount(PrimaryDeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != "connected" || d.ConnectedAt == 0 {
		t.Errorf("after connect: device = %+v", d)
	}
	if v, _ := r.GetCheckpoint(CheckpointLastConnected); v == "" {
		t.Error("connect checkpoint not recorded")
	}

	r.handleEvent(bus.Event{Kind: bus.KindDeviceLoggedOut})
	d, err = db.GetDeviceAccount(PrimaryDeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != "disconnected" {
		t.Errorf("after logout: device = %+v", d)
	}
}
