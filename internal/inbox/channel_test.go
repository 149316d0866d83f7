package inbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

func testChannel(t *testing.T) (*Channel, *State, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.UpsertConversation(&store.Conversation{
		ID:      "c1",
		ChatJID: "5511999@s.whatsapp.net",
	}); err != nil {
		t.Fatal(err)
	}
	state := NewState()
	state.SetConversations([]store.Conversation{{ID: "c1", ChatJID: "5511999@s.whatsapp.net"}})
	b := bus.New()
	return NewChannel(state, db, b, zap.NewNop()), state, db, b
}

// The placeholder appears synchronously, before any delivery work.
func TestSendTextCreatesPlaceholderImmediately(t *testing.T) {
	ch, state, db, _ := testChannel(t)

	clientID, err := ch.SendText("c1", "Hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := state.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want exactly 1", len(msgs))
	}
	if msgs[0].MsgID != clientID {
		t.Errorf("msg id = %q, want client id %q", msgs[0].MsgID, clientID)
	}
	if msgs[0].Status != store.StatusSending {
		t.Errorf("status = %q, want sending", msgs[0].Status)
	}
	if msgs[0].Body != "Hello" {
		t.Errorf("body = %q", msgs[0].Body)
	}

	// The outbox holds a matching queued entry.
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != clientID {
		t.Errorf("pending = %+v", pending)
	}
	if pending[0].ChatJID != "5511999@s.whatsapp.net" {
		t.Errorf("chat jid = %q", pending[0].ChatJID)
	}
}

func TestSendAckReassignsPlaceholder(t *testing.T) {
	ch, state, _, b := testChannel(t)
	ch.Start(context.Background())
	defer ch.Stop()

	clientID, err := ch.SendText("c1", "Hello")
	if err != nil {
		t.Fatal(err)
	}

	b.Emit(bus.KindMessageSendAck, map[string]string{
		"conversation_id": "c1",
		"client_msg_id":   clientID,
		"server_msg_id":   "SRV9",
	})

	deadline := time.Now().Add(time.Second)
	for {
		msgs := state.Messages("c1")
		if len(msgs) == 1 && msgs[0].MsgID == "SRV9" && msgs[0].Status == store.StatusSent {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("placeholder not reconciled: %+v", msgs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A failed send flips the placeholder to failed and keeps it visible.
func TestSendFailureKeepsPlaceholder(t *testing.T) {
	ch, state, _, b := testChannel(t)
	ch.Start(context.Background())
	defer ch.Stop()

	clientID, err := ch.SendText("c1", "Hello")
	if err != nil {
		t.Fatal(err)
	}

	b.Emit(bus.KindMessageSendFail, map[string]string{
		"conversation_id": "c1",
		"client_msg_id":   clientID,
		"error":           "not connected",
	})

	deadline := time.Now().Add(time.Second)
	for {
		msgs := state.Messages("c1")
		if len(msgs) == 1 && msgs[0].Status == store.StatusFailed {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("placeholder not marked failed: %+v", msgs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendUpdatesConversationSummary(t *testing.T) {
	ch, state, db, _ := testChannel(t)

	if _, err := ch.SendText("c1", "Hello"); err != nil {
		t.Fatal(err)
	}

	var inState store.Conversation
	for _, c := range state.Conversations() {
		if c.ID == "c1" {
			inState = c
		}
	}
	if inState.LastMessagePreview != "Hello" || !inState.LastMessageFromMe {
		t.Errorf("in-memory summary = %+v", inState)
	}

	persisted, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if persisted.LastMessagePreview != "Hello" {
		t.Errorf("persisted preview = %q", persisted.LastMessagePreview)
	}
}

func TestSendVoiceCarriesDuration(t *testing.T) {
	ch, _, db, _ := testChannel(t)

	if _, err := ch.SendVoice("c1", "https://media.example/v.ogg", 9); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
	if pending[0].MessageType != "voice" || pending[0].MediaDuration != 9 {
		t.Errorf("entry = %+v", pending[0])
	}
}

func TestSendValidation(t *testing.T) {
	ch, _, _, _ := testChannel(t)

	if _, err := ch.SendText("c1", ""); err == nil {
		t.Error("empty body accepted")
	}
	if _, err := ch.SendText("", "hi"); err == nil {
		t.Error("empty conversation accepted")
	}
	if _, err := ch.SendText("missing", "hi"); err == nil {
		t.Error("unknown conversation accepted")
	}
	if _, err := ch.SendVoice("c1", "", 3); err == nil {
		t.Error("voice without media url accepted")
	}
}

func TestLoadReversesToChronologicalOrder(t *testing.T) {
	ch, state, db, _ := testChannel(t)

	for i, body := range []string{"first", "second", "third"} {
		if err := db.UpsertMessage(&store.Message{
			ConversationID: "c1",
			MsgID:          body,
			Body:           body,
			Timestamp:      int64(1000 + i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := ch.Load(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	msgs := state.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("loaded %d messages", len(msgs))
	}
	if msgs[0].Body != "first" || msgs[2].Body != "third" {
		t.Errorf("order = %q, %q, %q", msgs[0].Body, msgs[1].Body, msgs[2].Body)
	}
}

// A fetch that completes after a newer fetch started is discarded.
func TestStaleFetchDiscarded(t *testing.T) {
	_, state, _, _ := testChannel(t)

	oldGen := state.BeginFetch("c1")
	newGen := state.BeginFetch("c1")

	if state.CompleteFetch("c1", oldGen, []store.Message{{MsgID: "stale"}}) {
		t.Error("stale fetch was installed")
	}
	if !state.CompleteFetch("c1", newGen, []store.Message{{MsgID: "fresh"}}) {
		t.Error("current fetch rejected")
	}

	msgs := state.Messages("c1")
	if len(msgs) != 1 || msgs[0].MsgID != "fresh" {
		t.Errorf("messages = %+v, want only fresh", msgs)
	}
}
