package broadcast

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

func testRunner(t *testing.T) (*Runner, *store.DB, *bus.Bus) {
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
	return NewRunner(db, b, zap.NewNop()), db, b
}

func seedCampaign(t *testing.T, db *store.DB, audience, tag string) {
	t.Helper()
	if err := db.UpsertTemplate(&store.Template{
		ID:   "t1",
		Name: "promo",
		Body: "Hi {{name}}, new offer!",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertBroadcast(&store.Broadcast{
		ID:          "bc1",
		Name:        "spring",
		TemplateID:  "t1",
		Audience:    audience,
		AudienceTag: tag,
		Status:      store.BroadcastDraft,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestLaunchQueuesPerClient(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceClients, "")
	for _, c := range []store.Client{
		{ID: "cl1", Name: "Alice", Phone: "100"},
		{ID: "cl2", Name: "Bob", Phone: "200"},
	} {
		c := c
		if err := db.UpsertClient(&c); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatalf("launch: %v", err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("queued %d, want 2", len(pending))
	}

	bodies := map[string]bool{}
	for _, e := range pending {
		bodies[e.Body] = true
	}
	if !bodies["Hi Alice, new offer!"] || !bodies["Hi Bob, new offer!"] {
		t.Errorf("rendered bodies = %v", bodies)
	}

	bc, err := db.GetBroadcast("bc1")
	if err != nil {
		t.Fatal(err)
	}
	if bc.Status != store.BroadcastRunning || bc.QueuedCount != 2 {
		t.Errorf("broadcast = %+v", bc)
	}
}

func TestLaunchTagAudience(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceTag, "vip")
	if err := db.UpsertClient(&store.Client{ID: "cl1", Name: "Alice", Phone: "100", Tags: []string{"vip"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertClient(&store.Client{ID: "cl2", Name: "Bob", Phone: "200"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("queued %d, want only tagged client", len(pending))
	}
}

func TestLaunchOnlyDrafts(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceClients, "")
	if err := db.UpsertClient(&store.Client{ID: "cl1", Name: "A", Phone: "1"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Launch(context.Background(), "bc1"); err == nil {
		t.Error("running broadcast relaunched")
	}
}

func TestDuplicatePhonesCollapse(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceLeads, "")
	if err := db.UpsertLead(&store.Lead{ID: "l1", Name: "A", Phone: "100"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertLead(&store.Lead{ID: "l2", Name: "A dup", Phone: "100"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatal(err)
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("queued %d, want 1 per phone", len(pending))
	}
	bc, _ := db.GetBroadcast("bc1")
	if bc.QueuedCount != 1 {
		t.Errorf("queued_count = %d", bc.QueuedCount)
	}
}

func TestAcksDriveCountsAndFinish(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceClients, "")
	if err := db.UpsertClient(&store.Client{ID: "cl1", Name: "A", Phone: "100"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertClient(&store.Client{ID: "cl2", Name: "B", Phone: "200"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatal(err)
	}

	recipients, err := db.ListBroadcastRecipients("bc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 2 {
		t.Fatalf("recipients = %d", len(recipients))
	}

	// One delivery succeeds, one fails; the broadcast finishes when both
	// resolve.
	r.handleAck(bus.Event{Kind: bus.KindMessageSendAck, Payload: map[string]string{
		"client_msg_id": recipients[0].ClientMsgID, "server_msg_id": "S1",
	}})
	bc, _ := db.GetBroadcast("bc1")
	if bc.Status != store.BroadcastRunning {
		t.Errorf("status = %q before all resolved", bc.Status)
	}

	r.handleAck(bus.Event{Kind: bus.KindMessageSendFail, Payload: map[string]string{
		"client_msg_id": recipients[1].ClientMsgID, "error": "x",
	}})
	bc, _ = db.GetBroadcast("bc1")
	if bc.Status != store.BroadcastFinished {
		t.Errorf("status = %q, want finished", bc.Status)
	}
	if bc.SentCount != 1 || bc.FailedCount != 1 {
		t.Errorf("counts = %d sent %d failed", bc.SentCount, bc.FailedCount)
	}
}

func TestUnrelatedAckIgnored(t *testing.T) {
	r, db, _ := testRunner(t)
	seedCampaign(t, db, AudienceClients, "")
	if err := db.UpsertClient(&store.Client{ID: "cl1", Name: "A", Phone: "100"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Launch(context.Background(), "bc1"); err != nil {
		t.Fatal(err)
	}

	r.handleAck(bus.Event{Kind: bus.KindMessageSendAck, Payload: map[string]string{
		"client_msg_id": "some-direct-send", "server_msg_id": "S1",
	}})

	bc, _ := db.GetBroadcast("bc1")
	if bc.SentCount != 0 {
		t.Errorf("unrelated ack counted: %+v", bc)
	}
}
