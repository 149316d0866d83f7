package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wacrm/wacrm/internal/auth"
	"github.com/wacrm/wacrm/internal/broadcast"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/inbox"
	"github.com/wacrm/wacrm/internal/status"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

type testServer struct {
	srv   *httptest.Server
	db    *store.DB
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zap.NewNop()
	b := bus.New()
	state := inbox.NewState()
	authSvc := auth.NewService("test-secret", time.Hour)

	server := NewServer(Deps{
		DB:         db,
		Bus:        b,
		Logger:     logger,
		Auth:       authSvc,
		State:      state,
		Dispatcher: inbox.NewDispatcher(state, &inbox.StoreRemote{DB: db}, &inbox.BusNotifier{Bus: b}, b, logger),
		Channel:    inbox.NewChannel(state, db, b, logger),
		Broadcasts: broadcast.NewRunner(db, b, logger),
		Machine:    status.NewMachine(b),
	})

	ts := &testServer{srv: httptest.NewServer(server.Router()), db: db}
	t.Cleanup(ts.srv.Close)

	resp := ts.do(t, "POST", "/auth/signup", "", map[string]any{
		"org_name": "Acme", "name": "Root", "email": "root@acme.test", "password": "password1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	ts.token = body.Token
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/auth/login", "", map[string]string{
		"email": "root@acme.test", "password": "password1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login status = %d", resp.StatusCode)
	}

	resp = ts.do(t, "POST", "/auth/login", "", map[string]string{
		"email": "root@acme.test", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/conversations", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestClientCRUD(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/clients", ts.token, map[string]any{
		"name": "Alice", "phone": "5511999", "tags": []string{"vip"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)

	resp = ts.do(t, "GET", "/api/clients/"+created.ID, ts.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got clientJSON
	decodeBody(t, resp, &got)
	if got.Name != "Alice" || len(got.Tags) != 1 {
		t.Errorf("client = %+v", got)
	}

	resp = ts.do(t, "DELETE", "/api/clients/"+created.ID, ts.token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = ts.do(t, "GET", "/api/clients/"+created.ID, ts.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d", resp.StatusCode)
	}
}

func TestConversationFilters(t *testing.T) {
	ts := newTestServer(t)
	for _, c := range []store.Conversation{
		{ID: "c1", ChatJID: "1@s.whatsapp.net", ContactName: "Alice", ContactType: store.ContactClient},
		{ID: "c2", ChatJID: "2@s.whatsapp.net", ContactName: "Bob", ContactType: store.ContactLead},
	} {
		c := c
		if err := ts.db.UpsertConversation(&c); err != nil {
			t.Fatal(err)
		}
	}

	resp := ts.do(t, "GET", "/api/conversations?type=client", ts.token, nil)
	var body struct {
		Conversations []conversationJSON `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	if len(body.Conversations) != 1 || body.Conversations[0].ID != "c1" {
		t.Errorf("filtered = %+v", body.Conversations)
	}

	resp = ts.do(t, "GET", "/api/conversations?group=1", ts.token, nil)
	var grouped struct {
		Groups map[string][]conversationJSON `json:"groups"`
	}
	decodeBody(t, resp, &grouped)
	if len(grouped.Groups[inbox.GroupClients]) != 1 || len(grouped.Groups[inbox.GroupLeads]) != 1 {
		t.Errorf("groups = %+v", grouped.Groups)
	}
}

func TestSendTextQueuesPlaceholder(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.db.UpsertConversation(&store.Conversation{
		ID: "c1", ChatJID: "5511999@s.whatsapp.net",
	}); err != nil {
		t.Fatal(err)
	}

	resp := ts.do(t, "POST", "/api/conversations/c1/messages", ts.token, map[string]string{
		"body": "Hello",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	var sent struct {
		ClientMsgID string `json:"client_msg_id"`
	}
	decodeBody(t, resp, &sent)
	if sent.ClientMsgID == "" {
		t.Fatal("no client_msg_id returned")
	}

	pending, err := ts.db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Body != "Hello" {
		t.Errorf("outbox = %+v", pending)
	}

	msgs, err := ts.db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != store.StatusSending {
		t.Errorf("placeholder = %+v", msgs)
	}
}

func TestSendToUnknownConversation(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/conversations/nope/messages", ts.token, map[string]string{
		"body": "Hello",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClientCSVRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	csvBody := "name,phone,email,tags\nAlice,100,a@x.test,vip;key\n,200,,\nBob,300,,\n"
	req, err := http.NewRequest("POST", ts.srv.URL+"/api/clients/import", strings.NewReader(csvBody))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var imported struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	decodeBody(t, resp, &imported)
	if imported.Imported != 2 || imported.Skipped != 1 {
		t.Errorf("import = %+v", imported)
	}

	resp = ts.do(t, "GET", "/api/clients/export.csv", ts.token, nil)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if !strings.Contains(out, "Alice") || !strings.Contains(out, "vip;key") {
		t.Errorf("export = %q", out)
	}
}

func TestTemplateAndBroadcastFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/templates", ts.token, map[string]string{
		"name": "promo", "body": "Hi {{name}}",
	})
	var tmpl struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &tmpl)

	resp = ts.do(t, "POST", "/api/broadcasts", ts.token, map[string]any{
		"name": "spring", "template_id": tmpl.ID, "audience": "clients",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create broadcast status = %d", resp.StatusCode)
	}
	var bc struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &bc)

	// Launching without recipients fails with a conflict.
	resp = ts.do(t, "POST", fmt.Sprintf("/api/broadcasts/%s/launch", bc.ID), ts.token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("empty launch status = %d", resp.StatusCode)
	}

	if err := ts.db.UpsertClient(&store.Client{ID: "cl1", Name: "Alice", Phone: "100"}); err != nil {
		t.Fatal(err)
	}
	resp = ts.do(t, "POST", fmt.Sprintf("/api/broadcasts/%s/launch", bc.ID), ts.token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("launch status = %d", resp.StatusCode)
	}

	resp = ts.do(t, "GET", "/api/broadcasts/"+bc.ID, ts.token, nil)
	var detail struct {
		Broadcast  broadcastJSON    `json:"broadcast"`
		Recipients []map[string]any `json:"recipients"`
	}
	decodeBody(t, resp, &detail)
	if detail.Broadcast.Status != store.BroadcastRunning || len(detail.Recipients) != 1 {
		t.Errorf("broadcast detail = %+v", detail)
	}
}

func TestRoleGateOnTeamWrites(t *testing.T) {
	ts := newTestServer(t)

	// Add an agent user and log in as them.
	resp := ts.do(t, "POST", "/api/org/members", ts.token, map[string]string{
		"email": "agent@acme.test", "name": "Agent", "password": "password1", "role": "agent",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add member status = %d", resp.StatusCode)
	}
	resp = ts.do(t, "POST", "/auth/login", "", map[string]string{
		"email": "agent@acme.test", "password": "password1",
	})
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &login)

	resp = ts.do(t, "POST", "/api/team", login.Token, map[string]string{
		"name": "X", "phone": "1",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("agent team write status = %d, want 403", resp.StatusCode)
	}

	resp = ts.do(t, "POST", "/api/team", ts.token, map[string]string{
		"name": "X", "phone": "1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin team write status = %d", resp.StatusCode)
	}
}

func TestDeviceStatus(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/device", ts.token, nil)
	var body struct {
		State     string `json:"state"`
		QRPending bool   `json:"qr_pending"`
	}
	decodeBody(t, resp, &body)
	if body.State != string(status.Booting) {
		t.Errorf("state = %q", body.State)
	}

	resp = ts.do(t, "GET", "/api/device/qr.png", ts.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("qr without pairing status = %d", resp.StatusCode)
	}
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/me", ts.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	decodeBody(t, resp, &me)
	if me.Email != "root@acme.test" || me.Role != auth.RoleAdmin {
		t.Errorf("me = %+v", me)
	}
}

func TestConvertLeadEndpoint(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.db.UpsertLead(&store.Lead{ID: "l1", Name: "Bob", Phone: "300", Source: "webform"}); err != nil {
		t.Fatal(err)
	}

	resp := ts.do(t, "POST", "/api/leads/l1/convert", ts.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("convert status = %d", resp.StatusCode)
	}
	var client clientJSON
	decodeBody(t, resp, &client)
	if client.ID != "l1" || client.Phone != "300" {
		t.Errorf("client = %+v", client)
	}

	resp = ts.do(t, "GET", "/api/leads/l1", ts.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("lead after convert status = %d", resp.StatusCode)
	}
	resp = ts.do(t, "POST", "/api/leads/l1/convert", ts.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second convert status = %d", resp.StatusCode)
	}
}

func TestDeviceSyncWithoutDevice(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/device/sync/start", ts.token, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sync start status = %d, want 503", resp.StatusCode)
	}
	resp = ts.do(t, "POST", "/api/device/sync/stop", ts.token, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sync stop status = %d, want 503", resp.StatusCode)
	}
}

func TestReportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.db.UpsertClient(&store.Client{ID: "cl1", Name: "A", Phone: "1"}); err != nil {
		t.Fatal(err)
	}

	resp := ts.do(t, "GET", "/api/report", ts.token, nil)
	var report map[string]int64
	decodeBody(t, resp, &report)
	if report["clients"] != 1 {
		t.Errorf("report = %+v", report)
	}
}
