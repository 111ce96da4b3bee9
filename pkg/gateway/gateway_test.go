package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peergramhq/peergram/pkg/app"
	"github.com/peergramhq/peergram/pkg/ledger"
	"github.com/peergramhq/peergram/pkg/logging"
	"github.com/peergramhq/peergram/pkg/state"
)

type fakeProvider struct {
	accounts []string
	network  string
}

func (p *fakeProvider) Accounts(ctx context.Context) ([]string, error) { return p.accounts, nil }
func (p *fakeProvider) NetworkID(ctx context.Context) (string, error)  { return p.network, nil }

type fakeRegistry struct {
	entries    map[uint64]state.Entry
	count      uint64
	registered []string
	tips       []uint64
}

func (r *fakeRegistry) Count(ctx context.Context) (uint64, error) { return r.count, nil }

func (r *fakeRegistry) EntryAt(ctx context.Context, id uint64) (state.Entry, error) {
	return r.entries[id], nil
}

func (r *fakeRegistry) Register(ctx context.Context, contentHash, description string) (ledger.TxHandle, error) {
	r.registered = append(r.registered, contentHash)
	return ledger.TxHandle{Hash: "0xregistered"}, nil
}

func (r *fakeRegistry) Tip(ctx context.Context, id uint64, amount *big.Int) (ledger.TxHandle, error) {
	r.tips = append(r.tips, id)
	return ledger.TxHandle{Hash: "0xtipped"}, nil
}

type fakeStorer struct {
	content map[string][]byte
}

func (s *fakeStorer) Store(ctx context.Context, data []byte, name string) (string, error) {
	return "QmStored", nil
}

func (s *fakeStorer) Get(ctx context.Context, contentID string) (io.ReadCloser, error) {
	data, ok := s.content[contentID]
	if !ok {
		return nil, errors.New("content not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App, *fakeRegistry) {
	t.Helper()

	registry := &fakeRegistry{
		count: 2,
		entries: map[uint64]state.Entry{
			1: {ID: 1, ContentHash: "QmA", TipAmount: big.NewInt(5)},
			2: {ID: 2, ContentHash: "QmB", TipAmount: big.NewInt(20)},
		},
	}

	a, err := app.New(app.Options{
		Provider: &fakeProvider{accounts: []string{"0xme"}, network: "1"},
		ResolveRegistry: func(network, identity string) (app.Registry, bool, error) {
			return registry, true, nil
		},
		Storage: &fakeStorer{content: map[string][]byte{"QmA": []byte("stored bytes")}},
		Store:   state.NewStore(),
		Logger:  logging.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start app: %v", err)
	}

	g, err := New(a, "127.0.0.1:0", logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}

	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)
	return srv, a, registry
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]any
	if code := getJSON(t, srv.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body)
	}
}

func TestStateEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var snap state.Snapshot
	if code := getJSON(t, srv.URL+"/v1/state", &snap); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if snap.Identity != "0xme" || snap.Network != "1" {
		t.Errorf("Unexpected identity/network: %q %q", snap.Identity, snap.Network)
	}
	if snap.Busy {
		t.Error("Expected idle state")
	}
	if !snap.RegistryAvailable {
		t.Error("Expected registry available")
	}
}

func TestEntriesEndpoint_Ranked(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body struct {
		Count   int           `json:"count"`
		Entries []state.Entry `json:"entries"`
	}
	if code := getJSON(t, srv.URL+"/v1/entries", &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body.Count != 2 {
		t.Fatalf("Expected 2 entries, got %d", body.Count)
	}
	// Descending by tip: entry 2 (tip 20) before entry 1 (tip 5)
	if body.Entries[0].ID != 2 || body.Entries[1].ID != 1 {
		t.Errorf("Expected order [2, 1], got [%d, %d]", body.Entries[0].ID, body.Entries[1].ID)
	}
}

func uploadMedia(t *testing.T, url string, payload []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("media", "cat.jpg")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(url+"/v1/media", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Failed to upload: %v", err)
	}
	return resp
}

func TestMediaUpload(t *testing.T) {
	srv, a, _ := newTestServer(t)

	resp := uploadMedia(t, srv.URL, []byte("jpeg bytes"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	payload, seq := a.Store().StagedPayload()
	if string(payload) != "jpeg bytes" {
		t.Errorf("Expected payload staged, got %q", payload)
	}
	if seq != 1 {
		t.Errorf("Expected staging seq 1, got %d", seq)
	}
}

func TestMediaUpload_MissingFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()

	resp, err := http.Post(srv.URL+"/v1/media", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Failed to POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestMediaFetch(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/media/QmA")
	if err != nil {
		t.Fatalf("Failed to GET media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected octet-stream, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "stored bytes" {
		t.Errorf("Expected stored content, got %q", body)
	}
}

func TestMediaFetch_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/media/QmMissing")
	if err != nil {
		t.Fatalf("Failed to GET media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("Expected an error status for unknown content")
	}
}

func TestPublishFlow(t *testing.T) {
	srv, _, registry := newTestServer(t)

	resp := uploadMedia(t, srv.URL, []byte("jpeg bytes"))
	resp.Body.Close()

	var body map[string]any
	code := postJSON(t, srv.URL+"/v1/publish", `{"description":"a cat"}`, &body)
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%v)", code, body)
	}
	if body["tx"] != "0xregistered" {
		t.Errorf("Expected tx hash, got %v", body)
	}
	if len(registry.registered) != 1 || registry.registered[0] != "QmStored" {
		t.Errorf("Expected content hash registered, got %v", registry.registered)
	}
}

func TestPublish_WithoutStagedPayload(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code := postJSON(t, srv.URL+"/v1/publish", `{"description":"nothing"}`, nil)
	if code != http.StatusConflict {
		t.Errorf("Expected 409 without staged payload, got %d", code)
	}
}

func TestTipEndpoint(t *testing.T) {
	srv, _, registry := newTestServer(t)

	var body map[string]any
	code := postJSON(t, srv.URL+"/v1/entries/2/tip", `{"amount":"100"}`, &body)
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%v)", code, body)
	}
	if len(registry.tips) != 1 || registry.tips[0] != 2 {
		t.Errorf("Expected tip for entry 2, got %v", registry.tips)
	}
}

func TestTipEndpoint_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"bad_id", "/v1/entries/abc/tip", `{"amount":"100"}`},
		{"bad_amount", "/v1/entries/1/tip", `{"amount":"not-a-number"}`},
		{"zero_amount", "/v1/entries/1/tip", `{"amount":"0"}`},
		{"bad_json", "/v1/entries/1/tip", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := postJSON(t, srv.URL+tc.path, tc.body, nil); code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", code)
			}
		})
	}
}

func TestLedgerOpsUnavailableWithoutRegistry(t *testing.T) {
	a, err := app.New(app.Options{
		Storage: &fakeStorer{},
		Store:   state.NewStore(),
		Logger:  logging.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start app: %v", err)
	}

	g, err := New(a, "127.0.0.1:0", logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	if code := postJSON(t, srv.URL+"/v1/entries/1/tip", `{"amount":"1"}`, nil); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without registry, got %d", code)
	}
	if code := postJSON(t, srv.URL+"/v1/publish", `{"description":"x"}`, nil); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without registry, got %d", code)
	}
}

func TestReloadEndpoint(t *testing.T) {
	srv, _, registry := newTestServer(t)

	// A new entry appears on the ledger
	registry.count = 3
	registry.entries[3] = state.Entry{ID: 3, TipAmount: big.NewInt(50)}

	var body map[string]any
	if code := postJSON(t, srv.URL+"/v1/catalog/reload", `{}`, &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", code, body)
	}
	if body["entries"].(float64) != 3 {
		t.Errorf("Expected 3 entries after reload, got %v", body["entries"])
	}
}

func TestStateWebsocketStream(t *testing.T) {
	srv, a, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/state/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Initial snapshot arrives immediately
	var snap state.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("Failed to read initial snapshot: %v", err)
	}
	if snap.Identity != "0xme" {
		t.Errorf("Expected identity in initial snapshot, got %q", snap.Identity)
	}

	// A state mutation produces a fresh snapshot frame
	a.Store().RecordAdvisory("something happened")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for advisory to appear in stream")
		}
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("Failed to read snapshot frame: %v", err)
		}
		if len(snap.Advisories) > 0 {
			break
		}
	}
	if snap.Advisories[len(snap.Advisories)-1] != "something happened" {
		t.Errorf("Expected advisory in snapshot, got %v", snap.Advisories)
	}
}
