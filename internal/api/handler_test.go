package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"harborbank/txstream/internal/account"
	"harborbank/txstream/internal/api"
	"harborbank/txstream/internal/generator"
	"harborbank/txstream/internal/stream"
)

// ─── Test server setup ────────────────────────────────────────────────────────

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := generator.New(account.New(0), generator.WithSeed(1))
	hub := stream.NewHub()
	c := stream.NewController(e, hub)
	t.Cleanup(c.Stop)

	h := api.NewHandler(e, c, hub)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func post(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	resp, err := http.Post(srv.URL+path, "application/json", reader)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	d, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no 'data' key: %v", env)
	}
	return d
}

func decodeError(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	e, ok := env["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no 'error' key: %v", env)
	}
	return e
}

// ─── Single and batch generation ──────────────────────────────────────────────

func TestGetTransaction_ReturnsWellFormedRecord(t *testing.T) {
	srv := newTestServer(t)

	data := decodeData(t, get(t, srv, "/transaction"))
	id, _ := data["transaction_id"].(string)
	if !strings.HasPrefix(id, "TXN_") {
		t.Errorf("transaction_id = %q, expected TXN_ prefix", id)
	}
	if acc, _ := data["account_id"].(string); !strings.HasPrefix(acc, "ACC_") {
		t.Errorf("account_id = %q, expected ACC_ prefix", acc)
	}
	if _, present := data["fraud_type"]; !present {
		t.Error("expected a fraud_type label")
	}
}

func TestBatch_ReturnsExactCountAndTimestamp(t *testing.T) {
	srv := newTestServer(t)

	data := decodeData(t, get(t, srv, "/transactions/10"))
	if count := data["count"].(float64); count != 10 {
		t.Errorf("count = %v, expected 10", count)
	}
	txns := data["transactions"].([]any)
	if len(txns) != 10 {
		t.Errorf("got %d transactions, expected 10", len(txns))
	}
	if ts, _ := data["timestamp"].(string); ts == "" {
		t.Error("expected a response-level timestamp")
	}
}

func TestBatch_RejectsOutOfRangeCounts(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/transactions/0", "/transactions/1001", "/transactions/-3", "/transactions/abc"} {
		resp := get(t, srv, path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s: status %d, expected 400", path, resp.StatusCode)
		}
		if code := decodeError(t, resp)["code"]; code != "INVALID_REQUEST" {
			t.Errorf("GET %s: error code %v, expected INVALID_REQUEST", path, code)
		}
	}
}

// ─── Configuration endpoints ──────────────────────────────────────────────────

func TestConfig_RoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/config", map[string]any{
		"frequency_seconds":    2.5,
		"fraud_injection_rate": 0.2,
		"batch_size":           25,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, expected 200", resp.StatusCode)
	}
	resp.Body.Close()

	data := decodeData(t, get(t, srv, "/config"))
	if data["frequency_seconds"].(float64) != 2.5 ||
		data["fraud_injection_rate"].(float64) != 0.2 ||
		data["batch_size"].(float64) != 25 {
		t.Errorf("config did not round-trip: %v", data)
	}
}

func TestConfig_InvalidUpdateRejectedAndPriorPreserved(t *testing.T) {
	srv := newTestServer(t)
	before := decodeData(t, get(t, srv, "/config"))

	invalid := []map[string]any{
		{"fraud_injection_rate": 1.5},
		{"frequency_seconds": 0},
		{"batch_size": 0},
		{"batch_size": 1001},
	}
	for _, body := range invalid {
		resp := post(t, srv, "/config", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST /config %v: status %d, expected 400", body, resp.StatusCode)
		}
		if code := decodeError(t, resp)["code"]; code != "INVALID_CONFIG" {
			t.Errorf("POST /config %v: error code %v, expected INVALID_CONFIG", body, code)
		}
	}

	after := decodeData(t, get(t, srv, "/config"))
	for k, v := range before {
		if after[k] != v {
			t.Errorf("config field %s changed from %v to %v after rejected updates", k, v, after[k])
		}
	}
}

func TestConfig_PartialUpdate(t *testing.T) {
	srv := newTestServer(t)
	before := decodeData(t, get(t, srv, "/config"))

	resp := post(t, srv, "/config", map[string]any{"batch_size": 100})
	resp.Body.Close()

	after := decodeData(t, get(t, srv, "/config"))
	if after["batch_size"].(float64) != 100 {
		t.Errorf("batch_size = %v, expected 100", after["batch_size"])
	}
	if after["frequency_seconds"] != before["frequency_seconds"] {
		t.Error("frequency_seconds changed by an unrelated update")
	}
}

func TestConfig_RepeatedGetsIdentical(t *testing.T) {
	srv := newTestServer(t)
	a := decodeData(t, get(t, srv, "/config"))
	b := decodeData(t, get(t, srv, "/config"))
	for k := range a {
		if a[k] != b[k] {
			t.Errorf("config field %s differs between reads: %v vs %v", k, a[k], b[k])
		}
	}
}

// ─── Streaming control ────────────────────────────────────────────────────────

func TestStartStop_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	data := decodeData(t, post(t, srv, "/start", nil))
	if data["streaming"] != true {
		t.Error("start: expected streaming=true")
	}

	status := decodeData(t, get(t, srv, "/status"))
	if status["streaming"] != true {
		t.Error("status: expected streaming=true after start")
	}

	data = decodeData(t, post(t, srv, "/stop", nil))
	if data["streaming"] != false {
		t.Error("stop: expected streaming=false")
	}

	// Stopping again is a harmless no-op.
	data = decodeData(t, post(t, srv, "/stop", nil))
	if data["streaming"] != false {
		t.Error("second stop: expected streaming=false")
	}

	status = decodeData(t, get(t, srv, "/status"))
	if status["streaming"] != false {
		t.Error("status: expected streaming=false after stop")
	}
}

func TestStatus_TracksGeneration(t *testing.T) {
	srv := newTestServer(t)

	get(t, srv, "/transactions/5").Body.Close()

	status := decodeData(t, get(t, srv, "/status"))
	if status["transactions_generated"].(float64) < 5 {
		t.Errorf("transactions_generated = %v, expected at least 5", status["transactions_generated"])
	}
	if status["active_accounts"].(float64) < 1 {
		t.Errorf("active_accounts = %v, expected at least 1", status["active_accounts"])
	}
}

// ─── SSE stream ───────────────────────────────────────────────────────────────

func TestStream_DeliversBatchEvents(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/config", map[string]any{"frequency_seconds": 0.01, "batch_size": 3})
	resp.Body.Close()
	post(t, srv, "/start", nil).Body.Close()
	defer func() { post(t, srv, "/stop", nil).Body.Close() }()

	client := &http.Client{Timeout: 5 * time.Second}
	streamResp, err := client.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer streamResp.Body.Close()

	if ct := streamResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, expected text/event-stream", ct)
	}

	scanner := bufio.NewScanner(streamResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Timestamp    string           `json:"timestamp"`
			Transactions []map[string]any `json:"transactions"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if len(ev.Transactions) != 3 {
			t.Fatalf("event carried %d transactions, expected 3", len(ev.Transactions))
		}
		if ev.Timestamp == "" {
			t.Fatal("event missing timestamp")
		}
		return // one well-formed event is enough
	}
	t.Fatalf("no event received: %v", scanner.Err())
}

// ─── Service meta ─────────────────────────────────────────────────────────────

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t)

	health := decodeData(t, get(t, srv, "/health"))
	if health["status"] != "ok" {
		t.Errorf("health status = %v", health["status"])
	}

	root := decodeData(t, get(t, srv, "/"))
	if root["streaming"] != false {
		t.Error("root: expected streaming=false on boot")
	}
	if _, present := root["config"]; !present {
		t.Error("root: expected embedded config")
	}
}
