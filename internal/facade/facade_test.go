package facade

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnohosten/agentstate/internal/engine"
	"github.com/mnohosten/agentstate/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, err := engine.New(storage.NewMemoryBackend(), engine.Config{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	cfg := DefaultConfig()
	cfg.EnableGraphQL = true
	return New(eng, cfg)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/_health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp healthResponse
	decodeBody(t, rec, &resp)
	if !resp.OK {
		t.Fatalf("expected ok=true, got %+v", resp)
	}
}

func TestMetricsEndpointReflectsCommits(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/txn", beginTransactionRequest{})
	var begin successEnvelope
	decodeBody(t, rec, &begin)
	var beginResult beginTransactionResponse
	json.Unmarshal(begin.Result, &beginResult)

	doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/write", writeRequest{
		Namespace: "ns", AgentID: "agent-1", Key: "mk", Value: 1.0,
	})
	doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/commit", nil)

	rec = doJSON(t, srv, http.MethodGet, "/_metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var snap map[string]interface{}
	decodeBody(t, rec, &snap)
	commits, ok := snap["commits"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected commits map in response, got %+v", snap)
	}
	if commits["succeeded"].(float64) < 1 {
		t.Fatalf("expected at least 1 succeeded commit, got %+v", commits)
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/_version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type successEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/txn", beginTransactionRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("begin: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var begin successEnvelope
	decodeBody(t, rec, &begin)
	var beginResult beginTransactionResponse
	if err := json.Unmarshal(begin.Result, &beginResult); err != nil {
		t.Fatalf("decode begin result: %v", err)
	}
	txnID := beginResult.TxnID
	if txnID == "" {
		t.Fatal("expected non-empty txn_id")
	}

	writeBody := writeRequest{Namespace: "default", AgentID: "agent-1", Key: "k1", Value: map[string]interface{}{"v": float64(42)}}
	rec = doJSON(t, srv, http.MethodPost, "/txn/"+txnID+"/write", writeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("write: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/txn/"+txnID+"/commit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/state/default/agent-1/k1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get state: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var getEnv successEnvelope
	decodeBody(t, rec, &getEnv)
	var rec2 stateRecordResponse
	if err := json.Unmarshal(getEnv.Result, &rec2); err != nil {
		t.Fatalf("decode state result: %v", err)
	}
	if rec2.Version != 1 || rec2.Deleted {
		t.Fatalf("unexpected state record: %+v", rec2)
	}

	// A second commit of the same (already-consumed) txn_id must report
	// TxnNotFound.
	rec = doJSON(t, srv, http.MethodPost, "/txn/"+txnID+"/commit", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double commit, got %d", rec.Code)
	}
}

func TestCommitUnknownTransactionReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/txn/does-not-exist/commit", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListKeysEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for _, key := range []string{"a", "b"} {
		rec := doJSON(t, srv, http.MethodPost, "/txn", beginTransactionRequest{})
		var begin successEnvelope
		decodeBody(t, rec, &begin)
		var beginResult beginTransactionResponse
		json.Unmarshal(begin.Result, &beginResult)

		doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/write", writeRequest{
			Namespace: "ns", AgentID: "agent-1", Key: key, Value: true,
		})
		doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/commit", nil)
	}

	rec := doJSON(t, srv, http.MethodGet, "/keys/ns/agent-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list keys: expected 200, got %d", rec.Code)
	}
	var env successEnvelope
	decodeBody(t, rec, &env)
	var keys []string
	if err := json.Unmarshal(env.Result, &keys); err != nil {
		t.Fatalf("decode keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestGraphQLGetState(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/txn", beginTransactionRequest{})
	var begin successEnvelope
	decodeBody(t, rec, &begin)
	var beginResult beginTransactionResponse
	json.Unmarshal(begin.Result, &beginResult)

	doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/write", writeRequest{
		Namespace: "ns", AgentID: "agent-1", Key: "gk", Value: "hello",
	})
	doJSON(t, srv, http.MethodPost, "/txn/"+beginResult.TxnID+"/commit", nil)

	query := `{"query":"{ getState(namespace: \"ns\", agentId: \"agent-1\", key: \"gk\") { key version deleted } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(query)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("graphql: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
