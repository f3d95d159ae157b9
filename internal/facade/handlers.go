package facade

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/agentstate/internal/storage"
	"github.com/mnohosten/agentstate/internal/value"
)

type healthResponse struct {
	OK                bool   `json:"ok"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	ActiveTxnCount    int    `json:"active_transaction_count"`
}

// handleHealth round-trips a sentinel key through the engine, rather than
// merely reporting that the process is up, following statehouse-core's
// health_check over the storage trait.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sentinel := storage.RecordID{Namespace: "__health__", AgentID: "__health__", Key: "__ping__"}

	txnID := s.engine.Begin(5 * time.Second)
	if err := s.engine.StageWrite(txnID, sentinel, value.NewBool(true)); err != nil {
		WriteError(w, http.StatusInternalServerError, "BackendIO", err.Error())
		return
	}
	if _, err := s.engine.Commit(txnID); err != nil {
		WriteError(w, http.StatusInternalServerError, "BackendIO", err.Error())
		return
	}
	if _, ok, err := s.engine.GetState(sentinel); err != nil || !ok {
		WriteError(w, http.StatusInternalServerError, "BackendIO", "health round-trip failed")
		return
	}

	WriteJSON(w, http.StatusOK, healthResponse{
		OK:             true,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		ActiveTxnCount: s.engine.ActiveTransactionCount(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"version": s.cfg.BuildVersion})
}

// handleMetrics exposes the engine's counters and timing histograms as
// plain JSON (adapted from the teacher's pkg/metrics.MetricsCollector,
// whose GetMetrics() returned the same shape over the document-DB ops).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Metrics().Snapshot())
}

type beginTransactionRequest struct {
	TimeoutMs int `json:"timeout_ms"`
}

type beginTransactionResponse struct {
	TxnID string `json:"txn_id"`
}

func (s *Server) handleBeginTransaction(w http.ResponseWriter, r *http.Request) {
	var req beginTransactionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "BadRequest", "invalid JSON body")
			return
		}
	}

	var timeout time.Duration
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	txnID := s.engine.Begin(timeout)
	WriteSuccess(w, beginTransactionResponse{TxnID: txnID})
}

type writeRequest struct {
	Namespace string      `json:"namespace"`
	AgentID   string      `json:"agent_id"`
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnId")

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BadRequest", "invalid JSON body")
		return
	}

	v, err := value.FromNative(req.Value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	id := storage.RecordID{Namespace: req.Namespace, AgentID: req.AgentID, Key: req.Key}
	if err := s.engine.StageWrite(txnID, id, v); err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	WriteSuccess(w, nil)
}

type deleteRequest struct {
	Namespace string `json:"namespace"`
	AgentID   string `json:"agent_id"`
	Key       string `json:"key"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnId")

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BadRequest", "invalid JSON body")
		return
	}

	id := storage.RecordID{Namespace: req.Namespace, AgentID: req.AgentID, Key: req.Key}
	if err := s.engine.StageDelete(txnID, id); err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	WriteSuccess(w, nil)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnId")

	commitTs, err := s.engine.Commit(txnID)
	if err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	WriteSuccess(w, map[string]uint64{"commit_ts": commitTs})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnId")
	_ = s.engine.Abort(txnID)
	WriteSuccess(w, nil)
}

type stateRecordResponse struct {
	Namespace string      `json:"namespace"`
	AgentID   string      `json:"agent_id"`
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	Version   uint64      `json:"version"`
	CommitTs  uint64      `json:"commit_ts"`
	Deleted   bool        `json:"deleted"`
}

func toStateRecordResponse(rec storage.StateRecord) stateRecordResponse {
	return stateRecordResponse{
		Namespace: rec.ID.Namespace,
		AgentID:   rec.ID.AgentID,
		Key:       rec.ID.Key,
		Value:     rec.Value.ToNative(),
		Version:   rec.Version,
		CommitTs:  rec.CommitTs,
		Deleted:   rec.Deleted,
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := storage.RecordID{
		Namespace: chi.URLParam(r, "namespace"),
		AgentID:   chi.URLParam(r, "agentId"),
		Key:       chi.URLParam(r, "*"),
	}

	rec, ok, err := s.engine.GetState(id)
	if err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "NotFound", "no state for this record")
		return
	}
	WriteSuccess(w, toStateRecordResponse(rec))
}

func (s *Server) handleGetStateAtVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "BadRequest", "invalid version")
		return
	}

	id := storage.RecordID{
		Namespace: chi.URLParam(r, "namespace"),
		AgentID:   chi.URLParam(r, "agentId"),
		Key:       chi.URLParam(r, "*"),
	}

	rec, ok, err := s.engine.GetStateAtVersion(id, version)
	if err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "NotFound", "that version was never written")
		return
	}
	WriteSuccess(w, toStateRecordResponse(rec))
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	agentID := chi.URLParam(r, "agentId")

	keys, err := s.engine.ListKeys(namespace, agentID)
	if err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}
	WriteSuccess(w, keys)
}

func (s *Server) handleScanPrefix(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	agentID := chi.URLParam(r, "agentId")
	prefix := r.URL.Query().Get("prefix")

	recs, err := s.engine.ScanPrefix(namespace, agentID, prefix)
	if err != nil {
		status, errType := mapEngineError(err)
		WriteError(w, status, errType, err.Error())
		return
	}

	out := make([]stateRecordResponse, len(recs))
	for i, rec := range recs {
		out[i] = toStateRecordResponse(rec)
	}
	WriteSuccess(w, out)
}
