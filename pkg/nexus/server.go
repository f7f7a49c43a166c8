// Copyright 2025 Certen Protocol
//
// Nexus RPC Server
// HTTP endpoints for batch submission, the current aggregated batch and
// receipt lookups with (non-)inclusion proofs.

package nexus

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// Server exposes the aggregator over HTTP.
type Server struct {
	app    *App
	logger *log.Logger
}

// NewServer creates the Nexus RPC server.
func NewServer(app *App, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[NexusRPC] ", log.LstdFlags)
	}
	return &Server{app: app, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit-batch", s.handleSubmitBatch)
	mux.HandleFunc("/current-batch", s.handleCurrentBatch)
	mux.HandleFunc("/receipt", s.handleReceipt)
	return mux
}

// handleSubmitBatch handles POST /submit-batch.
func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var param types.SubmitProofParam
	if err := json.NewDecoder(r.Body).Decode(&param); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid submission: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.app.SubmitBatch(r.Context(), param); err != nil {
		s.app.Metrics().BatchesRejected.Inc()
		s.logger.Printf("submission rejected: %v", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"result": "batch accepted"})
}

// handleCurrentBatch handles GET /current-batch.
func (s *Server) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.app.CurrentBatch())
}

// receiptResponse pairs a receipt with its proof against the last
// aggregated root.
type receiptResponse struct {
	Receipt types.TransactionReceipt `json:"receipt"`
	Proof   smt.Proof                `json:"proof"`
}

// handleReceipt handles GET /receipt?key=<hex32>.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("key")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != common.HashLength {
		writeJSONError(w, "key must be 32 hex-encoded bytes", http.StatusBadRequest)
		return
	}

	receipt, proof, err := s.app.GetReceiptWithProof(common.BytesToHash(b))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, receiptResponse{Receipt: receipt, Proof: proof})
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
