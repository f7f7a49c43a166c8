// Copyright 2025 Certen Protocol
//
// App Node RPC Server
// JSON-over-HTTP endpoints for transaction submission, status, and state
// reads with proofs. The NFT node additionally serves the marketplace
// endpoints when a swap service is attached.

package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/nft"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// Server exposes the app node over HTTP.
type Server struct {
	node   *AppNode
	logger *log.Logger

	// Set on the NFT node only.
	nftMachine *nft.StateMachine
	swap       *SwapService
}

// NewServer creates the RPC server for an app node.
func NewServer(node *AppNode, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[RPC] ", log.LstdFlags)
	}
	return &Server{node: node, logger: logger}
}

// AttachNFTExtensions enables the marketplace endpoints.
func (s *Server) AttachNFTExtensions(machine *nft.StateMachine, swap *SwapService) {
	s.nftMachine = machine
	s.swap = swap
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tx", s.handleSubmitTx)
	mux.HandleFunc("/tx_status", s.handleTxStatus)
	mux.HandleFunc("/state/", s.handleState)
	mux.HandleFunc("/batch/", s.handleBatchHeader)

	if s.nftMachine != nil {
		mux.HandleFunc("/listed-nfts", s.handleListedNfts)
	}
	if s.swap != nil {
		mux.HandleFunc("/buy-nft", s.handleBuyNft)
		mux.HandleFunc("/check-payment/", s.handleCheckPayment)
	}
	return mux
}

// handleSubmitTx handles POST /tx.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid transaction: %v", err), http.StatusBadRequest)
		return
	}
	if len(tx.Signature) != types.SignatureLength {
		writeJSONError(w, "signature must be 64 bytes", http.StatusBadRequest)
		return
	}

	hash := s.node.AddToTxPool(tx)
	writeJSON(w, map[string]string{
		"result": "transaction added to pool",
		"hash":   hash.Hex(),
	})
}

// handleTxStatus handles POST /tx_status with a hex hash body.
func (s *Server) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hexHash string
	if err := json.NewDecoder(r.Body).Decode(&hexHash); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid hash: %v", err), http.StatusBadRequest)
		return
	}
	hash, err := parseHash(hexHash)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := s.node.GetTxStatus(hash)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": status})
}

// handleState handles GET /state/<hex-key>.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key, err := parseHash(strings.TrimPrefix(r.URL.Path, "/state/"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	leaf, proof, err := s.node.GetStateWithProof(key)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"leaf": leaf, "proof": proof})
}

// handleBatchHeader handles GET /batch/<number>.
func (s *Server) handleBatchHeader(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var number uint64
	if _, err := fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/batch/"), "%d", &number); err != nil {
		writeJSONError(w, "invalid batch number", http.StatusBadRequest)
		return
	}

	header, found, err := s.node.BatchHeaderByNumber(number)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		writeJSONError(w, "batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, header)
}

// handleListedNfts handles GET /listed-nfts.
func (s *Server) handleListedNfts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listed, err := s.nftMachine.ListedNfts()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if listed == nil {
		listed = []nft.Nft{}
	}
	writeJSON(w, listed)
}

// handleBuyNft handles POST /buy-nft.
func (s *Server) handleBuyNft(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid buy request: %v", err), http.StatusBadRequest)
		return
	}

	status, err := s.swap.Buy(r.Context(), req)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": string(status)})
}

// handleCheckPayment handles GET /check-payment/<id>.
func (s *Server) handleCheckPayment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var id nft.NftId
	raw := strings.TrimPrefix(r.URL.Path, "/check-payment/")
	if err := id.SetFromDecimal(raw); err != nil {
		if err := id.SetFromHex(raw); err != nil {
			writeJSONError(w, "invalid nft id", http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, map[string]string{"status": string(s.swap.Status(id))})
}

func parseHash(s string) (common.Hash, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("key must be 32 hex-encoded bytes")
	}
	return common.BytesToHash(b), nil
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
