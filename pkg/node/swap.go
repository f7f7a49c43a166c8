// Copyright 2025 Certen Protocol
//
// Marketplace Swap Service
// Drives the cross-chain atomic swap from the NFT node: on buy-nft the
// custodian signs a hold transfer pinned to the expected payment receipt,
// then a poller watches Nexus for the receipt and submits the Trigger.
//
// Swap lifecycle: NotInitiated -> HoldInProgress -> WaitingForPayment ->
// TransferInProgress. Transitions are observable via check-payment and
// idempotent: re-buying an in-flight swap returns its current status.

package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/nft"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// SwapStatus is the observable state of one swap.
type SwapStatus string

const (
	SwapNotInitiated       SwapStatus = "NotInitiated"
	SwapHoldInProgress     SwapStatus = "HoldInProgress"
	SwapWaitingForPayment  SwapStatus = "WaitingForPayment"
	SwapTransferInProgress SwapStatus = "TransferInProgress"
)

// BuyRequest is the body of POST /buy-nft.
type BuyRequest struct {
	NftID         nft.NftId     `json:"nft_id"`
	PaymentSender types.Address `json:"payment_sender"`
	NftReceiver   types.Address `json:"nft_receiver"`
}

// SwapService runs marketplace swaps on the NFT node.
type SwapService struct {
	mu    sync.Mutex
	swaps map[common.Hash]*swapState

	node        *AppNode
	machine     *nft.StateMachine
	custodian   *types.Signer
	paymentsURL string
	http        *http.Client
	logger      *log.Logger

	pollInterval time.Duration
}

type swapState struct {
	status     SwapStatus
	commitment common.Hash
	holdTx     common.Hash
	receiver   types.Address
}

// NewSwapService wires the swap service. The custodian signer must own the
// listed NFTs; paymentsURL points at the payments node RPC.
func NewSwapService(node *AppNode, machine *nft.StateMachine, custodian *types.Signer, paymentsURL string, logger *log.Logger) *SwapService {
	if logger == nil {
		logger = log.New(log.Writer(), "[Swap] ", log.LstdFlags)
	}
	return &SwapService{
		swaps:        make(map[common.Hash]*swapState),
		node:         node,
		machine:      machine,
		custodian:    custodian,
		paymentsURL:  paymentsURL,
		http:         &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
		pollInterval: 5 * time.Second,
	}
}

// Status returns the swap status for a token.
func (s *SwapService) Status(id nft.NftId) SwapStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.swaps[id.StateKey()]; ok {
		return st.status
	}
	return SwapNotInitiated
}

// Buy starts a swap: it derives the expected payment receipt, pins its
// hash into a custodian-signed hold transfer and starts the receipt
// poller. Re-invoking for an in-flight swap is a no-op returning the
// current status.
func (s *SwapService) Buy(ctx context.Context, req BuyRequest) (SwapStatus, error) {
	key := req.NftID.StateKey()

	s.mu.Lock()
	if st, ok := s.swaps[key]; ok && st.status != SwapNotInitiated {
		status := st.status
		s.mu.Unlock()
		return status, nil
	}
	s.mu.Unlock()

	listing, ok, err := s.machine.Listing(req.NftID)
	if err != nil {
		return SwapNotInitiated, err
	}
	if !ok {
		return SwapNotInitiated, fmt.Errorf("nft %s is not listed", req.NftID.Hex())
	}

	// The expected receipt fixes the exact payment the custodian will
	// accept: sender, custodian payment address, listed price and the
	// sender's next nonce.
	senderNonce, err := s.paymentsAccountNonce(ctx, req.PaymentSender)
	if err != nil {
		return SwapNotInitiated, fmt.Errorf("resolve payment sender nonce: %w", err)
	}
	expected := payments.ReceiptData{
		From:     req.PaymentSender,
		To:       s.custodian.Address(),
		Amount:   listing.Price,
		CallType: payments.CallTransfer,
		Nonce:    senderNonce + 1,
	}
	commitment := expected.Receipt().Hash()

	holdMsg := nft.Message{
		CallType:         nft.CallTransfer,
		Id:               req.NftID,
		From:             s.custodian.Address(),
		To:               req.NftReceiver,
		FutureCommitment: &commitment,
	}
	holdTx, err := nft.NewTransaction(s.custodian, holdMsg)
	if err != nil {
		return SwapNotInitiated, fmt.Errorf("sign hold transfer: %w", err)
	}
	holdHash := s.node.AddToTxPool(holdTx)

	s.mu.Lock()
	s.swaps[key] = &swapState{
		status:     SwapHoldInProgress,
		commitment: commitment,
		holdTx:     holdHash,
		receiver:   req.NftReceiver,
	}
	s.mu.Unlock()

	s.logger.Printf("swap started for nft %s: commitment %x", req.NftID.Hex(), commitment)
	go s.watch(ctx, req.NftID)
	return SwapHoldInProgress, nil
}

// watch advances one swap: waits for the hold to finalize, then polls
// Nexus for the expected receipt and submits the Trigger when it appears.
func (s *SwapService) watch(ctx context.Context, id nft.NftId) {
	key := id.StateKey()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}

		s.mu.Lock()
		st, ok := s.swaps[key]
		if !ok {
			s.mu.Unlock()
			return
		}
		status := st.status
		commitment := st.commitment
		holdTx := st.holdTx
		s.mu.Unlock()

		switch status {
		case SwapHoldInProgress:
			txStatus, err := s.node.GetTxStatus(holdTx)
			if err != nil {
				s.logger.Printf("swap %s: hold status: %v", id.Hex(), err)
				continue
			}
			switch txStatus {
			case "finalized":
				s.setStatus(key, SwapWaitingForPayment)
			case "dropped":
				s.logger.Printf("swap %s: hold transfer dropped, aborting", id.Hex())
				s.clear(key)
				return
			}

		case SwapWaitingForPayment:
			rp, err := s.node.Nexus().Receipt(ctx, commitment)
			if err != nil {
				s.logger.Printf("swap %s: receipt poll: %v", id.Hex(), err)
				continue
			}
			if rp.Receipt.IsZero() {
				continue // not aggregated yet
			}

			triggerMsg := nft.Message{
				CallType: nft.CallTrigger,
				Id:       id,
				From:     s.custodian.Address(),
				Proof:    &rp.Proof,
				Receipt:  &rp.Receipt,
			}
			triggerTx, err := nft.NewTransaction(s.custodian, triggerMsg)
			if err != nil {
				s.logger.Printf("swap %s: sign trigger: %v", id.Hex(), err)
				continue
			}
			s.node.AddToTxPool(triggerTx)
			s.setStatus(key, SwapTransferInProgress)
			s.logger.Printf("swap %s: trigger submitted", id.Hex())
			return
		default:
			return
		}
	}
}

func (s *SwapService) setStatus(key common.Hash, status SwapStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.swaps[key]; ok {
		st.status = status
	}
}

func (s *SwapService) clear(key common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.swaps, key)
}

// paymentsAccountNonce reads the payment sender's account off the payments
// node state endpoint.
func (s *SwapService) paymentsAccountNonce(ctx context.Context, sender types.Address) (uint64, error) {
	url := fmt.Sprintf("%s/state/%s", s.paymentsURL, sender.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("payments state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("payments state status %d", resp.StatusCode)
	}
	var out struct {
		Leaf payments.Account `json:"leaf"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("payments state decode: %w", err)
	}
	return out.Leaf.Nonce, nil
}
