package service

import (
	"context"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/relayer"
	"github.com/ballotrelay/ballotrelay/storage"
)

// RelayerService represents a service that handles background vote settlement.
type RelayerService struct {
	relayer *relayer.Relayer
}

// NewRelayer creates a new relayer instance. It will drain the durable intent
// queue in arrival order and settle each vote on the ledger, paying the
// settlement fee from the signer account.
func NewRelayer(stg *storage.Storage, ldg *ledger.Ledger, signer *ethereum.SignKeys) *RelayerService {
	r, err := relayer.New(stg, ldg, signer)
	if err != nil {
		log.Fatalf("failed to create relayer: %v", err)
	}
	return &RelayerService{
		relayer: r,
	}
}

// Relayer returns the wrapped relayer instance.
func (rs *RelayerService) Relayer() *relayer.Relayer {
	return rs.relayer
}

// Start begins the vote settlement service.
func (rs *RelayerService) Start(ctx context.Context) error {
	return rs.relayer.Start(ctx)
}

// Stop halts the vote settlement service.
func (rs *RelayerService) Stop() {
	if err := rs.relayer.Stop(); err != nil {
		log.Warnw("relayer service stopped", "error", err)
	}
}
