package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ballotrelay/ballotrelay/api"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/relayer"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	ledger  *ledger.Ledger
	relayer *relayer.Relayer
	api     *api.API
	mu      sync.Mutex
	cancel  context.CancelFunc
	host    string
	port    int
}

// NewAPI creates a new APIService instance serving the given ledger and
// relayer queue.
func NewAPI(ldg *ledger.Ledger, rly *relayer.Relayer, host string, port int) *APIService {
	return &APIService{
		ledger:  ldg,
		relayer: rly,
		host:    host,
		port:    port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	_, as.cancel = context.WithCancel(ctx)

	// Create API instance over the shared ledger and relayer
	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:    as.host,
		Port:    as.port,
		Ledger:  as.ledger,
		Relayer: as.relayer,
	})
	if err != nil {
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
