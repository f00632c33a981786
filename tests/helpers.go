package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/api/client"
	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/relayer"
	"github.com/ballotrelay/ballotrelay/service"
	"github.com/ballotrelay/ballotrelay/storage"
	"github.com/ballotrelay/ballotrelay/storage/db/metadb"
	"github.com/ballotrelay/ballotrelay/types"
	"github.com/ballotrelay/ballotrelay/util"
)

// toBigInt converts an int64 to a *types.BigInt
func toBigInt(i int64) *types.BigInt {
	bi := new(types.BigInt)
	bi.UnmarshalText([]byte(fmt.Sprintf("%d", i)))
	return bi
}

// NewTestService boots a full node for testing: fresh storage, a ledger
// created from the genesis, a running relayer and the HTTP API on a
// random port.
func NewTestService(t *testing.T, ctx context.Context, genesis *ledger.Genesis, signer *ethereum.SignKeys) (*service.APIService, *storage.Storage) {
	stg := storage.New(metadb.NewTest(t))
	ldg, err := ledger.New(stg, genesis)
	qt.Assert(t, err, qt.IsNil)

	relayerService := service.NewRelayer(stg, ldg, signer)
	qt.Assert(t, relayerService.Start(ctx), qt.IsNil)
	t.Cleanup(relayerService.Stop)

	apiService, err := setupAPI(ctx, ldg, relayerService.Relayer())
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(apiService.Stop)

	return apiService, stg
}

// setupAPI creates and starts a new API server for testing.
// It returns the running service bound to a random port.
func setupAPI(ctx context.Context, ldg *ledger.Ledger, rly *relayer.Relayer) (*service.APIService, error) {
	tmpPort := util.RandomInt(40000, 60000)

	api := service.NewAPI(ldg, rly, "127.0.0.1", tmpPort)
	if err := api.Start(ctx); err != nil {
		return nil, err
	}

	// Wait for the HTTP server to start
	time.Sleep(500 * time.Millisecond)
	return api, nil
}

// NewTestSigner creates and initializes a new ethereum signer for testing.
func NewTestSigner() (*ethereum.SignKeys, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	return signer, nil
}

// NewTestClient creates a new API client for testing.
func NewTestClient(port int) (*client.HTTPclient, error) {
	return client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// waitForJob polls a relay job until it leaves the queued state or the
// timeout expires, and returns its final snapshot.
func waitForJob(c *qt.C, cli *client.HTTPclient, id uuid.UUID) *types.RelayJob {
	deadline := time.Now().Add(10 * time.Second)
	for {
		job, err := cli.Job(id)
		c.Assert(err, qt.IsNil)
		if job.State != types.JobStateQueued || time.Now().After(deadline) {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
}
