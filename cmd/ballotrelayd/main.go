package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/service"
	"github.com/ballotrelay/ballotrelay/storage"
	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/metadb"
	"github.com/ballotrelay/ballotrelay/types"
)

type config struct {
	dataDir   string
	host      string
	port      int
	logLevel  string
	logOutput string

	electionName string
	candidates   []string
	electionID   uint64
	chainID      uint64
	owner        string
	votingStart  int64
	duration     time.Duration
	fee          int64
	fund         []string

	relayerKey string
}

func main() {
	cfg := &config{}
	rootCmd := &cobra.Command{
		Use:   "ballotrelayd",
		Short: "Gasless voting node: election ledger, relayer queue and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	flags := rootCmd.Flags()
	flags.StringVarP(&cfg.dataDir, "data-dir", "d", "ballotrelay-data", "directory for the persistent database")
	flags.StringVar(&cfg.host, "host", "0.0.0.0", "API bind host")
	flags.IntVarP(&cfg.port, "port", "p", 8080, "API bind port")
	flags.StringVarP(&cfg.logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.logOutput, "log-output", "stdout", "log output (stdout, stderr or filepath)")
	flags.StringVar(&cfg.electionName, "election-name", "", "election name, required on first start")
	flags.StringSliceVar(&cfg.candidates, "candidates", nil, "comma separated candidate names")
	flags.Uint64Var(&cfg.electionID, "election-id", 1, "election identifier bound into every vote intent")
	flags.Uint64Var(&cfg.chainID, "chain-id", 1, "chain identifier of the signature domain")
	flags.StringVar(&cfg.owner, "owner", "", "election owner address, required on first start")
	flags.Int64Var(&cfg.votingStart, "voting-start", 0, "voting window start as unix seconds, 0 means now")
	flags.DurationVar(&cfg.duration, "duration", 7*24*time.Hour, "voting window duration")
	flags.Int64Var(&cfg.fee, "fee", 0, "flat settlement fee debited per ledger operation")
	flags.StringArrayVar(&cfg.fund, "fund", nil, "initial balance as address=amount, repeatable")
	flags.StringVar(&cfg.relayerKey, "relayer-key", "", "relayer private key in hex, generated when empty")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config) error {
	log.Init(cfg.logLevel, cfg.logOutput, nil)

	database, err := metadb.New(db.TypePebble, cfg.dataDir)
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	genesis, err := genesisFromConfig(cfg)
	if err != nil {
		return err
	}
	ldg, err := ledger.New(stg, genesis)
	if err != nil {
		return fmt.Errorf("could not open ledger: %w", err)
	}

	signer := ethereum.NewSignKeys()
	if cfg.relayerKey != "" {
		if err := signer.AddHexKey(cfg.relayerKey); err != nil {
			return fmt.Errorf("could not import relayer key: %w", err)
		}
	} else {
		if err := signer.Generate(); err != nil {
			return fmt.Errorf("could not generate relayer key: %w", err)
		}
		log.Warnw("no relayer key provided, generated a fresh one", "address", signer.AddressString())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayerService := service.NewRelayer(stg, ldg, signer)
	if err := relayerService.Start(ctx); err != nil {
		return fmt.Errorf("could not start relayer: %w", err)
	}
	defer relayerService.Stop()

	apiService := service.NewAPI(ldg, relayerService.Relayer(), cfg.host, cfg.port)
	if err := apiService.Start(ctx); err != nil {
		return fmt.Errorf("could not start API: %w", err)
	}
	defer apiService.Stop()

	log.Infow("node is up",
		"host", cfg.host,
		"port", cfg.port,
		"dataDir", cfg.dataDir,
		"relayer", signer.AddressString())
	<-ctx.Done()
	log.Infow("shutting down")
	return nil
}

// genesisFromConfig builds the election genesis from the command flags.
// Returns nil when no election name is given, which is fine on restarts
// where the stored election resumes.
func genesisFromConfig(cfg *config) (*ledger.Genesis, error) {
	if cfg.electionName == "" {
		return nil, nil
	}
	if !common.IsHexAddress(cfg.owner) {
		return nil, fmt.Errorf("owner %q is not a hex address", cfg.owner)
	}
	votingStart := cfg.votingStart
	if votingStart == 0 {
		votingStart = time.Now().Unix()
	}
	balances := make(map[common.Address]*types.BigInt)
	for _, pair := range cfg.fund {
		addr, amount, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("fund entry %q is not address=amount", pair)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("fund address %q is not a hex address", addr)
		}
		balance := &types.BigInt{}
		if err := balance.UnmarshalText([]byte(amount)); err != nil {
			return nil, fmt.Errorf("fund amount %q: %w", amount, err)
		}
		balances[common.HexToAddress(addr)] = balance
	}
	return &ledger.Genesis{
		Name:          cfg.electionName,
		Candidates:    cfg.candidates,
		ElectionID:    cfg.electionID,
		ChainID:       cfg.chainID,
		Owner:         common.HexToAddress(cfg.owner),
		VotingStart:   votingStart,
		Duration:      cfg.duration,
		SettlementFee: types.NewBigInt(cfg.fee),
		Balances:      balances,
	}, nil
}
