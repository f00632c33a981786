package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/relayer"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, the port and the ledger and relayer instances the
// handlers operate on.
type APIConfig struct {
	Host    string
	Port    int
	Ledger  *ledger.Ledger
	Relayer *relayer.Relayer
}

// API type represents the API HTTP server for the election ledger and its
// relayer queue.
type API struct {
	router  *chi.Mux
	ledger  *ledger.Ledger
	relayer *relayer.Relayer
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	if conf.Relayer == nil {
		return nil, fmt.Errorf("missing relayer instance")
	}
	a := &API{
		ledger:  conf.Ledger,
		relayer: conf.Relayer,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", VoteJobEndpoint, "method", "GET")
	a.router.Get(VoteJobEndpoint, a.voteJob)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", ElectionEventsEndpoint, "method", "GET")
	a.router.Get(ElectionEventsEndpoint, a.electionEvents)
	log.Infow("register handler", "endpoint", VoterEndpoint, "method", "GET")
	a.router.Get(VoterEndpoint, a.voter)
	log.Infow("register handler", "endpoint", VotingEndEndpoint, "method", "POST")
	a.router.Post(VotingEndEndpoint, a.setVotingEnd)
	log.Infow("register handler", "endpoint", FinalizeEndpoint, "method", "POST")
	a.router.Post(FinalizeEndpoint, a.finalize)
	log.Infow("register handler", "endpoint", UpgradeEndpoint, "method", "POST")
	a.router.Post(UpgradeEndpoint, a.upgrade)
	log.Infow("register handler", "endpoint", RelayerEndpoint, "method", "GET")
	a.router.Get(RelayerEndpoint, a.relayerStatus)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
