// Package client implements a typed HTTP client for the ballot relay API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/api"
	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/relayer"
	"github.com/ballotrelay/ballotrelay/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost
	// HTTPDELETE is the method string used for calling
	HTTPDELETE = http.MethodDelete

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
)

// HTTPclient is the ballot relay API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New connects to the API host, checks it responds to ping and returns the handle
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return c, nil
}

// SetHostAddr configures the host address of the API server.
func (c *HTTPclient) SetHostAddr(host *url.URL) error {
	c.host = host
	data, status, err := c.Request(HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if c.c.Transport != nil {
		if _, ok := c.c.Transport.(*http.Transport); ok {
			c.c.Transport.(*http.Transport).ResponseHeaderTimeout = d
		}
	}
}

// Vote enqueues a signed vote intent and returns its relay job handle.
func (c *HTTPclient) Vote(intent *types.VoteIntent, signature types.HexBytes) (*types.RelayJob, error) {
	job := &types.RelayJob{}
	if err := c.request(job, HTTPPOST,
		&api.VoteRequest{Intent: intent, Signature: signature}, nil, api.VotesEndpoint); err != nil {
		return nil, err
	}
	return job, nil
}

// Job fetches the current state of a relay job.
func (c *HTTPclient) Job(id uuid.UUID) (*types.RelayJob, error) {
	job := &types.RelayJob{}
	if err := c.request(job, HTTPGET, nil, nil, api.VotesEndpoint, id.String()); err != nil {
		return nil, err
	}
	return job, nil
}

// Election fetches the election record with its live tallies.
func (c *HTTPclient) Election() (*api.ElectionResponse, error) {
	election := &api.ElectionResponse{}
	if err := c.request(election, HTTPGET, nil, nil, api.ElectionEndpoint); err != nil {
		return nil, err
	}
	return election, nil
}

// Events fetches one page of the election event log.
func (c *HTTPclient) Events(fromSeq uint64, max int) (*api.EventsResponse, error) {
	events := &api.EventsResponse{}
	params := []string{"fromSeq", fmt.Sprintf("%d", fromSeq), "max", fmt.Sprintf("%d", max)}
	if err := c.request(events, HTTPGET, nil, params, api.ElectionEventsEndpoint); err != nil {
		return nil, err
	}
	return events, nil
}

// VoterState fetches the per-voter election view.
func (c *HTTPclient) VoterState(addr common.Address) (*types.VoterState, error) {
	state := &types.VoterState{}
	if err := c.request(state, HTTPGET, nil, nil, api.ElectionEndpoint, "voters", addr.Hex()); err != nil {
		return nil, err
	}
	return state, nil
}

// RelayerStatus fetches the relayer health report.
func (c *HTTPclient) RelayerStatus() (*relayer.Status, error) {
	status := &relayer.Status{}
	if err := c.request(status, HTTPGET, nil, nil, api.RelayerEndpoint); err != nil {
		return nil, err
	}
	return status, nil
}

// SetVotingEnd signs and submits a voting deadline change as the given
// owner account.
func (c *HTTPclient) SetVotingEnd(owner *ethereum.SignKeys, newEnd int64) (*api.SetVotingEndResponse, error) {
	election, err := c.Election()
	if err != nil {
		return nil, err
	}
	signature, err := owner.SignEthereum(
		ledger.VotingEndMessage(election.ChainID, election.ElectionID, newEnd))
	if err != nil {
		return nil, err
	}
	resp := &api.SetVotingEndResponse{}
	if err := c.request(resp, HTTPPOST,
		&api.SetVotingEndRequest{NewEnd: newEnd, Signature: signature}, nil, api.VotingEndEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Finalize signs and submits the winner finalization as the given owner
// account.
func (c *HTTPclient) Finalize(owner *ethereum.SignKeys) (*api.FinalizeResponse, error) {
	election, err := c.Election()
	if err != nil {
		return nil, err
	}
	signature, err := owner.SignEthereum(
		ledger.FinalizeMessage(election.ChainID, election.ElectionID))
	if err != nil {
		return nil, err
	}
	resp := &api.FinalizeResponse{}
	if err := c.request(resp, HTTPPOST,
		&api.FinalizeRequest{Signature: signature}, nil, api.FinalizeEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Upgrade signs and submits a logic upgrade authorization as the given
// owner account.
func (c *HTTPclient) Upgrade(owner *ethereum.SignKeys, implementation common.Address) error {
	election, err := c.Election()
	if err != nil {
		return err
	}
	signature, err := owner.SignEthereum(
		ledger.UpgradeMessage(election.ChainID, election.ElectionID, implementation))
	if err != nil {
		return err
	}
	return c.request(nil, HTTPPOST,
		&api.UpgradeRequest{Implementation: implementation, Signature: signature}, nil, api.UpgradeEndpoint)
}

// request performs an API call and decodes a 200 response into out. Any
// other status is returned as an error carrying the response body.
func (c *HTTPclient) request(out any, method string, jsonBody any, params []string, urlPath ...string) error {
	data, status, err := c.Request(method, jsonBody, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached.  Returns the response,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	// Marshal the JSON body if provided.
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	// Parse the base host URL
	u, err := url.Parse(c.host.String())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse host URL: %w", err)
	}

	// Join path segments
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Process query parameters from the params slice.
	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	// If length is odd, the last parameter without a pair will be ignored.
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			key := params[i]
			val := params[i+1]
			values.Set(key, val)
		}
		u.RawQuery = values.Encode()
	}

	// Prepare headers
	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	// Log the request details, truncating body if large
	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var resp *http.Response
	for i := 1; i <= c.retries; i++ {
		// Create a fresh request each attempt
		var reqBody io.ReadCloser
		if body != nil {
			reqBody = io.NopCloser(bytes.NewReader(body))
		}
		req, err := http.NewRequest(method, u.String(), reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers

		resp, err = c.c.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// Successfully got a response, break out of the retry loop
		break
	}

	if resp == nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after %d retries", c.retries)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, nil
}
