package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// VotesEndpoint is the endpoint for enqueueing a signed vote intent
	VotesEndpoint = "/votes"
	// VoteJobEndpoint is the endpoint to track the outcome of an enqueued
	// vote intent
	JobURLParam     = "jobId"
	VoteJobEndpoint = "/votes/{" + JobURLParam + "}"
	// ElectionEndpoint is the endpoint to get the election record with its
	// live tallies
	ElectionEndpoint = "/election"
	// ElectionEventsEndpoint is the endpoint to page through the election
	// event log
	ElectionEventsEndpoint = "/election/events"
	// VoterEndpoint is the endpoint to get the per-voter election view
	VoterURLParam = "address"
	VoterEndpoint = "/election/voters/{" + VoterURLParam + "}"
	// VotingEndEndpoint is the owner endpoint to move the voting deadline
	VotingEndEndpoint = "/election/voting-end"
	// FinalizeEndpoint is the owner endpoint to finalize the winner
	FinalizeEndpoint = "/election/finalize"
	// UpgradeEndpoint is the owner endpoint to authorize a logic upgrade
	UpgradeEndpoint = "/election/upgrade"
	// RelayerEndpoint is the endpoint to get the relayer health and queue
	// depth
	RelayerEndpoint = "/relayer"
)
