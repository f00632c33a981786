package types

const (
	// MaxCandidates is the maximum number of candidates accepted in a
	// single election.
	MaxCandidates = 256
	// MaxCandidateNameLen is the maximum length of a candidate name in
	// bytes.
	MaxCandidateNameLen = 128
)
