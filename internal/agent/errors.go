package agent

import "errors"

var (
	// ErrConfiguration is returned when the language-model client cannot
	// generate schemas.
	ErrConfiguration = errors.New("agent configuration error")

	// ErrAccess is returned when query-log state is read on an agent that
	// does not track queries.
	ErrAccess = errors.New("no query log registered for this agent")

	// ErrInvalidArgument is returned for missing or mismatched arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTrainJSON is returned when training answers are given without
	// queries or are not valid JSON.
	ErrInvalidTrainJSON = errors.New("invalid training json")

	// ErrMissingVectorStore is returned by Train when the agent has no store.
	ErrMissingVectorStore = errors.New("vector store not configured")
)
