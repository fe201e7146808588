package feed

import "errors"

// Failure taxonomy for the sync engine. Validation failures never reach the
// network; write/read/proxy failures are logged and become quiet failures at
// the mutation boundary. The settings merge path is the only one that rolls
// local state back on failure.
var (
	ErrUnauthenticated = errors.New("no authenticated user")
	ErrValidation      = errors.New("validation failed")
	ErrRemoteWrite     = errors.New("remote write failed")
	ErrRemoteRead      = errors.New("remote read failed")
	ErrProxy           = errors.New("ai proxy call failed")
)
