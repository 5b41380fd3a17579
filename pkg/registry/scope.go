package registry

import (
	"context"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/transport"
)

// Scope is the ambient context of an operation call.
type Scope struct {
	// State and Position are the application state the call reads. A
	// query invoked with a nil State reads the live state.
	State    eventlog.State
	Position int64

	// Identity is the verified caller, empty when anonymous.
	Identity string

	RequestID     string
	ClientAddress string
}

// ScopeFromContext builds a Scope from the request values the pipeline
// stored in ctx. State is left unset.
func ScopeFromContext(ctx context.Context) *Scope {
	return &Scope{
		Identity:      auth.IdentityFromContext(ctx),
		RequestID:     transport.RequestIDFromContext(ctx),
		ClientAddress: transport.ClientAddressFromContext(ctx),
	}
}
