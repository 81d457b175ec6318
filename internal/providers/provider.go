// Package providers defines the pluggable verification framework: a provider
// declares a stamp type and checks whether an address satisfies the condition
// behind it. Providers are grouped by platform so that types sharing expensive
// upstream lookups can reuse one per-request Context.
package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stampd/contracts/credential"
	dErrors "stampd/pkg/domain-errors"
)

// ParamSeparator splits a parameterized type identifier, as in "AllowList#grants".
const ParamSeparator = "#"

// VerifiedPayload is the outcome of one provider verification.
type VerifiedPayload struct {
	Valid bool

	// Record carries the provider-specific facts that feed the nullifier.
	// PII, if any, goes under the "pii" key and is folded into the record
	// type before hashing.
	Record map[string]string

	// Errors explains a Valid=false outcome to the caller.
	Errors []string

	// ExpiresInSeconds overrides the default credential lifetime when the
	// verified condition has an externally imposed expiry. Zero means default.
	ExpiresInSeconds int64
}

// Request is one provider invocation. Type is the full requested identifier
// including any parameter; Param is the portion after the separator, empty
// for plain types.
type Request struct {
	Type    string
	Param   string
	Payload credential.RequestPayload
}

// Provider is the capability interface all stamp conditions implement.
//
// Verify inspects the payload, consults the shared Context for memoized
// upstream lookups, and reports whether the condition holds. Returning an
// error marks the provider's upstream as failed; returning Valid=false is a
// negative answer, not a failure.
type Provider interface {
	Type() string
	Verify(ctx context.Context, req Request, pctx *Context) (*VerifiedPayload, error)
}

// Registry resolves requested type identifiers to provider instances and
// records which platform each type belongs to.
//
// Not safe for concurrent mutation; register everything during startup.
type Registry struct {
	providers map[string]Provider
	platforms map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		platforms: make(map[string]string),
	}
}

// Register adds a provider under the given platform. Parameterized families
// register their base type once and receive the parameter per request.
func (r *Registry) Register(platform string, p Provider) error {
	t := p.Type()
	if _, exists := r.providers[t]; exists {
		return fmt.Errorf("provider %s already registered", t)
	}
	r.providers[t] = p
	r.platforms[t] = platform
	return nil
}

// MustRegister panics on duplicate registration. Startup-time convenience.
func (r *Registry) MustRegister(platform string, p Provider) {
	if err := r.Register(platform, p); err != nil {
		panic(err)
	}
}

// Resolve maps a requested type identifier to a provider instance. A
// parameterized identifier resolves against its base type, with the parameter
// carried separately.
func (r *Registry) Resolve(requested string) (Provider, Request, error) {
	if p, ok := r.providers[requested]; ok {
		return p, Request{Type: requested}, nil
	}

	if base, param, found := strings.Cut(requested, ParamSeparator); found {
		if p, ok := r.providers[base]; ok {
			return p, Request{Type: requested, Param: param}, nil
		}
	}

	return nil, Request{}, dErrors.New(dErrors.CodeUnknownProvider,
		fmt.Sprintf("no provider registered for type %q", requested))
}

// PlatformOf returns the platform a requested type belongs to, or "generic"
// for types the registry does not know. Unknown types still flow through the
// engine so they surface as per-type failures.
func (r *Registry) PlatformOf(requested string) string {
	if platform, ok := r.platforms[requested]; ok {
		return platform
	}
	if base, _, found := strings.Cut(requested, ParamSeparator); found {
		if platform, ok := r.platforms[base]; ok {
			return platform
		}
	}
	return "generic"
}

// Types returns all registered base types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
