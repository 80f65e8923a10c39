package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/trust"
)

// LocalResolver implements KeyResolver from the pinned trust store.
// It never touches the network.
type LocalResolver struct {
	store trust.Store
}

// NewLocalResolver creates a resolver over store.
func NewLocalResolver(store trust.Store) *LocalResolver {
	return &LocalResolver{store: store}
}

// FetchKeys returns the key set pinned for domain.
func (r *LocalResolver) FetchKeys(_ context.Context, domain string) (*crypto.KeySet, error) {
	set, err := r.store.Get(domain)
	if errors.Is(err, trust.ErrIssuerNotFound) {
		return nil, protocol.NewError(protocol.ErrCodeKeyNotFound, fmt.Sprintf("no pinned keys for %s", domain))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned keys: %w", err)
	}
	return set, nil
}
