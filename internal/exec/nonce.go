package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/journal"
)

// NonceManager hands out strictly increasing nonces per sender. The first
// nonce for a sender is the maximum of the node's pending count and one past
// the highest nonce the journal has already reserved, so a resumed run never
// reuses a nonce from an interrupted one.
type NonceManager struct {
	client ChainClient

	mu   sync.Mutex
	next map[common.Address]uint64
}

// NewNonceManager seeds the reserved-nonce floor from the journal state.
func NewNonceManager(client ChainClient, state *journal.DeploymentState) *NonceManager {
	next := map[common.Address]uint64{}
	if state != nil {
		for _, es := range state.ExecutionStates {
			for _, ni := range es.NetworkInteractions {
				if ni.Nonce == nil {
					continue
				}
				if reserved := *ni.Nonce + 1; reserved > next[ni.From] {
					next[ni.From] = reserved
				}
			}
		}
	}
	return &NonceManager{client: client, next: next}
}

// Next reserves the next nonce for the sender.
func (m *NonceManager) Next(ctx context.Context, sender common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.client.TransactionCount(ctx, sender, "pending")
	if err != nil {
		return 0, fmt.Errorf("failed to read pending nonce of %s: %w", sender, err)
	}

	nonce := m.next[sender]
	if pending > nonce {
		nonce = pending
	}
	m.next[sender] = nonce + 1
	return nonce, nil
}
