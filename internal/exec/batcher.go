package exec

import (
	"fmt"
	"sort"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
)

// Batches splits the plan into waves of futures that can run concurrently.
// Each wave contains only futures whose dependencies are satisfied by earlier
// waves or by already-terminal execution states, so a wave never has an
// internal dependency edge. Futures that already reached a terminal status
// are left out entirely.
func Batches(p *plan.Plan, state *journal.DeploymentState) ([][]string, error) {
	completed := map[string]bool{}
	remaining := map[string]plan.Future{}

	for _, f := range p.AllFutures() {
		if state != nil {
			if es, ok := state.ExecutionStates[f.ID()]; ok && es.Status.Terminal() {
				completed[f.ID()] = true
				continue
			}
		}
		remaining[f.ID()] = f
	}

	var batches [][]string
	for len(remaining) > 0 {
		var batch []string
		for id, f := range remaining {
			ready := true
			for _, dep := range f.Dependencies() {
				if !completed[dep.ID()] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			return nil, fmt.Errorf("dependency cycle detected among %d remaining future(s)", len(remaining))
		}

		// Deterministic order inside a wave keeps runs and logs stable.
		sort.Strings(batch)
		for _, id := range batch {
			completed[id] = true
			delete(remaining, id)
		}
		batches = append(batches, batch)
	}

	return batches, nil
}
