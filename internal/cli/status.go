package cli

import (
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/compose-network/chainplan/configs"
	"github.com/compose-network/chainplan/internal/journal"
)

var StatusCMD = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded progress of the deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Deployment.Validate(); err != nil {
			return err
		}

		store, err := journal.Open(configs.Values.Deployment.Dir)
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.Replay()
		if err != nil {
			return err
		}
		if state == nil {
			slog.Info("no deployment recorded yet")
			return nil
		}

		slog.Info("deployment status", "chain", state.ChainID, "futures", len(state.ExecutionStates))

		ids := make([]string, 0, len(state.ExecutionStates))
		for id := range state.ExecutionStates {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			es := state.ExecutionStates[id]
			log := slog.With("future", id, "status", string(es.Status))
			if es.ContractAddress != nil {
				log = log.With("address", es.ContractAddress.Hex())
			}
			if es.Result != nil && es.Result.Error != "" {
				log = log.With("error", es.Result.Error)
			}
			log.Info("future state")
		}

		addresses, err := store.DeployedAddresses()
		if err != nil {
			return err
		}
		for _, id := range ids {
			if address, ok := addresses[id]; ok {
				slog.Info("deployed address", "future", id, "address", address.Hex())
			}
		}
		return nil
	},
}
