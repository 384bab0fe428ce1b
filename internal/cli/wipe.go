package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/compose-network/chainplan/configs"
	"github.com/compose-network/chainplan/internal/exec"
	"github.com/compose-network/chainplan/internal/journal"
)

var WipeCMD = &cobra.Command{
	Use:   "wipe <future-id>",
	Short: "Remove a future's recorded state so it can run again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Deployment.Validate(); err != nil {
			return err
		}

		store, err := journal.Open(configs.Values.Deployment.Dir)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := exec.Wipe(store, args[0]); err != nil {
			return err
		}

		slog.Info("future wiped", "future", args[0])
		return nil
	},
}
