// Package cli implements the deployment commands: deploy, status and wipe.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/compose-network/chainplan/configs"
	"github.com/compose-network/chainplan/internal/artifact"
	"github.com/compose-network/chainplan/internal/exec"
	"github.com/compose-network/chainplan/internal/fsjson"
	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
	"github.com/compose-network/chainplan/internal/rpc"
)

var (
	planPath       string
	parametersPath string
)

var DeployCMD = &cobra.Command{
	Use:   "deploy",
	Short: "Execute a deployment plan against the configured chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting deploy command, validating config")
		if err := validateConfig(); err != nil {
			return err
		}

		p, err := plan.LoadFile(planPath)
		if err != nil {
			return err
		}

		params := plan.DeploymentParameters{}
		if parametersPath != "" {
			if params, err = plan.LoadParameters(parametersPath); err != nil {
				return err
			}
		}

		return runDeploy(cmd.Context(), p, params)
	},
}

func init() {
	DeployCMD.Flags().StringVar(&planPath, "plan", "", "Path to the YAML plan file")
	DeployCMD.Flags().StringVar(&parametersPath, "parameters", "", "Path to a JSON or YAML parameters file")
	_ = DeployCMD.MarkFlagRequired("plan")
}

func validateConfig() error {
	if err := configs.Values.Network.Validate(); err != nil {
		return err
	}
	return configs.Values.Deployment.Validate()
}

func runDeploy(ctx context.Context, p *plan.Plan, params plan.DeploymentParameters) error {
	deployer, store, client, err := buildDeployer(ctx, params)
	if err != nil {
		return err
	}
	defer store.Close()
	defer client.Close()

	result, err := deployer.Deploy(ctx, p)
	if err != nil {
		return err
	}

	return reportResult(result)
}

// buildDeployer wires the journal store, chain client and deployer from the
// loaded configuration.
func buildDeployer(ctx context.Context, params plan.DeploymentParameters) (*exec.Deployer, *journal.Store, *rpc.Client, error) {
	cfg := configs.Values

	store, err := journal.Open(cfg.Deployment.Dir)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := rpc.Dial(ctx, cfg.Network.RPCURL, rpc.Config{
		GasPrice:             configs.WeiAmount(cfg.Network.GasPrice),
		MaxPriorityFeePerGas: configs.WeiAmount(cfg.Network.MaxPriorityFeePerGas),
		MaxFeePerGasLimit:    configs.WeiAmount(cfg.Network.MaxFeePerGasLimit),
		LegacyFeeChains:      cfg.Network.LegacyFeeChains,
		BNBStyleChains:       cfg.Network.BNBStyleChains,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	strategy, err := exec.NewStrategy(cfg.Deployment.Strategy, cfg.Deployment.StrategyConfig)
	if err != nil {
		store.Close()
		client.Close()
		return nil, nil, nil, err
	}

	var defaultSender common.Address
	if raw := cfg.Deployment.DefaultSender; raw != "" {
		if !common.IsHexAddress(raw) {
			store.Close()
			client.Close()
			return nil, nil, nil, fmt.Errorf("deployment.default-sender is not a valid address: %q", raw)
		}
		defaultSender = common.HexToAddress(raw)
	}

	artifacts := artifact.NewStore(cfg.Deployment.ArtifactsDir, fsjson.New())
	deployer := exec.NewDeployer(store, client, artifacts, exec.Config{
		Parameters:            params,
		DefaultSender:         defaultSender,
		Strategy:              strategy,
		RequiredConfirmations: cfg.Network.RequiredConfirmations,
		BlockPollingInterval:  cfg.Deployment.BlockPollingInterval,
		TimeBeforeBumpingFees: cfg.Deployment.TimeBeforeBumpingFees,
		MaxFeeBumps:           cfg.Deployment.MaxFeeBumps,
	}, logSink)

	return deployer, store, client, nil
}

// logSink reports execution progress through the structured logger.
func logSink(e exec.Event) {
	log := slog.With("event", string(e.Type))
	switch e.Type {
	case exec.EventRunStart:
		log.Info("deployment run started", "run", e.RunID)
	case exec.EventBatchStart:
		log.Info("executing batch", "batch", e.Batch)
	case exec.EventFutureStart:
		log.Info("future started", "future", e.FutureID)
	case exec.EventFutureComplete:
		log.Info("future finished", "future", e.FutureID, "status", string(e.Status))
	case exec.EventTransactionSent:
		log.Info("transaction sent", "future", e.FutureID, "hash", e.Hash)
	case exec.EventTransactionConfirmed:
		log.Info("transaction confirmed", "future", e.FutureID, "hash", e.Hash)
	case exec.EventFeesBumped:
		log.Info("bumping transaction fees", "future", e.FutureID)
	case exec.EventWiped:
		log.Info("future wiped", "future", e.FutureID)
	}
}

func reportResult(result *exec.DeploymentResult) error {
	switch result.Type {
	case exec.ResultTypeSuccessful:
		slog.Info("deployment finished successfully", "contracts", len(result.Contracts))
		for _, contract := range result.Contracts {
			slog.Info("deployed contract",
				"future", contract.FutureID,
				"contract", contract.ContractName,
				"address", contract.Address,
			)
		}
		return nil

	case exec.ResultTypeValidationError:
		for _, failure := range result.Validation {
			slog.Error("validation failure", "future", failure.FutureID, "reason", failure.Message)
		}
		return fmt.Errorf("plan validation failed with %d error(s)", len(result.Validation))

	case exec.ResultTypeReconciliationError:
		for _, failure := range result.Reconciliation {
			slog.Error("reconciliation failure", "future", failure.FutureID, "reason", failure.Message)
		}
		return fmt.Errorf("plan no longer matches the journal (%d mismatch(es))", len(result.Reconciliation))

	case exec.ResultTypePreviousRunError:
		for _, failure := range result.PreviousRuns {
			slog.Error("previous run failure", "future", failure.FutureID, "reason", failure.Message)
		}
		return fmt.Errorf("%d future(s) failed in previous runs, wipe them to retry", len(result.PreviousRuns))

	default:
		for _, outcome := range result.Failed {
			slog.Error("future failed", "future", outcome.FutureID, "reason", outcome.Error)
		}
		for _, outcome := range result.TimedOut {
			slog.Error("future timed out", "future", outcome.FutureID)
		}
		for _, outcome := range result.Held {
			slog.Warn("future held", "future", outcome.FutureID, "reason", outcome.Error)
		}
		for _, id := range result.Skipped {
			slog.Warn("future skipped", "future", id)
		}
		return fmt.Errorf("deployment did not complete: %d failed, %d timed out, %d held, %d skipped",
			len(result.Failed), len(result.TimedOut), len(result.Held), len(result.Skipped))
	}
}
