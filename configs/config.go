package configs

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var Values Config

type (
	Config struct {
		Network    Network    `mapstructure:"network"`
		Deployment Deployment `mapstructure:"deployment"`
	}

	Network struct {
		RPCURL                string   `mapstructure:"rpc-url"`
		RequiredConfirmations uint64   `mapstructure:"required-confirmations"`
		GasPrice              string   `mapstructure:"gas-price"`
		MaxPriorityFeePerGas  string   `mapstructure:"max-priority-fee-per-gas"`
		MaxFeePerGasLimit     string   `mapstructure:"max-fee-per-gas-limit"`
		LegacyFeeChains       []uint64 `mapstructure:"legacy-fee-chains"`
		BNBStyleChains        []uint64 `mapstructure:"bnb-style-chains"`
	}

	Deployment struct {
		Dir                   string            `mapstructure:"dir"`
		ArtifactsDir          string            `mapstructure:"artifacts-dir"`
		DefaultSender         string            `mapstructure:"default-sender"`
		Strategy              string            `mapstructure:"strategy"`
		StrategyConfig        map[string]string `mapstructure:"strategy-config"`
		BlockPollingInterval  time.Duration     `mapstructure:"block-polling-interval"`
		TimeBeforeBumpingFees time.Duration     `mapstructure:"time-before-bumping-fees"`
		MaxFeeBumps           int               `mapstructure:"max-fee-bumps"`
	}
)

func (n *Network) Validate() error {
	var errs []error

	if n.RPCURL == "" {
		errs = append(errs, errors.New("network.rpc-url is required"))
	}
	if n.RequiredConfirmations == 0 {
		errs = append(errs, errors.New("network.required-confirmations must be at least 1"))
	}
	for _, field := range []struct{ name, value string }{
		{"network.gas-price", n.GasPrice},
		{"network.max-priority-fee-per-gas", n.MaxPriorityFeePerGas},
		{"network.max-fee-per-gas-limit", n.MaxFeePerGasLimit},
	} {
		if field.value == "" {
			continue
		}
		if _, ok := new(big.Int).SetString(field.value, 10); !ok {
			errs = append(errs, fmt.Errorf("%s must be a decimal wei amount, got %q", field.name, field.value))
		}
	}

	return errors.Join(errs...)
}

func (d *Deployment) Validate() error {
	var errs []error

	if d.Dir == "" {
		errs = append(errs, errors.New("deployment.dir is required"))
	}
	if d.ArtifactsDir == "" {
		errs = append(errs, errors.New("deployment.artifacts-dir is required"))
	}
	if d.BlockPollingInterval <= 0 {
		errs = append(errs, errors.New("deployment.block-polling-interval must be positive"))
	}
	if d.TimeBeforeBumpingFees <= 0 {
		errs = append(errs, errors.New("deployment.time-before-bumping-fees must be positive"))
	}
	if d.MaxFeeBumps < 0 {
		errs = append(errs, errors.New("deployment.max-fee-bumps must not be negative"))
	}
	if d.Strategy != "basic" && d.Strategy != "create2" {
		errs = append(errs, fmt.Errorf("deployment.strategy must be 'basic' or 'create2', got %q", d.Strategy))
	}

	return errors.Join(errs...)
}

// WeiAmount parses a decimal wei string from the config, returning nil for an
// unset value.
func WeiAmount(value string) *big.Int {
	if value == "" {
		return nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil
	}
	return amount
}
