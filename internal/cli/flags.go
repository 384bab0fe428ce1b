package cli

import (
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag bound to a viper configuration key.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	stringFlags = []flagDef[string]{
		{"rpc-url", "network.rpc-url", "", "JSON-RPC endpoint of the target chain"},
		{"gas-price", "network.gas-price", "", "Force legacy gas pricing with this wei amount"},
		{"max-fee-per-gas-limit", "network.max-fee-per-gas-limit", "", "Refuse to send above this wei amount per gas"},

		{"deployment-dir", "deployment.dir", "", "Directory holding the deployment journal"},
		{"artifacts-dir", "deployment.artifacts-dir", "", "Directory holding compiled contract artifacts"},
		{"default-sender", "deployment.default-sender", "", "Sender used when a future names none"},
		{"strategy", "deployment.strategy", "basic", "Deployment strategy (basic or create2)"},
	}

	intFlags = []flagDef[int]{
		{"max-fee-bumps", "deployment.max-fee-bumps", 4, "Fee bump attempts before a transaction times out"},
	}
)

func init() {
	if err := declareFlags(stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(intFlags); err != nil {
		panic(err)
	}
}

// declareFlags declares flags on the deploy command and binds them to viper
// configuration keys. The other commands read the same keys from the config
// file.
func declareFlags[T flagType](flags []flagDef[T]) error {
	for _, flag := range flags {
		switch value := any(flag.defaultValue).(type) {
		case string:
			DeployCMD.Flags().String(flag.name, value, flag.description)
		case int:
			DeployCMD.Flags().Int(flag.name, value, flag.description)
		case bool:
			DeployCMD.Flags().Bool(flag.name, value, flag.description)
		}
		if err := viper.BindPFlag(flag.viperKey, DeployCMD.Flags().Lookup(flag.name)); err != nil {
			return err
		}
	}
	return nil
}
