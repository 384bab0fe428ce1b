package devnet

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	imageFlag  string
	portFlag   string
	periodFlag int
)

var CMD = &cobra.Command{
	Use:   "devnet",
	Short: "Manage the local development chain",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a local geth dev node in Docker",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := New(Options{Image: imageFlag, HostPort: portFlag, BlockPeriod: periodFlag})
		if err != nil {
			return err
		}
		defer node.Close()

		if err := node.Up(cmd.Context()); err != nil {
			return err
		}

		slog.Info("devnet ready", "rpc", node.RPCURL())
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the local dev node",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := New(Options{})
		if err != nil {
			return err
		}
		defer node.Close()

		return node.Down(cmd.Context())
	},
}

func init() {
	upCmd.Flags().StringVar(&imageFlag, "image", defaultImage, "geth Docker image to run")
	upCmd.Flags().StringVar(&portFlag, "port", rpcPort, "host port for the RPC endpoint")
	upCmd.Flags().IntVar(&periodFlag, "period", 0, "mining period in seconds, 0 mines per transaction")

	CMD.AddCommand(upCmd)
	CMD.AddCommand(downCmd)
}
