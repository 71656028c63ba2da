// Command firewall runs the firewall agent (log snitch) from spec.md
// §4.4 as a standalone RPC server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distscan/internal/agent/firewall"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

var (
	ip    string
	port  int
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "firewall",
	Short: "Firewall agent: tails an alert log and reports pattern matches",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&ip, "ip", "i", "0.0.0.0", "address to bind the RPC server on")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8001, "port to bind the RPC server on")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	viper.BindPFlag("ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
}

func run(cmd *cobra.Command, args []string) error {
	level := "info"
	if debug {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: level, Format: "text", Output: "stdout", Component: "firewall"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", ip, port)
	cfg := firewall.DefaultConfig()
	cfg.OwnAddr = ip
	agent := firewall.New(cfg)

	server := rpc.NewServer(addr)
	rpc.Handle(server, "start_snitch", agent.StartSnitch)
	rpc.Handle(server, "stop_snitch", agent.StopSnitch)
	rpc.Handle(server, "snitch_state", agent.SnitchState)

	logger.Info("firewall: listening", map[string]interface{}{"addr": addr})
	server.Start()
	select {}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
