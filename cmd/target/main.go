// Command target runs the target agent from spec.md §4.5 as a
// standalone RPC server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distscan/internal/agent/target"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

var (
	ip    string
	port  int
	iface string
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "target",
	Short: "Target agent: passively captures scanner traffic and reports listening ports",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&ip, "ip", "i", "0.0.0.0", "address to bind the RPC server on")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8002, "port to bind the RPC server on")
	rootCmd.Flags().StringVarP(&iface, "dev", "d", "eth0", "network interface to sniff on")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	viper.BindPFlag("ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
}

func run(cmd *cobra.Command, args []string) error {
	level := "info"
	if debug {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: level, Format: "text", Output: "stdout", Component: "target"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", ip, port)
	cfg := target.DefaultConfig()
	cfg.Interface = iface
	agent := target.New(cfg)

	server := rpc.NewServer(addr)
	rpc.Handle(server, "start_monitor", agent.StartMonitor)
	rpc.Handle(server, "stop_monitor", agent.StopMonitor)
	rpc.Handle(server, "get_traffic", agent.GetTraffic)
	rpc.Handle(server, "get_open_ports", agent.GetOpenPorts)

	logger.Info("target: listening", map[string]interface{}{"addr": addr, "interface": iface})
	server.Start()
	select {}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
