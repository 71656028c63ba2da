// Command scanner runs the scanner agent from spec.md §4.3 as a
// standalone RPC server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distscan/internal/agent/scanner"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

var (
	ip    string
	port  int
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "scanner",
	Short: "Scanner agent: executes probes and reports port states and traffic",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&ip, "ip", "i", "0.0.0.0", "address to bind the RPC server on")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8000, "port to bind the RPC server on")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	viper.BindPFlag("ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
}

func run(cmd *cobra.Command, args []string) error {
	level := "info"
	if debug {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: level, Format: "text", Output: "stdout", Component: "scanner"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", ip, port)
	cfg := scanner.DefaultConfig()
	cfg.OwnAddr = ip
	agent := scanner.New(cfg)

	server := rpc.NewServer(addr)
	rpc.Handle(server, "exec_scan", agent.ExecScan)
	rpc.Handle(server, "stop_scan", agent.StopScan)
	rpc.Handle(server, "poll_scan", agent.PollScan)
	rpc.Handle(server, "scan_state", agent.ScanState)

	logger.Info("scanner: listening", map[string]interface{}{"addr": addr})
	server.Start()
	select {}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
