package cmd

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gossipring/cassandra/internal/config"
	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/node"
)

var (
	listenAddr       string
	adminAddr        string
	startNodeID      string
	seedsFlag        string
	bootstrapper     string
	datafileDir      string
	vnode            int
	replica          int
	responseProtocol string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a single cluster node",
	Long: `Start one node: binds the peer listener, the admin diagnostics
service, and runs the gossip engine, ring partitioner, storage engine, and
coordinator.

Examples:
  # Start the first node of a cluster
  cassandra start --node-id=node-1 --listen=127.0.0.1:9042

  # Start a second node, seeded against the first
  cassandra start --node-id=node-2 --listen=127.0.0.1:9043 --seeds=127.0.0.1:9042 --bootstrap=127.0.0.1:9042`,
	Run: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:9042", "Address to bind the peer listener to")
	startCmd.Flags().StringVar(&adminAddr, "admin", "127.0.0.1:9142", "Address to bind the admin diagnostics service to (empty disables it)")
	startCmd.Flags().StringVarP(&startNodeID, "node-id", "n", "node-1", "Unique node identifier")
	startCmd.Flags().StringVar(&seedsFlag, "seeds", "", "Comma-separated seed addresses for gossip fanout")
	startCmd.Flags().StringVar(&bootstrapper, "bootstrap", "", "Peer address to dial on startup")
	startCmd.Flags().StringVar(&datafileDir, "data-dir", "data", "Directory for SSTable data files")
	startCmd.Flags().IntVar(&vnode, "vnode", 3, "Virtual nodes per physical node")
	startCmd.Flags().IntVar(&replica, "replica", 3, "Replication factor")
	startCmd.Flags().StringVar(&responseProtocol, "response-protocol", "any", `Quorum policy: "any", "all", or a positive integer`)
}

func runStart(cmd *cobra.Command, args []string) {
	logger.Init("", true)

	cfg := config.DefaultConfig(startNodeID)
	cfg.Conn.ListenAddr = listenAddr
	cfg.Conn.AdminAddr = adminAddr
	cfg.Conn.Bootstrapper = bootstrapper
	if seedsFlag != "" {
		cfg.Conn.Seeds = strings.Split(seedsFlag, ",")
	}
	cfg.Storager.DatafileDir = datafileDir
	cfg.Partitioner.VNode = vnode
	cfg.Partitioner.Replica = replica
	cfg.Server.ResponseProtocol = responseProtocol

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("failed to create node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Infof(startNodeID, "shutting down...")
	if err := n.Stop(); err != nil {
		logger.Errorf(startNodeID, "error during shutdown: %v", err)
	}
}
