package internal

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mkn/maiken/internal/dist"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Serve as a remote build node",
	Long:  `Node compiles sources for remote clients and receives the binaries they distribute.`,
	Args:  cobra.NoArgs,
	RunE:  runNode,
}

func init() {
	nodeCmd.Flags().String("listen", ":8080", "Address to listen on")
	nodeCmd.Flags().String("receive-dir", "", "Directory for distributed binaries")
	if err := config.BindPFlag("node.listen", nodeCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
	if err := config.BindPFlag("node.receive_dir", nodeCmd.Flags().Lookup("receive-dir")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(nodeCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	// work received by a node is never forwarded
	s.Nodes.Enabled = false
	reg, err := newRegistry(s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := dist.NewServer(reg, s.Node)
	if err := srv.ListenAndServe(ctx, s.Node.Listen); err != nil {
		return err
	}
	logrus.Info("node stopped")
	return nil
}
