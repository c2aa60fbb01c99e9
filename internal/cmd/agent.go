package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/williamsharkey/nimbus/internal/agent"
	"github.com/williamsharkey/nimbus/internal/logger"
)

var (
	agentServer   string
	agentEndpoint string
	agentCommand  string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run an execution endpoint agent",
	Long: `# ☁️ nimbus agent

Connects to a hub, registers under an endpoint key, and executes routed
requests. With **--command**, also runs that command under a local PTY and
streams its terminal output to the hub.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentServer, "server", "s", "http://localhost:8080", "Hub URL to connect to")
	agentCmd.Flags().StringVarP(&agentEndpoint, "endpoint", "e", "", "Endpoint key to register under (required)")
	agentCmd.Flags().StringVarP(&agentCommand, "command", "c", "", "Optional command to run under a PTY and stream")
	agentCmd.MarkFlagRequired("endpoint") //nolint:errcheck
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	isDev := os.Getenv("NIMBUS_DEV") != ""
	logger.Configure(logger.GetLogLevelFromEnv(isDev), isDev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := agent.New(agentServer, agentEndpoint, agentCommand)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
