package cmd

import (
	"github.com/spf13/cobra"

	"github.com/williamsharkey/nimbus/internal/tui"
)

var dashServer string

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the live status dashboard",
	Long: `# ☁️ nimbus dash

A terminal dashboard showing endpoint liveness, capture session activity,
and the live event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(dashServer)
	},
}

func init() {
	dashCmd.Flags().StringVarP(&dashServer, "server", "s", "http://localhost:8080", "Hub URL to connect to")
	rootCmd.AddCommand(dashCmd)
}
