package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "☁️ Nimbus - correlation hub for remote execution endpoints",
	Long: `# ☁️ Nimbus

**A hub that routes control requests to live execution endpoints and watches
their terminals.**

## ✨ Features

- 🔀 **Request routing** with per-request correlation and timeouts
- 💓 **Heartbeat liveness** tracking for endpoint connections
- 🖥️  **Terminal capture** of local commands and tmux panes
- 📡 **Event streaming** over SSE for dashboards

## 🚀 Getting Started

Run **nimbus serve** to start the hub, then connect an endpoint with
**nimbus agent --server http://localhost:8080 --endpoint mykey**.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Render help as markdown
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

func renderMarkdownHelp(cmd *cobra.Command) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString("# " + cmd.Short)
		help.WriteString("\n\n")
	}

	help.WriteString("## 📖 Usage\n\n")
	help.WriteString("```bash\n")
	help.WriteString(cmd.UseLine())
	help.WriteString("\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		help.WriteString("## 🔧 Available Commands\n\n")
		for _, subCmd := range cmd.Commands() {
			if subCmd.IsAvailableCommand() {
				help.WriteString(fmt.Sprintf("- **%s** - %s\n", subCmd.Name(), subCmd.Short))
			}
		}
		help.WriteString("\n")
	}

	if cmd.HasAvailableFlags() {
		if flagUsages := cmd.Flags().FlagUsages(); flagUsages != "" {
			help.WriteString("## ⚙️  Flags\n\n")
			help.WriteString("```\n")
			help.WriteString(flagUsages)
			help.WriteString("```\n\n")
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		cmd.Help() //nolint:errcheck
		return
	}

	rendered, err := renderer.Render(help.String())
	if err != nil {
		cmd.Help() //nolint:errcheck
		return
	}
	fmt.Print(rendered)
}
