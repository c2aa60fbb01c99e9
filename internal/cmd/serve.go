package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/williamsharkey/nimbus/internal/config"
	"github.com/williamsharkey/nimbus/internal/handlers"
	"github.com/williamsharkey/nimbus/internal/history"
	"github.com/williamsharkey/nimbus/internal/hub"
	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/recovery"
	"github.com/williamsharkey/nimbus/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub server",
	Long: `# ☁️ nimbus serve

Starts the hub: endpoint websocket registration, control submit/status,
capture sessions, and the SSE event stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	isDev := os.Getenv("NIMBUS_DEV") != ""
	logger.Configure(logger.GetLogLevelFromEnv(isDev), isDev)
	rt := config.Runtime

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(rt.RequestTimeout, rt.HeartbeatInterval)
	recovery.SafeGo("hub-heartbeat", func() { h.Run(ctx) })

	markers, err := config.LoadMarkers(rt.MarkerConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load marker config: %w", err)
	}
	classifier := session.NewClassifier(markers)

	if rt.MarkerConfigPath != "" {
		watcher, err := config.WatchMarkers(rt.MarkerConfigPath, classifier.SetConfig)
		if err != nil {
			logger.Warnf("Marker config not watched: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	sessions := session.NewManager(classifier, h, rt.CaptureInterval, rt.TermCols, rt.TermRows)
	defer sessions.StopAll()

	records := history.New(history.DefaultConfig())
	defer records.Close() //nolint:errcheck

	app := fiber.New(fiber.Config{
		AppName:               "nimbus",
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "uptime": h.Uptime().String()})
	})

	v1 := app.Group("/v1")
	handlers.NewEndpointHandler(h).RegisterRoutes(v1)
	handlers.NewControlHandler(h, sessions, records).RegisterRoutes(v1)
	handlers.NewEventsHandler(h).RegisterRoutes(v1)
	handlers.NewSessionsHandler(sessions).RegisterRoutes(v1)

	addr := fmt.Sprintf(":%d", rt.Port)
	errCh := make(chan error, 1)
	recovery.SafeGo("fiber-listen", func() { errCh <- app.Listen(addr) })
	logger.Infof("Nimbus listening on %s", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Infof("Shutting down")
	return app.ShutdownWithTimeout(5 * time.Second)
}
