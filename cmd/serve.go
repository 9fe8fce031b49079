package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turnmemory/controlplane"
	"turnmemory/core"
	"turnmemory/factories"
	"turnmemory/transports/console"

	"github.com/spf13/cobra"
)

const statusInterval = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept console connections and store completed turns",
	Long: `Run the console WebSocket server. Each connection to /session is one
realtime session with its own turn state; completed turns are written to the
configured memory store.

If a control plane URL is configured the agent also connects out to it,
streaming session logs and turn events and accepting reset_session and
shutdown commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, settings)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, settings factories.SettingsConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := core.GetLogger().With(map[string]interface{}{"component": "serve"})

	sink, err := factories.BuildSink(settings.Memory, logger)
	if err != nil {
		return fmt.Errorf("memory sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.With(map[string]interface{}{"error": err}).Warn("failed to close memory sink")
		}
	}()
	logger.With(map[string]interface{}{"driver": settings.Memory.Driver}).Info("memory sink ready")

	var server *console.Server
	var client *controlplane.Client
	if cp := settings.ControlPlane; cp != nil {
		client = newControlPlaneClient(*cp, logger, func() int {
			if server == nil {
				return 0
			}
			return server.ActiveSessions()
		})
		client.OnResetSession = func(sessionID, reason string) error {
			return server.ResetSession(sessionID, reason)
		}
		client.OnShutdown = func(reason string) {
			cancel()
		}
	}

	factory := factories.NewSessionFactory(settings, sink, client, logger)
	server = console.NewServer(factory, logger)

	if client != nil {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()
		go func() {
			client.Wait()
			if ctx.Err() == nil {
				logger.Warn("control plane connection lost, shutting down")
				cancel()
			}
		}()
		go reportStatus(ctx, client, server)
	}

	err = server.ListenAndServe(ctx, settings.ListenAddr)
	logger.Info("shutting down")
	return err
}

func newControlPlaneClient(cp factories.ControlPlaneConfig, logger *core.Logger, active func() int) *controlplane.Client {
	agentID := cp.AgentID
	if agentID == "" {
		agentID, _ = os.Hostname()
	}
	hostname, _ := os.Hostname()
	return controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL:        cp.URL,
		AgentID:           agentID,
		Version:           version,
		Metadata:          map[string]string{"hostname": hostname},
		HeartbeatInterval: time.Duration(cp.HeartbeatIntervalMs) * time.Millisecond,
		Logger:            logger,
		ActiveSessions:    active,
	})
}

func reportStatus(ctx context.Context, client *controlplane.Client, server *console.Server) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sessions := server.Sessions()
			status := "idle"
			if len(sessions) > 0 {
				status = "running"
			}
			client.SendStatus(status, sessions)
		case <-ctx.Done():
			return
		}
	}
}
