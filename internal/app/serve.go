package app

import (
	"context"
	"time"

	mcpserver "dyntables/internal/mcp"
	"dyntables/internal/metrics"
)

// shutdownGrace bounds how long Serve waits for running import jobs.
const shutdownGrace = 30 * time.Second

// MCPServer builds the tool-call surface over the app's services.
func (a *App) MCPServer(version string) *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Name:      "dyntables",
		Version:   version,
		OwnerID:   a.cfg.OwnerID,
		Log:       a.log,
		Databases: a.Databases,
		Rows:      a.Rows,
		Importer:  a.Importer,
		Tasks:     a.Tasks,
		Events:    a.Events,
		Jobs:      a.Jobs,
	})
}

// Serve runs the MCP stdio server until ctx is cancelled or stdin closes.
// Metrics and import job triggers run alongside when configured.
func (a *App) Serve(ctx context.Context, version string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.log); err != nil {
				a.log.Errorw("metrics: server stopped", "error", err)
			}
		}()
	}

	if a.cfg.Jobs.Enabled {
		a.Jobs.RestartWatchers(ctx)
	}

	err := a.MCPServer(version).ServeStdio(ctx)

	a.Jobs.Stop()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer waitCancel()
	a.Jobs.WaitRunning(waitCtx)
	a.log.Info("app: stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
