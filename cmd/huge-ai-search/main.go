// Command huge-ai-search runs the MCP stdio server that fronts the shared
// browser search pipeline: load config, stand up every long-lived
// component, wire them into one pipeline, then block on a signal for
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wangwingzero/huge-ai-search/internal/audit"
	"github.com/wangwingzero/huge-ai-search/internal/captcha"
	"github.com/wangwingzero/huge-ai-search/internal/config"
	"github.com/wangwingzero/huge-ai-search/internal/cooldown"
	"github.com/wangwingzero/huge-ai-search/internal/coordinator"
	"github.com/wangwingzero/huge-ai-search/internal/gate"
	"github.com/wangwingzero/huge-ai-search/internal/logging"
	"github.com/wangwingzero/huge-ai-search/internal/mcpserver"
	"github.com/wangwingzero/huge-ai-search/internal/notify"
	"github.com/wangwingzero/huge-ai-search/internal/pipeline"
	"github.com/wangwingzero/huge-ai-search/internal/searcher"
	"github.com/wangwingzero/huge-ai-search/internal/session"
)

const version = "0.1.0"

func main() {
	setupCmd := flag.String("setup-cmd", "huge-ai-search login", "command suggested to the user when a login-timeout failure is reported")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogDir, cfg.LogRetentionDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Info("boot", "starting huge-ai-search %s", version)

	coord, err := coordinator.New(cfg.CoordinatorDir, cfg.SlotCount, cfg.LeaseMS, cfg.HeartbeatMS, coordinator.WithLogger(func(format string, args ...any) {
		log.Info("coordinator", format, args...)
	}))
	if err != nil {
		log.Error("boot", "failed to start coordinator: %v", err)
		os.Exit(1)
	}
	defer coord.ReleaseAll()

	localGate := gate.New(cfg.MaxLocalSlots)

	sessions, err := session.New(cfg.MaxSessions, cfg.SessionDataDir, browserFactory, cfg.SessionIdleTTL, cfg.SessionMaxUses, session.WithLogger(log))
	if err != nil {
		log.Error("boot", "failed to start session registry: %v", err)
		os.Exit(1)
	}
	sessions.StartSweeper(cfg.CleanupInterval)
	defer sessions.Stop()

	captchaGate := captcha.New()
	cooldownLatch := cooldown.New(cfg.CooldownWindow)

	auditLog, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Error("boot", "failed to open audit database, continuing without it: %v", err)
		auditLog = nil
	} else {
		defer auditLog.Close()
	}

	notifier := notify.New("huge-ai-search")

	pl := pipeline.New(cfg, coord, localGate, sessions, captchaGate, cooldownLatch, log, auditLog, notifier, *setupCmd)
	srv := mcpserver.New(pl, version, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("boot", "mcp server ready")
	if err := srv.Run(ctx); err != nil {
		log.Error("boot", "mcp server exited with error: %v", err)
		os.Exit(1)
	}
	log.Info("boot", "shutdown complete")
}

// browserFactory constructs the per-session Searcher. The browser
// automation that actually drives the search surface is not part of this
// build, so every session creation fails with a clear error instead of
// silently no-opping.
func browserFactory(dataDir string) (searcher.Searcher, error) {
	return nil, fmt.Errorf("huge-ai-search: no browser subsystem wired into this build (session dir %s)", dataDir)
}
