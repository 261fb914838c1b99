// odb_scraper runs one scrape pass against the feed and exports the
// captured records, then exits. Use odb_controller for the long-running
// HTTP control surface.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/browser"
	"github.com/dgnsrekt/odb_agent/internal/cdp"
	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/config"
	"github.com/dgnsrekt/odb_agent/internal/export"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/pagedump"
	"github.com/dgnsrekt/odb_agent/internal/paginate"
	"github.com/dgnsrekt/odb_agent/internal/scrape"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("odb_scraper config loaded",
		"cdp_url", cfg.CDPURL(),
		"base_url", cfg.BaseURL,
		"container_selector", cfg.ContainerSelector,
		"scroll_step_px", cfg.ScrollStepPx,
		"no_progress_threshold", cfg.NoProgressThreshold,
		"output_dir", cfg.OutputDir,
		"dump_html", cfg.DumpHTML,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			StartURL:    cfg.BaseURL,
			BrowserPath: cfg.BrowserPath,
			Headless:    cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	nav := cdp.NewNavigator(cfg.CDPURL(), cfg.BaseURL, cfg.TabURLFilter, extract.CardSelector)
	if err := nav.EnsureFeed(ctx, 60*time.Second); err != nil {
		slog.Error("failed to bring up feed tab", "error", err)
		os.Exit(1)
	}
	defer nav.Close()

	client := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.ContainerSelector, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP client", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	var dumps *pagedump.Store
	if cfg.DumpHTML {
		dumps, err = pagedump.NewStore(cfg.DumpDir)
		if err != nil {
			slog.Error("failed to create dump store", "dir", cfg.DumpDir, "error", err)
			os.Exit(1)
		}
	}

	archive := export.NewJSONLWriter(cfg.OutputDir, 1000, 50)
	defer func() {
		if err := archive.Close(); err != nil {
			slog.Debug("archive close failed", "error", err)
		}
	}()

	svc := scrape.NewService(client, extract.New(nil), dumps, archive, scrape.Options{
		Engine: paginate.Options{
			ScrollStepPx:        cfg.ScrollStepPx,
			NoProgressThreshold: cfg.NoProgressThreshold,
			SettleWait:          time.Duration(cfg.SettleWaitMS) * time.Millisecond,
			SettleRetries:       cfg.SettleRetries,
		},
		OutputDir:    cfg.OutputDir,
		DumpHTML:     cfg.DumpHTML,
		NtfyEndpoint: cfg.NtfyEndpoint,
	})

	run, items, runErr := svc.RunOnce(ctx)
	if runErr != nil {
		slog.Error("scrape run failed", "run_id", run.ID, "items", len(items), "error", runErr)
		os.Exit(1)
	}
	slog.Info("scrape run complete", "run_id", run.ID, "items", len(items), "csv", run.CSVPath)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
