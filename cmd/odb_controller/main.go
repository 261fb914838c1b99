// odb_controller serves the HTTP control API: start and stop scrape runs,
// inspect results, read page dumps.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/api"
	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/config"
	"github.com/dgnsrekt/odb_agent/internal/export"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/netutil"
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

	slog.Info("odb_controller config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"container_selector", cfg.ContainerSelector,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"dump_dir", cfg.DumpDir,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, nil, false)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	client := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.ContainerSelector, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := client.Connect(context.Background()); err != nil {
		slog.Error("failed to connect CDP client", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	dumps, err := pagedump.NewStore(cfg.DumpDir)
	if err != nil {
		slog.Error("failed to create dump store", "dir", cfg.DumpDir, "error", err)
		os.Exit(1)
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
	defer svc.Shutdown()

	h := api.NewServer(svc)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("odb_controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("odb_controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("odb_controller shutdown failed", "error", err)
	}
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
