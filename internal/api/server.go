package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/pagedump"
	"github.com/dgnsrekt/odb_agent/internal/scrape"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Feed(ctx context.Context) (cdpcontrol.FeedInfo, error)
	StartRun(ctx context.Context) (scrape.Run, error)
	StopRun() error
	ListRuns() []scrape.Run
	GetRun(id string) (scrape.Run, error)
	RunItems(id string) ([]extract.Record, error)
	ListDumps() ([]pagedump.DumpMeta, error)
	GetDumpMarkup(id string) (string, error)
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("ODB Scraper Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerRunHandlers(api, svc)
	registerDumpHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeFeedNotFound, scrape.CodeRunNotFound, pagedump.CodeDumpNotFound:
			return huma.Error404NotFound(coded.Message)
		case scrape.CodeRunInProgress:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
