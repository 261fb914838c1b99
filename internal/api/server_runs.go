package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/scrape"
)

type runIDInput struct {
	RunID string `path:"run_id"`
}

func registerRunHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type feedOutput struct {
		Body cdpcontrol.FeedInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-feed", Method: http.MethodGet, Path: "/api/v1/feed", Summary: "Get the attached feed tab", Tags: []string{"Feed"}},
		func(ctx context.Context, input *struct{}) (*feedOutput, error) {
			info, err := svc.Feed(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &feedOutput{}
			out.Body = info
			return out, nil
		})

	type runOutput struct {
		Body scrape.Run
	}
	huma.Register(api, huma.Operation{OperationID: "start-run", Method: http.MethodPost, Path: "/api/v1/runs", Summary: "Start a scrape run", Description: "Launches a background scrape run. Only one run executes at a time.", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*runOutput, error) {
			run, err := svc.StartRun(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &runOutput{}
			out.Body = run
			return out, nil
		})

	type listRunsOutput struct {
		Body struct {
			Runs []scrape.Run `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-runs", Method: http.MethodGet, Path: "/api/v1/runs", Summary: "List scrape runs", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*listRunsOutput, error) {
			out := &listRunsOutput{}
			out.Body.Runs = svc.ListRuns()
			if out.Body.Runs == nil {
				out.Body.Runs = []scrape.Run{}
			}
			return out, nil
		})

	type stopRunOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "stop-run", Method: http.MethodPost, Path: "/api/v1/runs/stop", Summary: "Stop the active run", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*stopRunOutput, error) {
			if err := svc.StopRun(); err != nil {
				return nil, mapErr(err)
			}
			out := &stopRunOutput{}
			out.Body.Status = "stopping"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-run", Method: http.MethodGet, Path: "/api/v1/runs/{run_id}", Summary: "Get one run", Tags: []string{"Runs"}},
		func(ctx context.Context, input *runIDInput) (*runOutput, error) {
			run, err := svc.GetRun(input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &runOutput{}
			out.Body = run
			return out, nil
		})

	type runItemsOutput struct {
		Body struct {
			RunID string           `json:"run_id"`
			Items []extract.Record `json:"items"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-run-items", Method: http.MethodGet, Path: "/api/v1/runs/{run_id}/items", Summary: "Get records captured by a run", Description: "Items are sorted ascending by logical index.", Tags: []string{"Runs"}},
		func(ctx context.Context, input *runIDInput) (*runItemsOutput, error) {
			items, err := svc.RunItems(input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &runItemsOutput{}
			out.Body.RunID = input.RunID
			out.Body.Items = items
			if out.Body.Items == nil {
				out.Body.Items = []extract.Record{}
			}
			return out, nil
		})
}
