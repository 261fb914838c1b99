package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/odb_agent/internal/pagedump"
)

func registerDumpHandlers(api huma.API, svc Service) {
	type listDumpsOutput struct {
		Body struct {
			Dumps []pagedump.DumpMeta `json:"dumps"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-dumps", Method: http.MethodGet, Path: "/api/v1/dumps", Summary: "List page dumps", Tags: []string{"Dumps"}},
		func(ctx context.Context, input *struct{}) (*listDumpsOutput, error) {
			metas, err := svc.ListDumps()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listDumpsOutput{}
			out.Body.Dumps = metas
			if out.Body.Dumps == nil {
				out.Body.Dumps = []pagedump.DumpMeta{}
			}
			return out, nil
		})

	type dumpIDInput struct {
		DumpID string `path:"dump_id"`
	}
	type dumpMarkupOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "get-dump-markup", Method: http.MethodGet, Path: "/api/v1/dumps/{dump_id}/markup", Summary: "Read stored page markup", Tags: []string{"Dumps"}},
		func(ctx context.Context, input *dumpIDInput) (*dumpMarkupOutput, error) {
			markup, err := svc.GetDumpMarkup(input.DumpID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &dumpMarkupOutput{}
			out.ContentType = "text/html; charset=utf-8"
			out.Body = []byte(markup)
			return out, nil
		})
}
