package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/TomasB/ipmeta/internal/ipmeta"
	"github.com/TomasB/ipmeta/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler implements the gRPC MetadataService.
//
// Lookup takes {"query": string, "providers": [string], "aggregate": bool}
// and answers {"query": string, "records": [...]}. Address counts are
// decimal strings since they may exceed 2^53.
type Handler struct {
	lookup service.Lookup
}

// NewHandler creates a new gRPC handler backed by the given service.
func NewHandler(lookup service.Lookup) *Handler {
	return &Handler{lookup: lookup}
}

// Lookup returns the records covering the queried address or prefix.
func (h *Handler) Lookup(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	fields := req.GetFields()
	query := fields["query"].GetStringValue()
	if query == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	var providers []string
	for _, v := range fields["providers"].GetListValue().GetValues() {
		name, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "providers must be strings")
		}
		providers = append(providers, name.StringValue)
	}

	results, err := h.lookup.Lookup(query, providers)
	if err != nil {
		return nil, statusError(err, query)
	}
	if fields["aggregate"].GetBoolValue() {
		results = service.Aggregate(results)
	}

	records := make([]any, 0, len(results))
	for _, r := range results {
		records = append(records, recordFields(r))
	}
	resp, err := structpb.NewStruct(map[string]any{
		"query":   query,
		"records": records,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

// ListProviders returns every registered provider.
func (h *Handler) ListProviders(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	providers, err := h.lookup.Providers()
	if err != nil {
		return nil, statusError(err, "")
	}
	list := make([]any, 0, len(providers))
	for _, p := range providers {
		list = append(list, map[string]any{
			"id":      int(p.ID),
			"name":    p.Name,
			"enabled": p.Enabled,
		})
	}
	resp, err := structpb.NewStruct(map[string]any{"providers": list})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

func statusError(err error, query string) error {
	switch {
	case ipmeta.IsInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, ipmeta.ErrInvalidated):
		return status.Error(codes.Unavailable, "service unavailable")
	default:
		slog.Error("grpc lookup failed", "query", query, "error", err)
		return status.Error(codes.Internal, "lookup failed")
	}
}

func recordFields(r service.Result) map[string]any {
	rec := r.Record
	return map[string]any{
		"provider":         r.Provider,
		"id":               rec.ID,
		"country_code":     rec.CountryCode,
		"continent_code":   rec.ContinentCode,
		"region":           rec.Region,
		"city":             rec.City,
		"post_code":        rec.PostCode,
		"latitude":         rec.Latitude,
		"longitude":        rec.Longitude,
		"metro_code":       rec.MetroCode,
		"area_code":        rec.AreaCode,
		"region_code":      uint32(rec.RegionCode),
		"connection_speed": rec.ConnectionSpeed,
		"asns":             uint32List(rec.ASNs),
		"asn_ip_count":     rec.ASNIPCount.String(),
		"polygon_ids":      uint32List(rec.PolygonIDs),
		"matched_ip_count": r.MatchedIPs.String(),
	}
}

func uint32List(vs []uint32) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
