package lookup

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/TomasB/ipmeta/internal/ipmeta"
	"github.com/TomasB/ipmeta/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack"
)

// MIMEMsgpack selects a msgpack encoded response through the Accept header.
const MIMEMsgpack = "application/x-msgpack"

// LookupRequest represents the JSON body for a lookup.
type LookupRequest struct {
	Query     string   `json:"query" binding:"required"`
	Providers []string `json:"providers"`
	Aggregate bool     `json:"aggregate"`
}

// LookupResponse represents the response for a lookup.
type LookupResponse struct {
	Query   string   `json:"query" msgpack:"query"`
	Records []Record `json:"records" msgpack:"records"`
	Error   string   `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Provider describes one registered provider.
type Provider struct {
	ID      int    `json:"id" msgpack:"id"`
	Name    string `json:"name" msgpack:"name"`
	Enabled bool   `json:"enabled" msgpack:"enabled"`
}

// ProvidersResponse represents the response for the provider listing.
type ProvidersResponse struct {
	Providers []Provider `json:"providers" msgpack:"providers"`
	Error     string     `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Handler manages metadata lookup endpoints.
type Handler struct {
	lookup service.Lookup
}

// NewHandler creates a new lookup handler backed by the given service.
func NewHandler(lookup service.Lookup) *Handler {
	return &Handler{lookup: lookup}
}

// Lookup handles POST /api/v1/lookup
func (h *Handler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, http.StatusBadRequest, LookupResponse{
			Error: "invalid request: " + err.Error(),
		})
		return
	}
	h.serve(c, req)
}

// LookupAddr handles GET /api/v1/lookup/:addr and /api/v1/lookup/:addr/:len.
// Providers are selected with ?providers=a,b and merged with ?aggregate=true.
func (h *Handler) LookupAddr(c *gin.Context) {
	req := LookupRequest{Query: c.Param("addr")}
	if l := c.Param("len"); l != "" {
		req.Query += "/" + l
	}
	if p := c.Query("providers"); p != "" {
		req.Providers = strings.Split(p, ",")
	}
	if a := c.Query("aggregate"); a != "" {
		v, err := strconv.ParseBool(a)
		if err != nil {
			render(c, http.StatusBadRequest, LookupResponse{
				Query: req.Query,
				Error: "invalid aggregate flag",
			})
			return
		}
		req.Aggregate = v
	}
	h.serve(c, req)
}

func (h *Handler) serve(c *gin.Context, req LookupRequest) {
	slog.Debug("lookup request received", "query", req.Query, "providers", req.Providers, "aggregate", req.Aggregate)

	results, err := h.lookup.Lookup(req.Query, req.Providers)
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("metadata lookup failed", "query", req.Query, "error", err)
		}
		render(c, status, LookupResponse{Query: req.Query, Error: msg})
		return
	}
	if req.Aggregate {
		results = service.Aggregate(results)
	}

	resp := LookupResponse{Query: req.Query, Records: make([]Record, 0, len(results))}
	for _, r := range results {
		resp.Records = append(resp.Records, newRecord(r))
	}
	render(c, http.StatusOK, resp)
}

// Providers handles GET /api/v1/providers
func (h *Handler) Providers(c *gin.Context) {
	providers, err := h.lookup.Providers()
	if err != nil {
		status, msg := errorStatus(err)
		render(c, status, ProvidersResponse{Error: msg})
		return
	}
	resp := ProvidersResponse{Providers: make([]Provider, 0, len(providers))}
	for _, p := range providers {
		resp.Providers = append(resp.Providers, Provider{ID: int(p.ID), Name: p.Name, Enabled: p.Enabled})
	}
	render(c, http.StatusOK, resp)
}

func errorStatus(err error) (int, string) {
	switch {
	case ipmeta.IsInputError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, ipmeta.ErrInvalidated):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "lookup failed"
	}
}

// render writes body as msgpack when the client asks for it, JSON otherwise.
func render(c *gin.Context, status int, body any) {
	if c.NegotiateFormat(gin.MIMEJSON, MIMEMsgpack) != MIMEMsgpack {
		c.JSON(status, body)
		return
	}
	b, err := msgpack.Marshal(body)
	if err != nil {
		slog.Error("msgpack encoding failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Data(status, MIMEMsgpack, b)
}
