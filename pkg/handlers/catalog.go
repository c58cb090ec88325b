package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

// CatalogReader is the read side of the catalog. Implemented by catalog.Reader.
type CatalogReader interface {
	ListSources(ctx context.Context, dbName string, skip, limit int) ([]*models.SourceProfile, error)
	CountSources(ctx context.Context, dbName string) (int, error)
	GetSourceDetail(ctx context.Context, id models.SourceIdentity) (*models.SourceDetail, error)
}

// ListSourcesResponse is the body of GET /api/sources.
type ListSourcesResponse struct {
	Sources []*models.SourceProfile `json:"sources"`
	Total   int                     `json:"total"`
	Skip    int                     `json:"skip"`
	Limit   int                     `json:"limit"`
}

// ExtractResponse is the body of POST /api/datasources/{name}/extract.
type ExtractResponse struct {
	Results []*services.ExtractionResult `json:"results"`
	Errors  string                       `json:"errors,omitempty"`
}

// CatalogHandler serves catalog reads and on-demand extraction over HTTP.
type CatalogHandler struct {
	reader     CatalogReader
	extraction services.ExtractionService
	logger     *zap.Logger
}

// NewCatalogHandler creates a CatalogHandler. extraction may be nil, which leaves the
// extract route unregistered.
func NewCatalogHandler(reader CatalogReader, extraction services.ExtractionService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{reader: reader, extraction: extraction, logger: logger.Named("catalog-handler")}
}

// RegisterRoutes registers the catalog routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sources", h.List)
	mux.HandleFunc("GET /api/sources/{db}/{table}", h.Get)
	if h.extraction != nil {
		mux.HandleFunc("POST /api/datasources/{name}/extract", h.Extract)
	}
}

// List handles GET /api/sources?db=&skip=&limit=.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dbName := q.Get("db")
	skip, err := intParam(q.Get("skip"))
	if err != nil {
		h.badRequest(w, "skip", err)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		h.badRequest(w, "limit", err)
		return
	}

	sources, err := h.reader.ListSources(r.Context(), dbName, skip, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.reader.CountSources(r.Context(), dbName)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ListSourcesResponse{
		Sources: sources,
		Total:   total,
		Skip:    skip,
		Limit:   limit,
	}); err != nil {
		h.logger.Error("Failed to encode source list", zap.Error(err))
	}
}

// Get handles GET /api/sources/{db}/{table}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := models.SourceIdentity{DBName: r.PathValue("db"), TableName: r.PathValue("table")}

	detail, err := h.reader.GetSourceDetail(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if detail == nil {
		h.fail(w, fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound))
		return
	}

	if err := WriteJSON(w, http.StatusOK, detail); err != nil {
		h.logger.Error("Failed to encode source detail", zap.Error(err))
	}
}

// Extract handles POST /api/datasources/{name}/extract. Partial failures still return
// 200 with the successful results and the joined errors.
func (h *CatalogHandler) Extract(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	results, err := h.extraction.ExtractDatasource(r.Context(), name)
	if err != nil && len(results) == 0 {
		h.fail(w, err)
		return
	}

	response := ExtractResponse{Results: results}
	if err != nil {
		response.Errors = err.Error()
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode extraction results", zap.Error(err))
	}
}

func (h *CatalogHandler) badRequest(w http.ResponseWriter, param string, err error) {
	if werr := ErrorResponse(w, http.StatusBadRequest, "bad_request",
		fmt.Sprintf("invalid %s: %v", param, err)); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func (h *CatalogHandler) fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Catalog request failed", zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}
