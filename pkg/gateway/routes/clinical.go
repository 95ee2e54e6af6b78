package routes

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/genomics-portal/platform/pkg/clinical"
	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/genomics-portal/platform/pkg/dictionary"
	"github.com/genomics-portal/platform/pkg/exports"
	"github.com/genomics-portal/platform/pkg/gateway/graphql"
	"github.com/genomics-portal/platform/pkg/gateway/httpclient"
	"github.com/genomics-portal/platform/pkg/gateway/middleware"
	"github.com/genomics-portal/platform/pkg/observability/metrics"
	"github.com/genomics-portal/platform/pkg/tsv"
	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
	exportPageSize  = 500
	maxExportPages  = 200
)

// ClinicalSource is the upstream holding a program's clinical data.
type ClinicalSource interface {
	ClinicalData(ctx context.Context, token, program string, filter graphql.ClinicalFilter) (graphql.ClinicalData, error)
	ClinicalSearchResults(ctx context.Context, token, program string, filter graphql.ClinicalFilter) (graphql.SearchResults, error)
}

type ExportRecorder interface {
	Record(ctx context.Context, rec exports.Record) exports.Record
}

type ClinicalHandler struct {
	source  ClinicalSource
	catalog dictionary.Catalog
	audit   ExportRecorder
}

func NewClinicalHandler(source ClinicalSource, catalog dictionary.Catalog, audit ExportRecorder) *ClinicalHandler {
	return &ClinicalHandler{source: source, catalog: catalog, audit: audit}
}

// Register expects r to be scoped to /programs/{shortName}.
func (h *ClinicalHandler) Register(r *mux.Router) {
	r.HandleFunc("/clinical/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/clinical/{entity}", h.handleTable).Methods(http.MethodGet)
	r.HandleFunc("/clinical/{entity}/export", h.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/clinical/{entity}/errors/export", h.handleErrorsExport).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/completion", h.handleCompletion).Methods(http.MethodGet)
}

type tableQuery struct {
	filter          graphql.ClinicalFilter
	sort            clinical.Sort
	completionStats bool
}

func parseTableQuery(r *http.Request) (tableQuery, error) {
	q := r.URL.Query()
	var out tableQuery

	page, err := intParam(q.Get("page"), 0)
	if err != nil || page < 0 {
		return out, fmt.Errorf("invalid page %q", q.Get("page"))
	}
	pageSize, err := intParam(q.Get("pageSize"), defaultPageSize)
	if err != nil || pageSize <= 0 || pageSize > maxPageSize {
		return out, fmt.Errorf("invalid pageSize %q", q.Get("pageSize"))
	}
	out.completionStats = true
	if raw := q.Get("completionStats"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return out, fmt.Errorf("invalid completionStats %q", raw)
		}
		out.completionStats = b
	}

	var donorIDs []int
	for _, raw := range listParam(q.Get("donorIds")) {
		id, ok := clinical.ParseDonorID(raw)
		if !ok {
			return out, fmt.Errorf("invalid donor id %q", raw)
		}
		donorIDs = append(donorIDs, id)
	}

	out.sort = clinical.ParseSort(q.Get("sort"))
	out.filter = graphql.ClinicalFilter{
		Page:              page,
		PageSize:          pageSize,
		Sort:              q.Get("sort"),
		DonorIDs:          donorIDs,
		SubmitterDonorIDs: listParam(q.Get("submitterDonorIds")),
		CompletionState:   q.Get("completionState"),
	}
	return out, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func listParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (h *ClinicalHandler) entity(r *http.Request) (string, dictionary.Entity, error) {
	return h.catalog.Lookup(mux.Vars(r)["entity"])
}

type tableResponse struct {
	ProgramShortName string                `json:"programShortName"`
	Entity           string                `json:"entity"`
	EntityName       string                `json:"entityName"`
	Title            string                `json:"title"`
	TotalDocs        int                   `json:"totalDocs"`
	Page             int                   `json:"page"`
	PageSize         int                   `json:"pageSize"`
	Columns          []clinical.Column     `json:"columns"`
	Rows             []clinical.DisplayRow `json:"rows"`
	CellErrors       []clinical.CellError  `json:"cellErrors"`
	ErrorGroups      []clinical.ErrorGroup `json:"errorGroups"`
}

func (h *ClinicalHandler) handleTable(w http.ResponseWriter, r *http.Request) {
	program := mux.Vars(r)["shortName"]
	slug, entity, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query, err := parseTableQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := query.filter
	filter.EntityTypes = []string{entity.Name}
	data, err := h.source.ClinicalData(r.Context(), middleware.TokenFromContext(r.Context()), program, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, _ := data.Entity(entity.Name)

	// The gateway already paginated; the synthesizer sees a single page.
	table, err := clinical.BuildTable(h.tableInput(entity, page, data.ClinicalErrors, query))
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.ObserveTable(slug)

	headers := entity.Headers()
	for i, col := range table.Columns {
		if display, ok := headers[col.Key]; ok {
			table.Columns[i].Header = display
		}
	}
	writeJSON(w, tableResponse{
		ProgramShortName: program,
		Entity:           slug,
		EntityName:       entity.Name,
		Title:            entity.Title,
		TotalDocs:        page.TotalDocs,
		Page:             filter.Page,
		PageSize:         filter.PageSize,
		Columns:          table.Columns,
		Rows:             table.Rows,
		CellErrors:       table.CellErrors(),
		ErrorGroups:      clinical.GroupErrors(entity.Name, data.ClinicalErrors),
	})
}

func (h *ClinicalHandler) tableInput(entity dictionary.Entity, page graphql.ClinicalEntity, errs []clinical.DonorErrors, query tableQuery) clinical.TableInput {
	fields := page.EntityFields
	if len(fields) == 0 {
		fields = entity.Fields
	}
	return clinical.TableInput{
		EntityName:          entity.Name,
		EntityFields:        fields,
		Records:             page.ClinicalRecords(),
		Errors:              errs,
		CompletionStats:     page.CompletionStats,
		ShowCompletionStats: query.completionStats,
		Sort:                query.sort,
	}
}

// fetchAll walks the gateway's pages until every document of the entity has
// been collected.
func (h *ClinicalHandler) fetchAll(ctx context.Context, program, entityName string, filter graphql.ClinicalFilter) (graphql.ClinicalEntity, []clinical.DonorErrors, error) {
	token := middleware.TokenFromContext(ctx)
	filter.EntityTypes = []string{entityName}
	filter.Page = 0
	filter.PageSize = exportPageSize

	all := graphql.ClinicalEntity{EntityName: entityName}
	var errs []clinical.DonorErrors
	for ; filter.Page < maxExportPages; filter.Page++ {
		data, err := h.source.ClinicalData(ctx, token, program, filter)
		if err != nil {
			return graphql.ClinicalEntity{}, nil, err
		}
		page, ok := data.Entity(entityName)
		if filter.Page == 0 {
			errs = data.ClinicalErrors
			all.EntityFields = page.EntityFields
			all.TotalDocs = page.TotalDocs
		}
		if !ok || len(page.Records) == 0 {
			break
		}
		all.Records = append(all.Records, page.Records...)
		all.CompletionStats = append(all.CompletionStats, page.CompletionStats...)
		if len(all.Records) >= all.TotalDocs {
			break
		}
	}
	if len(all.Records) < all.TotalDocs {
		logger.Log.WithFields(map[string]interface{}{
			"program":   program,
			"entity":    entityName,
			"collected": len(all.Records),
			"total":     all.TotalDocs,
		}).Warn("export truncated")
	}
	return all, errs, nil
}

func (h *ClinicalHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	program := mux.Vars(r)["shortName"]
	slug, entity, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query, err := parseTableQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	all, errs, err := h.fetchAll(r.Context(), program, entity.Name, query.filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	table, err := clinical.BuildTable(h.tableInput(entity, all, errs, query))
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := tsv.Options{
		Include:        listParam(r.URL.Query().Get("include")),
		Exclude:        listParam(r.URL.Query().Get("exclude")),
		Order:          table.ColumnKeys(),
		HeaderDisplays: entity.Headers(),
		FileName:       tsv.ReportFileName(slug),
	}
	doc := tsv.Export(table.Records(), opts)
	h.serveDocument(w, r, doc, exports.Record{
		Kind:    exports.KindEntity,
		Program: program,
		Entity:  slug,
		Options: exportOptions(query, opts),
	})
}

func (h *ClinicalHandler) handleErrorsExport(w http.ResponseWriter, r *http.Request) {
	program := mux.Vars(r)["shortName"]
	slug, entity, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := graphql.ClinicalFilter{EntityTypes: []string{entity.Name}, PageSize: 1}
	data, err := h.source.ClinicalData(r.Context(), middleware.TokenFromContext(r.Context()), program, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc := tsv.Export(clinical.ErrorRows(entity.Name, data.ClinicalErrors), tsv.Options{
		Order:          clinical.ErrorReportOrder,
		HeaderDisplays: clinical.ErrorReportHeaders,
		FileName:       tsv.ReportFileName(slug + "_errors"),
	})
	h.serveDocument(w, r, doc, exports.Record{
		Kind:    exports.KindErrors,
		Program: program,
		Entity:  slug,
	})
}

type dataURIResponse struct {
	FileName string `json:"fileName"`
	Rows     int    `json:"rows"`
	URI      string `json:"uri"`
}

// serveDocument sends doc as an attachment, or with ?format=datauri as a JSON
// data URI for clients that build the download link themselves.
func (h *ClinicalHandler) serveDocument(w http.ResponseWriter, r *http.Request, doc tsv.Document, rec exports.Record) {
	if r.URL.Query().Get("format") == "datauri" {
		writeJSON(w, dataURIResponse{FileName: doc.FileName, Rows: doc.Rows, URI: doc.DataURI()})
	} else if err := doc.WriteHTTP(w); err != nil {
		logger.Log.WithError(err).WithField("file", doc.FileName).Warn("tsv download interrupted")
	}
	metrics.ObserveExport(rec.Kind)

	if h.audit == nil {
		return
	}
	rec.FileName = doc.FileName
	rec.Rows = doc.Rows
	rec.RequestID = httpclient.RequestID(r.Context())
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		rec.Subject = claims.Subject
		rec.Email = claims.Context.User.Email
	}
	h.audit.Record(r.Context(), rec)
}

func exportOptions(query tableQuery, opts tsv.Options) map[string]interface{} {
	out := map[string]interface{}{
		"completionStats": query.completionStats,
	}
	if query.filter.Sort != "" {
		out["sort"] = query.filter.Sort
	}
	if len(opts.Include) > 0 {
		out["include"] = opts.Include
	}
	if len(opts.Exclude) > 0 {
		out["exclude"] = opts.Exclude
	}
	if len(query.filter.DonorIDs) > 0 {
		out["donorIds"] = query.filter.DonorIDs
	}
	if len(query.filter.SubmitterDonorIDs) > 0 {
		out["submitterDonorIds"] = query.filter.SubmitterDonorIDs
	}
	return out
}

type searchResponse struct {
	ProgramShortName string              `json:"programShortName"`
	TotalResults     int                 `json:"totalResults"`
	SearchResults    []searchResponseRow `json:"searchResults"`
}

type searchResponseRow struct {
	DonorID          string `json:"donorId"`
	SubmitterDonorID string `json:"submitterDonorId"`
}

func (h *ClinicalHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	program := mux.Vars(r)["shortName"]
	query, err := parseTableQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := query.filter
	if entities := listParam(r.URL.Query().Get("entityTypes")); len(entities) > 0 {
		for _, key := range entities {
			_, e, err := h.catalog.Lookup(key)
			if err != nil {
				writeError(w, r, err)
				return
			}
			filter.EntityTypes = append(filter.EntityTypes, e.Name)
		}
	}

	results, err := h.source.ClinicalSearchResults(r.Context(), middleware.TokenFromContext(r.Context()), program, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := make([]searchResponseRow, 0, len(results.SearchResults))
	for _, res := range results.SearchResults {
		rows = append(rows, searchResponseRow{
			DonorID:          clinical.FormatDonorID(res.DonorID),
			SubmitterDonorID: res.SubmitterDonorID,
		})
	}
	writeJSON(w, searchResponse{
		ProgramShortName: program,
		TotalResults:     results.TotalResults,
		SearchResults:    rows,
	})
}

type completionResponse struct {
	ProgramShortName string `json:"programShortName"`
	clinical.CompletionSummary
}

func (h *ClinicalHandler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	program := mux.Vars(r)["shortName"]
	all, _, err := h.fetchAll(r.Context(), program, clinical.EntityDonor, graphql.ClinicalFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, completionResponse{
		ProgramShortName:  program,
		CompletionSummary: clinical.SummarizeCompletion(all.CompletionStats),
	})
}
