package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/genomics-portal/platform/pkg/clinical"
	"github.com/genomics-portal/platform/pkg/dictionary"
	"github.com/genomics-portal/platform/pkg/exports"
	"github.com/genomics-portal/platform/pkg/gateway/auth"
	"github.com/genomics-portal/platform/pkg/gateway/graphql"
)

type stubVerifier struct{}

// Tokens in tests are "<subject>|<scope>,<scope>".
func (stubVerifier) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid token")
	}
	c := &auth.Claims{}
	c.Subject = parts[0]
	c.Context.User.Email = parts[0] + "@example.org"
	c.Context.Scope = strings.Split(parts[1], ",")
	return c, nil
}

const readerToken = "reader|PROGRAMDATA-TEST-CA.READ"

type fakeSource struct {
	mu       sync.Mutex
	data     func(filter graphql.ClinicalFilter) (graphql.ClinicalData, error)
	search   graphql.SearchResults
	filters  []graphql.ClinicalFilter
	programs []string
}

func (f *fakeSource) ClinicalData(ctx context.Context, token, program string, filter graphql.ClinicalFilter) (graphql.ClinicalData, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.programs = append(f.programs, program)
	f.mu.Unlock()
	return f.data(filter)
}

func (f *fakeSource) ClinicalSearchResults(ctx context.Context, token, program string, filter graphql.ClinicalFilter) (graphql.SearchResults, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return f.search, nil
}

type recordingAudit struct {
	records []exports.Record
}

func (a *recordingAudit) Record(ctx context.Context, rec exports.Record) exports.Record {
	a.records = append(a.records, rec)
	return rec
}

func donorRecord(id, submitter, vital string) []clinical.Field {
	return []clinical.Field{
		{Name: "donor_id", Value: id},
		{Name: "submitter_donor_id", Value: submitter},
		{Name: "vital_status", Value: vital},
	}
}

func fullCompletion(id int) clinical.CompletionStat {
	return clinical.CompletionStat{
		DonorID:        id,
		CoreCompletion: &clinical.CoreCompletion{Donor: 1, PrimaryDiagnosis: 1, Specimens: 1, Treatments: 1, FollowUps: 1},
	}
}

func donorData() graphql.ClinicalData {
	return graphql.ClinicalData{
		ProgramShortName: "TEST-CA",
		ClinicalEntities: []graphql.ClinicalEntity{{
			EntityName:   clinical.EntityDonor,
			EntityFields: []string{"donor_id", "submitter_donor_id", "vital_status"},
			TotalDocs:    3,
			Records: [][]clinical.Field{
				donorRecord("1", "S1", "Alive"),
				donorRecord("2", "S2", "Dead?"),
				donorRecord("3", "S3", "Alive"),
			},
			CompletionStats: []clinical.CompletionStat{fullCompletion(1), {DonorID: 2}, fullCompletion(3)},
		}},
		ClinicalErrors: []clinical.DonorErrors{{
			DonorID:          2,
			SubmitterDonorID: "S2",
			Errors: []clinical.ErrorDetail{{
				EntityName: clinical.EntityDonor,
				ErrorType:  clinical.ErrorInvalidEnumValue,
				FieldName:  "vital_status",
				Message:    "The value is not permissible for this field.",
				Info:       clinical.ErrorInfo{Value: []string{"Dead?"}},
			}},
		}},
	}
}

func newTestGateway(source *fakeSource, audit *recordingAudit) http.Handler {
	return NewGatewayRouter(GatewayOptions{
		Verifier:   stubVerifier{},
		CookieName: "portal_token",
		Source:     source,
		Catalog:    dictionary.DefaultCatalog(),
		Audit:      audit,
	})
}

func doRequest(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClinicalTable(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	h := newTestGateway(source, &recordingAudit{})

	rec := doRequest(h, "/api/v1/programs/TEST-CA/clinical/donor?page=1&pageSize=10&sort=-donor_id&donorIds=DO1,2", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		EntityName  string                   `json:"entityName"`
		TotalDocs   int                      `json:"totalDocs"`
		Columns     []clinical.Column        `json:"columns"`
		Rows        []map[string]interface{} `json:"rows"`
		CellErrors  []clinical.CellError     `json:"cellErrors"`
		ErrorGroups []clinical.ErrorGroup    `json:"errorGroups"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.EntityName != clinical.EntityDonor || body.TotalDocs != 3 || len(body.Rows) != 3 {
		t.Fatalf("unexpected table %+v", body)
	}
	if body.Columns[0].Key != "donor_id" || body.Columns[1].Key != clinical.ColumnDonor || body.Columns[1].Header != "Donor" {
		t.Fatalf("expected completion columns after donor_id, got %+v", body.Columns[:2])
	}
	if body.Rows[0]["donor_id"] != "DO2" || body.Rows[1]["donor_id"] != "DO3" || body.Rows[2]["donor_id"] != "DO1" {
		t.Fatalf("expected errored donor first then descending ids, got %v %v %v", body.Rows[0]["donor_id"], body.Rows[1]["donor_id"], body.Rows[2]["donor_id"])
	}
	if len(body.ErrorGroups) != 1 || body.ErrorGroups[0].Entries != 1 {
		t.Fatalf("unexpected error groups %+v", body.ErrorGroups)
	}
	var vitalError bool
	for _, ce := range body.CellErrors {
		if ce.Row == 0 && ce.Column == "vital_status" {
			vitalError = true
		}
	}
	if !vitalError {
		t.Fatalf("expected vital_status cell error on first row, got %+v", body.CellErrors)
	}

	filter := source.filters[0]
	if filter.Page != 1 || filter.PageSize != 10 || filter.Sort != "-donor_id" || len(filter.EntityTypes) != 1 || filter.EntityTypes[0] != clinical.EntityDonor {
		t.Fatalf("unexpected upstream filter %+v", filter)
	}
	if len(filter.DonorIDs) != 2 || filter.DonorIDs[0] != 1 || filter.DonorIDs[1] != 2 {
		t.Fatalf("unexpected donor ids %v", filter.DonorIDs)
	}
}

func TestClinicalTableRequestValidation(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	h := newTestGateway(source, &recordingAudit{})

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{name: "no token", path: "/api/v1/programs/TEST-CA/clinical/donor", status: http.StatusUnauthorized},
		{name: "other program", path: "/api/v1/programs/OTHER-CA/clinical/donor", token: readerToken, status: http.StatusForbidden},
		{name: "unknown entity", path: "/api/v1/programs/TEST-CA/clinical/surgery_notes", token: readerToken, status: http.StatusNotFound},
		{name: "bad page size", path: "/api/v1/programs/TEST-CA/clinical/donor?pageSize=0", token: readerToken, status: http.StatusBadRequest},
		{name: "bad donor id", path: "/api/v1/programs/TEST-CA/clinical/donor?donorIds=DOx", token: readerToken, status: http.StatusBadRequest},
		{name: "bad completion flag", path: "/api/v1/programs/TEST-CA/clinical/donor?completionStats=maybe", token: readerToken, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := doRequest(h, tc.path, tc.token); rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
	if len(source.filters) != 0 {
		t.Fatalf("rejected requests must not reach the gateway, got %d calls", len(source.filters))
	}
}

func TestClinicalTableUpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "gateway forbids", err: fmt.Errorf("fetching: %w", &graphql.StatusError{StatusCode: http.StatusForbidden}), status: http.StatusForbidden},
		{name: "gateway down", err: fmt.Errorf("fetching: %w", &graphql.StatusError{StatusCode: http.StatusBadGateway}), status: http.StatusBadGateway},
		{name: "graphql unauthenticated", err: &graphql.Error{Operation: "ClinicalData", Errors: []graphql.ErrorMessage{{Message: "no", Extensions: map[string]interface{}{"code": "UNAUTHENTICATED"}}}}, status: http.StatusUnauthorized},
		{name: "timeout", err: fmt.Errorf("fetching: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return graphql.ClinicalData{}, tc.err }}
			rec := doRequest(newTestGateway(source, &recordingAudit{}), "/api/v1/programs/TEST-CA/clinical/donor", readerToken)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestClinicalTableWithoutCompletion(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	rec := doRequest(newTestGateway(source, &recordingAudit{}), "/api/v1/programs/TEST-CA/clinical/donor?completionStats=false", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"key":"DO"`) {
		t.Fatal("completion columns must be omitted when completionStats=false")
	}
}

func TestClinicalExport(t *testing.T) {
	// One record per gateway page to exercise paging.
	base := donorData()
	source := &fakeSource{data: func(filter graphql.ClinicalFilter) (graphql.ClinicalData, error) {
		data := donorData()
		ent := &data.ClinicalEntities[0]
		if filter.Page >= len(base.ClinicalEntities[0].Records) {
			ent.Records = nil
			ent.CompletionStats = nil
			return data, nil
		}
		ent.Records = ent.Records[filter.Page : filter.Page+1]
		ent.CompletionStats = ent.CompletionStats[filter.Page : filter.Page+1]
		return data, nil
	}}
	audit := &recordingAudit{}
	h := newTestGateway(source, audit)

	rec := doRequest(h, "/api/v1/programs/TEST-CA/clinical/donor/export?exclude=vital_status", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/tsv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="donor_report.tsv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}

	lines := strings.Split(rec.Body.String(), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines: %q", len(lines), rec.Body.String())
	}
	header := strings.Split(lines[0], "\t")
	if header[0] != "donor_id" || header[1] != "Donor" || header[len(header)-1] != "submitter_donor_id" {
		t.Fatalf("unexpected header %v", header)
	}
	if strings.Contains(lines[0], "vital_status") {
		t.Fatal("excluded column exported")
	}
	if !strings.HasPrefix(lines[1], "DO2\t") {
		t.Fatalf("expected errored donor first, got %q", lines[1])
	}

	if len(source.filters) != 3 || source.filters[0].PageSize != exportPageSize {
		t.Fatalf("expected three paged upstream calls, got %+v", source.filters)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit.records))
	}
	got := audit.records[0]
	if got.Kind != exports.KindEntity || got.Program != "TEST-CA" || got.Rows != 3 || got.Subject != "reader" || got.FileName != "donor_report.tsv" {
		t.Fatalf("unexpected audit record %+v", got)
	}
}

func TestClinicalErrorsExport(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	audit := &recordingAudit{}
	rec := doRequest(newTestGateway(source, audit), "/api/v1/programs/TEST-CA/clinical/donor/errors/export", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="donor_errors_report.tsv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	lines := strings.Split(rec.Body.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one error row, got %q", rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "Donor ID\tSubmitter Donor ID") || !strings.HasPrefix(lines[1], "DO2\tS2\tdonor\tvital_status\tDead?") {
		t.Fatalf("unexpected error report %q", rec.Body.String())
	}
	if len(audit.records) != 1 || audit.records[0].Kind != exports.KindErrors {
		t.Fatalf("unexpected audit records %+v", audit.records)
	}
}

func TestClinicalExportAsDataURI(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	audit := &recordingAudit{}
	rec := doRequest(newTestGateway(source, audit), "/api/v1/programs/TEST-CA/clinical/donor/errors/export?format=datauri", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("data URI replies are not attachments")
	}
	var body dataURIResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.FileName != "donor_errors_report.tsv" || body.Rows != 1 {
		t.Fatalf("unexpected reply %+v", body)
	}
	if !strings.HasPrefix(body.URI, "data:text/tsv;charset=utf-8,Donor%20ID%09") || strings.Contains(body.URI, "#") {
		t.Fatalf("unexpected data uri %q", body.URI)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected the download audited, got %d records", len(audit.records))
	}
}

func TestCompletionDashboard(t *testing.T) {
	source := &fakeSource{data: func(graphql.ClinicalFilter) (graphql.ClinicalData, error) { return donorData(), nil }}
	rec := doRequest(newTestGateway(source, &recordingAudit{}), "/api/v1/programs/TEST-CA/dashboard/completion", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		ProgramShortName string         `json:"programShortName"`
		TotalDonors      int            `json:"totalDonors"`
		CompleteDonors   int            `json:"completeDonors"`
		Columns          map[string]int `json:"columns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.ProgramShortName != "TEST-CA" || body.TotalDonors != 3 || body.CompleteDonors != 2 || body.Columns[clinical.ColumnDonor] != 2 {
		t.Fatalf("unexpected summary %+v", body)
	}
}

func TestClinicalSearch(t *testing.T) {
	source := &fakeSource{search: graphql.SearchResults{
		ProgramShortName: "TEST-CA",
		TotalResults:     1,
		SearchResults:    []graphql.SearchResult{{DonorID: 7, SubmitterDonorID: "S7"}},
	}}
	rec := doRequest(newTestGateway(source, &recordingAudit{}), "/api/v1/programs/TEST-CA/clinical/search?submitterDonorIds=S7&entityTypes=primary_diagnoses", readerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"donorId":"DO7"`) {
		t.Fatalf("expected formatted donor id, got %s", rec.Body.String())
	}
	filter := source.filters[0]
	if len(filter.EntityTypes) != 1 || filter.EntityTypes[0] != "primaryDiagnoses" || filter.SubmitterDonorIDs[0] != "S7" {
		t.Fatalf("unexpected search filter %+v", filter)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestGateway(&fakeSource{}, &recordingAudit{})
	if rec := doRequest(h, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	rec := doRequest(h, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "portal_http_requests_total") {
		t.Fatalf("expected prometheus exposition, got %d", rec.Code)
	}
}
