package graphql

import (
	"context"
	"fmt"

	"github.com/genomics-portal/platform/pkg/clinical"
)

const clinicalDataQuery = `query ClinicalData($programShortName: String!, $filters: ClinicalInput!) {
  clinicalData(programShortName: $programShortName, filters: $filters) {
    programShortName
    clinicalEntities {
      entityName
      entityFields
      totalDocs
      records {
        name
        value
      }
      completionStats {
        donorId
        hasMissingEntityException
        coreCompletion {
          donor
          primaryDiagnosis
          specimens
          treatments
          followUps
        }
        entityData {
          specimens {
            coreCompletionPercentage
            normalSpecimensPercentage
            tumourSpecimensPercentage
            normalSubmissions
            tumourSubmissions
          }
        }
      }
    }
    clinicalErrors {
      donorId
      submitterDonorId
      errors {
        errorType
        fieldName
        entityName
        message
        info {
          value
        }
      }
    }
  }
}`

const clinicalSearchQuery = `query ClinicalSearchResults($programShortName: String!, $filters: ClinicalInput!) {
  clinicalSearchResults(programShortName: $programShortName, filters: $filters) {
    programShortName
    totalResults
    searchResults {
      donorId
      submitterDonorId
    }
  }
}`

// ClinicalFilter mirrors the gateway's ClinicalInput.
type ClinicalFilter struct {
	EntityTypes       []string `json:"entityTypes,omitempty"`
	Page              int      `json:"page"`
	PageSize          int      `json:"pageSize,omitempty"`
	Sort              string   `json:"sort,omitempty"`
	DonorIDs          []int    `json:"donorIds,omitempty"`
	SubmitterDonorIDs []string `json:"submitterDonorIds,omitempty"`
	CompletionState   string   `json:"completionState,omitempty"`
}

func (f ClinicalFilter) variables(program string) map[string]interface{} {
	return map[string]interface{}{
		"programShortName": program,
		"filters":          f,
	}
}

type ClinicalEntity struct {
	EntityName      string                    `json:"entityName"`
	EntityFields    []string                  `json:"entityFields"`
	TotalDocs       int                       `json:"totalDocs"`
	Records         [][]clinical.Field        `json:"records"`
	CompletionStats []clinical.CompletionStat `json:"completionStats"`
}

// ClinicalRecords numbers the raw records by their position in the page.
func (e ClinicalEntity) ClinicalRecords() []clinical.Record {
	out := make([]clinical.Record, 0, len(e.Records))
	for i, fields := range e.Records {
		out = append(out, clinical.Record{Row: i, Fields: fields})
	}
	return out
}

type ClinicalData struct {
	ProgramShortName string                 `json:"programShortName"`
	ClinicalEntities []ClinicalEntity       `json:"clinicalEntities"`
	ClinicalErrors   []clinical.DonorErrors `json:"clinicalErrors"`
}

func (d ClinicalData) Entity(name string) (ClinicalEntity, bool) {
	for _, e := range d.ClinicalEntities {
		if e.EntityName == name {
			return e, true
		}
	}
	return ClinicalEntity{}, false
}

type SearchResult struct {
	DonorID          int    `json:"donorId"`
	SubmitterDonorID string `json:"submitterDonorId"`
}

type SearchResults struct {
	ProgramShortName string         `json:"programShortName"`
	TotalResults     int            `json:"totalResults"`
	SearchResults    []SearchResult `json:"searchResults"`
}

// ClinicalData fetches one page of clinical entities and the program's errors.
func (c *Client) ClinicalData(ctx context.Context, token, program string, filter ClinicalFilter) (ClinicalData, error) {
	var out struct {
		ClinicalData ClinicalData `json:"clinicalData"`
	}
	req := Request{Operation: "ClinicalData", Query: clinicalDataQuery, Variables: filter.variables(program)}
	if err := c.DoCached(ctx, token, req, &out); err != nil {
		return ClinicalData{}, fmt.Errorf("fetching clinical data for %s: %w", program, err)
	}
	return out.ClinicalData, nil
}

func (c *Client) ClinicalSearchResults(ctx context.Context, token, program string, filter ClinicalFilter) (SearchResults, error) {
	var out struct {
		ClinicalSearchResults SearchResults `json:"clinicalSearchResults"`
	}
	req := Request{Operation: "ClinicalSearchResults", Query: clinicalSearchQuery, Variables: filter.variables(program)}
	if err := c.DoCached(ctx, token, req, &out); err != nil {
		return SearchResults{}, fmt.Errorf("searching clinical data for %s: %w", program, err)
	}
	return out.ClinicalSearchResults, nil
}
