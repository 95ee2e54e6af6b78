// Package clinical turns clinical entity pages fetched from the gateway into
// display tables: column synthesis, core-completion columns, error
// highlighting and error summaries.
package clinical

import (
	"encoding/json"

	"github.com/genomics-portal/platform/pkg/tsv"
)

const (
	EntityDonor   = "donor"
	DonorIDField  = "donor_id"
	DonorIDPrefix = "DO"
)

// Error types reported by the clinical service.
const (
	ErrorUnrecognizedField = "UNRECOGNIZED_FIELD"
	ErrorMissingRequired   = "MISSING_REQUIRED_FIELD"
	ErrorInvalidByScript   = "INVALID_BY_SCRIPT"
	ErrorInvalidEnumValue  = "INVALID_ENUM_VALUE"
)

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is one row of a clinical entity as returned by the gateway.
type Record struct {
	Row    int     `json:"row"`
	Fields []Field `json:"fields"`
}

type ErrorDetail struct {
	EntityName string    `json:"entityName"`
	ErrorType  string    `json:"errorType"`
	FieldName  string    `json:"fieldName"`
	Message    string    `json:"message"`
	Info       ErrorInfo `json:"info"`
}

// ErrorInfo carries the offending value(s) of a validation error. Upstream
// sends info.value either as a scalar or as a list.
type ErrorInfo struct {
	Value []string               `json:"value,omitempty"`
	Extra map[string]interface{} `json:"-"`
}

func (i *ErrorInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Value = nil
	i.Extra = nil
	for k, v := range raw {
		if k == "value" {
			i.Value = infoValues(v)
			continue
		}
		if i.Extra == nil {
			i.Extra = make(map[string]interface{})
		}
		i.Extra[k] = v
	}
	return nil
}

func infoValues(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, tsv.FormatValue(item))
		}
		return out
	default:
		return []string{tsv.FormatValue(t)}
	}
}

// DonorErrors groups the validation errors of a single donor.
type DonorErrors struct {
	DonorID          int           `json:"donorId"`
	SubmitterDonorID string        `json:"submitterDonorId"`
	Errors           []ErrorDetail `json:"errors"`
}

type CoreCompletion struct {
	Donor            float64 `json:"donor"`
	PrimaryDiagnosis float64 `json:"primaryDiagnosis"`
	Specimens        float64 `json:"specimens"`
	Treatments       float64 `json:"treatments"`
	FollowUps        float64 `json:"followUps"`
}

type SpecimenCompletion struct {
	NormalSpecimensPercentage float64 `json:"normalSpecimensPercentage"`
	TumourSpecimensPercentage float64 `json:"tumourSpecimensPercentage"`
	NormalSubmissions         int     `json:"normalSubmissions"`
	TumourSubmissions         int     `json:"tumourSubmissions"`
	CoreCompletionPercentage  float64 `json:"coreCompletionPercentage"`
}

type EntityData struct {
	Specimens *SpecimenCompletion `json:"specimens"`
}

type CompletionStat struct {
	DonorID                   int             `json:"donorId"`
	CoreCompletion            *CoreCompletion `json:"coreCompletion"`
	EntityData                EntityData      `json:"entityData"`
	HasMissingEntityException bool            `json:"hasMissingEntityException"`
}

// ErrorGroup aggregates identical errors across donors for the error summary.
type ErrorGroup struct {
	Entries      int    `json:"entries"`
	ErrorType    string `json:"errorType"`
	FieldName    string `json:"fieldName"`
	EntityName   string `json:"entityName"`
	ErrorMessage string `json:"errorMessage"`
}

type Column struct {
	Key        string `json:"key"`
	Header     string `json:"header"`
	Completion bool   `json:"completion,omitempty"`
}

// DisplayRow is a flat column-key to value mapping plus derived flags.
type DisplayRow struct {
	DonorID                   int
	Values                    map[string]interface{}
	HasMissingEntityException bool
	HasErrors                 bool
}

func (r DisplayRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Values)+2)
	for k, v := range r.Values {
		out[k] = v
	}
	out["hasMissingEntityException"] = r.HasMissingEntityException
	out["hasErrors"] = r.HasErrors
	return json.Marshal(out)
}

// Value returns the display value of key formatted as a string.
func (r DisplayRow) Value(key string) string {
	return tsv.FormatValue(r.Values[key])
}
