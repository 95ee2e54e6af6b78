package clinical

// Synthetic core-completion column keys, in display order.
const (
	ColumnDonor            = "DO"
	ColumnPrimaryDiagnosis = "PD"
	ColumnNormalSpecimens  = "NS"
	ColumnTumourSpecimens  = "TS"
	ColumnTreatments       = "TR"
	ColumnFollowUps        = "FO"
)

var CompletionColumns = []string{
	ColumnDonor,
	ColumnPrimaryDiagnosis,
	ColumnNormalSpecimens,
	ColumnTumourSpecimens,
	ColumnTreatments,
	ColumnFollowUps,
}

// CompletionTitles are the long-form labels of the completion columns.
var CompletionTitles = map[string]string{
	ColumnDonor:            "Donor",
	ColumnPrimaryDiagnosis: "Primary Diagnosis",
	ColumnNormalSpecimens:  "Normal Specimens",
	ColumnTumourSpecimens:  "Tumour Specimens",
	ColumnTreatments:       "Treatments",
	ColumnFollowUps:        "Follow Ups",
}

// Missing-entity exceptions excuse these columns from completion errors.
var exceptionColumns = map[string]bool{
	ColumnTreatments: true,
	ColumnFollowUps:  true,
}

type CompletionValues struct {
	DO float64 `json:"DO"`
	PD float64 `json:"PD"`
	NS float64 `json:"NS"`
	TS float64 `json:"TS"`
	TR float64 `json:"TR"`
	FO float64 `json:"FO"`
}

func (c CompletionValues) Get(column string) float64 {
	switch column {
	case ColumnDonor:
		return c.DO
	case ColumnPrimaryDiagnosis:
		return c.PD
	case ColumnNormalSpecimens:
		return c.NS
	case ColumnTumourSpecimens:
		return c.TS
	case ColumnTreatments:
		return c.TR
	case ColumnFollowUps:
		return c.FO
	}
	return 0
}

// Complete reports whether every completion column equals 1.
func (c CompletionValues) Complete() bool {
	for _, col := range CompletionColumns {
		if c.Get(col) != 1 {
			return false
		}
	}
	return true
}

// Completion maps a donor's core completion and specimen breakdown to the six
// display values. A nil core yields all zeros.
//
// When the specimen core completion is 1 both specimen columns show 1. Otherwise
// each column shows the submission count while its percentage is below 1, so an
// incomplete cell says how many specimens were submitted.
func Completion(core *CoreCompletion, specimens *SpecimenCompletion) CompletionValues {
	if core == nil {
		return CompletionValues{}
	}
	out := CompletionValues{
		DO: core.Donor,
		PD: core.PrimaryDiagnosis,
		TR: core.Treatments,
		FO: core.FollowUps,
	}
	if specimens == nil {
		out.NS = core.Specimens
		out.TS = core.Specimens
		return out
	}
	if specimens.CoreCompletionPercentage == 1 {
		out.NS = 1
		out.TS = 1
		return out
	}
	out.NS = specimenValue(specimens.NormalSpecimensPercentage, specimens.NormalSubmissions)
	out.TS = specimenValue(specimens.TumourSpecimensPercentage, specimens.TumourSubmissions)
	return out
}

func specimenValue(percentage float64, submissions int) float64 {
	if percentage < 1 {
		return float64(submissions)
	}
	return percentage
}

// CompletionFor resolves the completion values of a single stat; nil means the
// donor has no stats.
func CompletionFor(stat *CompletionStat) CompletionValues {
	if stat == nil {
		return CompletionValues{}
	}
	return Completion(stat.CoreCompletion, stat.EntityData.Specimens)
}

// CompletionSummary is the dashboard view of a program's core completion.
type CompletionSummary struct {
	TotalDonors      int            `json:"totalDonors"`
	CompleteDonors   int            `json:"completeDonors"`
	IncompleteDonors int            `json:"incompleteDonors"`
	Columns          map[string]int `json:"columns"`
}

// SummarizeCompletion counts, per completion column, the donors whose value is 1.
func SummarizeCompletion(stats []CompletionStat) CompletionSummary {
	summary := CompletionSummary{Columns: make(map[string]int, len(CompletionColumns))}
	for _, col := range CompletionColumns {
		summary.Columns[col] = 0
	}
	for i := range stats {
		values := CompletionFor(&stats[i])
		summary.TotalDonors++
		if values.Complete() {
			summary.CompleteDonors++
		} else {
			summary.IncompleteDonors++
		}
		for _, col := range CompletionColumns {
			if values.Get(col) == 1 {
				summary.Columns[col]++
			}
		}
	}
	return summary
}
