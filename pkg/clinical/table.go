package clinical

import (
	"sort"
	"strconv"
	"strings"

	"github.com/genomics-portal/platform/pkg/tsv"
)

type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// ParseSort reads "field" or "-field" (descending).
func ParseSort(s string) Sort {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return Sort{Field: strings.TrimPrefix(s, "-"), Desc: true}
	}
	return Sort{Field: s}
}

func (s Sort) String() string {
	if s.Field == "" {
		return ""
	}
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// Page selects rows [Index*Size, (Index+1)*Size). Size 0 keeps every row.
type Page struct {
	Index int `json:"page"`
	Size  int `json:"pageSize"`
}

type TableInput struct {
	EntityName              string
	EntityFields            []string
	Records                 []Record
	Errors                  []DonorErrors
	CompletionStats         []CompletionStat
	MissingEntityExceptions []int
	ShowCompletionStats     bool
	Sort                    Sort
	Page                    Page
}

type Table struct {
	EntityName string       `json:"entityName"`
	Columns    []Column     `json:"columns"`
	Rows       []DisplayRow `json:"rows"`
	TotalRows  int          `json:"totalRows"`

	completion bool
	cellErrors map[cellKey][]ErrorDetail
}

type cellKey struct {
	donorID int
	field   string
}

type CellState struct {
	Error    bool     `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

// FormatDonorID renders a numeric donor id the way the portal displays it.
func FormatDonorID(id int) string {
	if id == 0 {
		return ""
	}
	return DonorIDPrefix + strconv.Itoa(id)
}

// ParseDonorID accepts "123" or "DO123".
func ParseDonorID(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), DonorIDPrefix)
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// displayDonorID prefixes a raw donor_id value. Values that are not positive
// numbers keep their text behind the prefix and map to donor 0.
func displayDonorID(raw string) (int, string) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), DonorIDPrefix)
	if trimmed == "" {
		return 0, ""
	}
	if id, ok := ParseDonorID(trimmed); ok && id > 0 {
		return id, FormatDonorID(id)
	}
	return 0, DonorIDPrefix + trimmed
}

// BuildTable synthesizes the display table of one clinical entity page.
// It is a pure function of its input.
func BuildTable(in TableInput) (Table, error) {
	if err := in.Validate(); err != nil {
		return Table{}, err
	}

	withCompletion := in.EntityName == EntityDonor && in.ShowCompletionStats
	table := Table{
		EntityName: in.EntityName,
		Columns:    buildColumns(in.EntityFields, in.Records, withCompletion),
		completion: withCompletion,
		cellErrors: make(map[cellKey][]ErrorDetail),
	}

	erroredDonors := make(map[int]bool)
	for _, de := range in.Errors {
		for _, e := range de.Errors {
			if !e.appliesTo(in.EntityName) {
				continue
			}
			erroredDonors[de.DonorID] = true
			key := cellKey{donorID: de.DonorID, field: e.FieldName}
			table.cellErrors[key] = append(table.cellErrors[key], e)
		}
	}

	stats := make(map[int]*CompletionStat, len(in.CompletionStats))
	for i := range in.CompletionStats {
		stats[in.CompletionStats[i].DonorID] = &in.CompletionStats[i]
	}
	exceptions := make(map[int]bool, len(in.MissingEntityExceptions))
	for _, id := range in.MissingEntityExceptions {
		exceptions[id] = true
	}

	rows := make([]DisplayRow, 0, len(in.Records))
	for _, rec := range in.Records {
		row := DisplayRow{Values: make(map[string]interface{}, len(table.Columns))}
		for _, col := range table.Columns {
			if !col.Completion {
				row.Values[col.Key] = ""
			}
		}
		for _, f := range rec.Fields {
			if f.Name == DonorIDField {
				row.DonorID, row.Values[f.Name] = displayDonorID(f.Value)
				continue
			}
			row.Values[f.Name] = f.Value
		}
		row.HasErrors = erroredDonors[row.DonorID]
		stat := stats[row.DonorID]
		row.HasMissingEntityException = exceptions[row.DonorID] || (stat != nil && stat.HasMissingEntityException)
		if withCompletion {
			values := CompletionFor(stat)
			for _, col := range CompletionColumns {
				row.Values[col] = values.Get(col)
			}
		}
		rows = append(rows, row)
	}

	sortRows(rows, in.Sort, len(erroredDonors) > 0)
	table.TotalRows = len(rows)
	table.Rows = paginate(rows, in.Page)
	return table, nil
}

// buildColumns starts from the declared fields and appends every field seen in
// the records, in first-seen order.
func buildColumns(declared []string, records []Record, withCompletion bool) []Column {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(declared))
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		keys = append(keys, name)
	}
	for _, name := range declared {
		add(name)
	}
	for _, rec := range records {
		for _, f := range rec.Fields {
			add(f.Name)
		}
	}

	columns := make([]Column, 0, len(keys)+len(CompletionColumns))
	for _, k := range keys {
		columns = append(columns, Column{Key: k, Header: k})
	}
	if !withCompletion {
		return columns
	}

	at := 0
	for i, c := range columns {
		if c.Key == DonorIDField {
			at = i + 1
			break
		}
	}
	completion := make([]Column, 0, len(CompletionColumns))
	for _, k := range CompletionColumns {
		completion = append(completion, Column{Key: k, Header: k, Completion: true})
	}
	out := make([]Column, 0, len(columns)+len(completion))
	out = append(out, columns[:at]...)
	out = append(out, completion...)
	out = append(out, columns[at:]...)
	return out
}

// sortRows orders rows by the requested key. When the entity has errors the
// rows of errored donors come first whatever the requested key.
func sortRows(rows []DisplayRow, s Sort, errorsFirst bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if errorsFirst && a.HasErrors != b.HasErrors {
			return a.HasErrors
		}
		if s.Field == "" {
			return false
		}
		c := compareValues(s.Field, a.Values[s.Field], b.Values[s.Field])
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(key string, a, b interface{}) int {
	as, bs := tsv.FormatValue(a), tsv.FormatValue(b)
	if key == DonorIDField {
		as = strings.TrimPrefix(as, DonorIDPrefix)
		bs = strings.TrimPrefix(bs, DonorIDPrefix)
	}
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(as, bs)
}

func paginate(rows []DisplayRow, p Page) []DisplayRow {
	if p.Size <= 0 {
		return rows
	}
	if len(rows) == 0 || p.Index > (len(rows)-1)/p.Size {
		return []DisplayRow{}
	}
	start := p.Index * p.Size
	end := start + p.Size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// ColumnKeys returns the column keys in display order.
func (t Table) ColumnKeys() []string {
	keys := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		keys = append(keys, c.Key)
	}
	return keys
}

// CellState derives the error state of one cell.
func (t Table) CellState(row DisplayRow, key string) CellState {
	var state CellState
	if t.completion && isCompletionColumn(key) {
		excused := row.HasMissingEntityException && exceptionColumns[key]
		if !excused && row.Value(key) != "1" {
			state.Error = true
		}
	}
	for _, e := range t.cellErrors[cellKey{donorID: row.DonorID, field: key}] {
		if errorMatchesCell(e, row.Value(key)) {
			state.Error = true
			state.Messages = append(state.Messages, e.DisplayMessage())
		}
	}
	return state
}

func errorMatchesCell(e ErrorDetail, value string) bool {
	switch e.ErrorType {
	case ErrorInvalidByScript, ErrorInvalidEnumValue:
		for _, v := range e.Info.Value {
			if v == value {
				return true
			}
		}
		return false
	case ErrorMissingRequired, ErrorUnrecognizedField:
		return true
	}
	return false
}

func isCompletionColumn(key string) bool {
	for _, c := range CompletionColumns {
		if c == key {
			return true
		}
	}
	return false
}

// CellError locates one errored cell of the visible rows.
type CellError struct {
	Row      int      `json:"row"`
	Column   string   `json:"column"`
	Messages []string `json:"messages,omitempty"`
}

// CellErrors lists every cell of the visible rows in error state.
func (t Table) CellErrors() []CellError {
	out := make([]CellError, 0)
	for i, row := range t.Rows {
		for _, col := range t.Columns {
			if state := t.CellState(row, col.Key); state.Error {
				out = append(out, CellError{Row: i, Column: col.Key, Messages: state.Messages})
			}
		}
	}
	return out
}

// Records returns the visible rows as flat records for export.
func (t Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]interface{}, len(row.Values))
		for k, v := range row.Values {
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out
}
