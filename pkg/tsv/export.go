// Package tsv serializes flat records to tab-separated downloads.
package tsv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const (
	ContentType     = "text/tsv"
	DefaultFileName = "data.tsv"
)

type Options struct {
	Exclude        []string
	Include        []string
	Order          []string
	FileName       string
	HeaderDisplays map[string]string
}

// Document is a rendered TSV file.
type Document struct {
	FileName string
	Headers  []string
	Keys     []string
	Body     string
	Rows     int
}

// ReportFileName is the download name of a report for level (entity, program...).
func ReportFileName(level string) string {
	return level + "_report.tsv"
}

// Export renders records as TSV. The columns are the union of the keys of all
// records, filtered by Include/Exclude and arranged by Order. Keys absent from
// Order follow the ordered ones, sorted by name.
func Export(records []map[string]interface{}, opts Options) Document {
	keys := selectKeys(records, opts)

	headers := make([]string, 0, len(keys))
	for _, k := range keys {
		if display, ok := opts.HeaderDisplays[k]; ok && display != "" {
			headers = append(headers, display)
		} else {
			headers = append(headers, k)
		}
	}

	lines := make([]string, 0, len(records)+1)
	lines = append(lines, strings.Join(headers, "\t"))
	for _, rec := range records {
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, FormatValue(rec[k]))
		}
		lines = append(lines, strings.Join(fields, "\t"))
	}

	fileName := opts.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}
	return Document{
		FileName: fileName,
		Headers:  headers,
		Keys:     keys,
		Body:     strings.Join(lines, "\n"),
		Rows:     len(records),
	}
}

func selectKeys(records []map[string]interface{}, opts Options) []string {
	seen := make(map[string]bool)
	var all []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				all = append(all, k)
			}
		}
	}

	var included []string
	if opts.Include != nil {
		allowed := toSet(opts.Include)
		for _, k := range all {
			if allowed[k] {
				included = append(included, k)
			}
		}
	} else {
		included = all
	}

	excluded := toSet(opts.Exclude)
	keys := make([]string, 0, len(included))
	for _, k := range included {
		if !excluded[k] {
			keys = append(keys, k)
		}
	}

	position := make(map[string]int, len(opts.Order))
	for i, k := range opts.Order {
		if _, dup := position[k]; !dup {
			position[k] = i
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, iok := position[keys[i]]
		pj, jok := position[keys[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

// FormatValue renders a cell value as TSV text. nil is the empty string.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// DataURI returns the document as a data URI suitable for an anchor download.
func (d Document) DataURI() string {
	encoded := EncodeURI("data:" + ContentType + ";charset=utf-8," + d.Body)
	// EncodeURI leaves '#' alone; unescaped it would start a URI fragment.
	return strings.ReplaceAll(encoded, "#", "%23")
}

// WriteHTTP sends the document as a file attachment.
func (d Document) WriteHTTP(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Body)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(d.Body))
	return err
}
