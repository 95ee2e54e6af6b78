package clinical

import (
	"fmt"
	"strings"
)

type errorGroupKey struct {
	errorType string
	message   string
	fieldName string
}

// appliesTo reports whether an error belongs to the table of entity. Errors
// without an entity name are donor-level and apply everywhere.
func (e ErrorDetail) appliesTo(entity string) bool {
	return e.EntityName == "" || e.EntityName == entity
}

// DisplayMessage is the user-facing message for an error.
func (e ErrorDetail) DisplayMessage() string {
	if e.ErrorType == ErrorUnrecognizedField {
		entity := e.EntityName
		if entity == "" {
			entity = "submitted"
		}
		return fmt.Sprintf("%s is not a field within the latest dictionary. Please remove this from the %s file before submitting.", e.FieldName, entity)
	}
	return e.Message
}

// GroupErrors collapses the errors of entity into one group per
// (errorType, message, fieldName), counting affected entries. Groups keep the
// order in which their first error was seen.
func GroupErrors(entity string, donorErrors []DonorErrors) []ErrorGroup {
	index := make(map[errorGroupKey]int)
	groups := make([]ErrorGroup, 0)
	for _, de := range donorErrors {
		for _, e := range de.Errors {
			if !e.appliesTo(entity) {
				continue
			}
			key := errorGroupKey{errorType: e.ErrorType, message: e.Message, fieldName: e.FieldName}
			if i, ok := index[key]; ok {
				groups[i].Entries++
				continue
			}
			index[key] = len(groups)
			groups = append(groups, ErrorGroup{
				Entries:      1,
				ErrorType:    e.ErrorType,
				FieldName:    e.FieldName,
				EntityName:   e.EntityName,
				ErrorMessage: e.DisplayMessage(),
			})
		}
	}
	return groups
}

// Error report columns.
var ErrorReportOrder = []string{"donorId", "submitterDonorId", "entityName", "fieldName", "value", "errorType", "message"}

var ErrorReportHeaders = map[string]string{
	"donorId":          "Donor ID",
	"submitterDonorId": "Submitter Donor ID",
	"entityName":       "Entity",
	"fieldName":        "Field with Error",
	"value":            "Error Value",
	"errorType":        "Error Type",
	"message":          "Error Description",
}

// ErrorRows flattens the errors of entity into one record per error for the
// error report download.
func ErrorRows(entity string, donorErrors []DonorErrors) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0)
	for _, de := range donorErrors {
		for _, e := range de.Errors {
			if !e.appliesTo(entity) {
				continue
			}
			rows = append(rows, map[string]interface{}{
				"donorId":          FormatDonorID(de.DonorID),
				"submitterDonorId": de.SubmitterDonorID,
				"entityName":       e.EntityName,
				"fieldName":        e.FieldName,
				"value":            strings.Join(e.Info.Value, ", "),
				"errorType":        e.ErrorType,
				"message":          e.DisplayMessage(),
			})
		}
	}
	return rows
}
