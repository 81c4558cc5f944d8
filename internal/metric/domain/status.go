package domain

import "strings"

// Status is the lifecycle state of a metric definition.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

// transitions is the closed set of legal status moves. Transitions are
// monotonic: nothing ever returns to an earlier state.
var transitions = map[Status]map[Status]bool{
	StatusDraft: {
		StatusPublished: true,
		StatusArchived:  true,
	},
	StatusPublished: {
		StatusArchived: true,
	},
	StatusArchived: {},
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// Editable reports whether definition fields may still be mutated.
func (s Status) Editable() bool {
	return s == StatusDraft
}

// ParseStatus normalizes a raw status value.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// DataType is the result type of a metric expression.
type DataType string

const (
	DataTypeInteger  DataType = "INTEGER"
	DataTypeDecimal  DataType = "DECIMAL"
	DataTypeString   DataType = "STRING"
	DataTypeDate     DataType = "DATE"
	DataTypeDateTime DataType = "DATETIME"
)

var dataTypes = map[DataType]bool{
	DataTypeInteger:  true,
	DataTypeDecimal:  true,
	DataTypeString:   true,
	DataTypeDate:     true,
	DataTypeDateTime: true,
}

// Valid reports whether the data type is part of the closed set.
func (t DataType) Valid() bool {
	return dataTypes[t]
}

// ParseDataType normalizes a raw data type value.
func ParseDataType(raw string) (DataType, bool) {
	dataType := DataType(strings.ToUpper(strings.TrimSpace(raw)))
	if !dataType.Valid() {
		return "", false
	}
	return dataType, true
}
