package models

import (
	"strings"
	"time"
)

// ExportTimeLayout is the timestamp layout used in tabular alias exports
const ExportTimeLayout = "2006-01-02 15:04:05"

// CounterpartyAlias maps one free-text name to a canonical business entity
type CounterpartyAlias struct {
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	Alias      string    `json:"alias"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
}

// NormalizeAlias is the comparison key for aliases and display names:
// surrounding whitespace removed, case folded.
func NormalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key returns the normalized alias text
func (a *CounterpartyAlias) Key() string {
	return NormalizeAlias(a.Alias)
}

// Equals compares two aliases by value
func (a *CounterpartyAlias) Equals(other *CounterpartyAlias) bool {
	if other == nil {
		return false
	}
	return a.EntityID == other.EntityID &&
		a.EntityName == other.EntityName &&
		a.Alias == other.Alias &&
		a.CreatedAt.Equal(other.CreatedAt) &&
		a.CreatedBy == other.CreatedBy
}

// AliasExportRow is the flat shape handed to spreadsheet-style reporters
type AliasExportRow struct {
	EntityID           string `json:"entity_id"`
	EntityName         string `json:"entity_name"`
	Alias              string `json:"alias"`
	CreatedAtFormatted string `json:"created_at"`
	CreatedBy          string `json:"created_by"`
}

// ExportColumns are the default presentation labels for AliasExportRow.
// Callers may replace them with localized labels.
var ExportColumns = []string{"Entity ID", "Entity Name", "Alias", "Created At", "Created By"}

// Values returns the row in ExportColumns order
func (r AliasExportRow) Values() []string {
	return []string{r.EntityID, r.EntityName, r.Alias, r.CreatedAtFormatted, r.CreatedBy}
}
