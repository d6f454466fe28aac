package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching term anywhere in the column.
// Wildcards typed by the caller match literally under PostgreSQL's default
// backslash escape.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
