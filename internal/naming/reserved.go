package naming

import "strings"

// reservedTypeWords contains GraphQL keywords, built-in and generated types
// that entity names must not shadow.
var reservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	// Built-in and registry scalars
	"int":           true,
	"float":         true,
	"string":        true,
	"boolean":       true,
	"id":            true,
	"long":          true,
	"bigdecimal":    true,
	"biginteger":    true,
	"localdate":     true,
	"localtime":     true,
	"localdatetime": true,
	"datetime":      true,
	"uuid":          true,
	"bytes":         true,
	"object":        true,

	// Shared schema inputs
	"orderby":        true,
	"pageinput":      true,
	"nonnegativeint": true,
	"positiveint":    true,

	"true":  true,
	"false": true,
	"null":  true,
}

// GeneratedSuffixes are appended to entity names by the schema builder to
// name the derived input and aggregate types.
var GeneratedSuffixes = []string{
	"Where", "ExistsWhere", "OrderInput", "Field", "Association",
	"Aggregate", "AggregateBy", "Group",
}

// isReservedTypeName checks if a type name is reserved.
func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return reservedTypeWords[lowerName]
}

// isReservedFieldName checks if a field name is reserved.
func isReservedFieldName(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "__")
}
