// Package sqlutil provides SQL utility functions.
package sqlutil

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QualifiedColumn renders alias.column with both parts quoted.
// An empty alias yields the bare quoted column.
func QualifiedColumn(alias, column string) string {
	if alias == "" {
		return QuoteIdentifier(column)
	}
	return fmt.Sprintf("%s.%s", QuoteIdentifier(alias), QuoteIdentifier(column))
}

// TableAs renders "table AS alias" for FROM and JOIN clauses.
func TableAs(table, alias string) string {
	if alias == "" || alias == table {
		return QuoteIdentifier(table)
	}
	return fmt.Sprintf("%s AS %s", QuoteIdentifier(table), QuoteIdentifier(alias))
}
