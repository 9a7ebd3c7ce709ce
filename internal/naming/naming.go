package naming

import (
	"log/slog"
	"strings"
)

// Namer derives API names from storage names. Model files may override any
// name explicitly; the Namer only fills in what metadata leaves blank.
type Namer struct {
	config Config
	logger *slog.Logger
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// EntityName converts a table name to a singular PascalCase entity name.
// Example: "task_variables" -> "TaskVariable"
func (n *Namer) EntityName(tableName string) string {
	name := toPascalCase(tableName)
	if name == "" {
		return name
	}
	return n.validateTypeAndSuffix(n.Singularize(name))
}

// PluralName returns the plural root query name for an entity.
// Example: "TaskVariable" -> "TaskVariables"
func (n *Namer) PluralName(entityName string) string {
	plural := n.Pluralize(entityName)
	if plural == entityName {
		// Uncountable nouns would collide with the singular lookup field.
		plural = entityName + "List"
	}
	return plural
}

// FieldName converts a column name to a camelCase field name.
// Example: "user_name" -> "userName"
func (n *Namer) FieldName(columnName string) string {
	return n.validateFieldAndSuffix(toCamelCase(columnName))
}

// ToOneName generates the field name for an owning to-one association from
// its first join column, with common key suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ToOneName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// ToManyName generates the field name for an inverse to-many association.
// When the source table references the target only once the pluralized table
// name is used; otherwise the join column disambiguates.
// Example: unique: "comments" -> "comments"
// Example: shared, fkColumn="author_id": "posts" -> "authorPosts"
func (n *Namer) ToManyName(sourceTable, fkColumn string, unique bool) string {
	tablePlural := n.Pluralize(toCamelCase(sourceTable))
	if unique {
		return n.validateFieldAndSuffix(tablePlural)
	}

	prefix := n.ToOneName(fkColumn)
	if len(tablePlural) > 0 {
		return n.validateFieldAndSuffix(prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:])
	}
	return prefix
}

// ManyToManyName generates the field name for an association through a junction table.
// Example: "roles" -> "roles", "role" -> "roles"
func (n *Namer) ManyToManyName(targetTable string) string {
	return n.validateFieldAndSuffix(n.Pluralize(toCamelCase(targetTable)))
}

// DisambiguateAssociation returns a name for a derived association that does
// not clash with a taken field name.
func (n *Namer) DisambiguateAssociation(name string, toOne bool, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	suffixed := name + "Rel"
	if toOne {
		suffixed = name + "Ref"
	}
	n.logger.Warn("association name collides with existing field, auto-suffixed",
		slog.String("original", name),
		slog.String("renamed", suffixed),
	)
	return suffixed
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	out := strings.Join(parts, "")
	if len(out) > 0 && parts[0] != "" {
		out = strings.ToLower(out[:1]) + out[1:]
	}
	return out
}
