package schema

import (
	"github.com/graphql-go/graphql"
)

// Source is implemented by result trees produced by the root resolvers.
type Source interface {
	Lookup(key string) (any, bool)
}

// FromSource resolves a nested field by its response key. Root resolvers shape
// the whole subtree up front, keyed by alias, so the same field requested
// under two aliases with different arguments keeps both values. An error
// stored in the tree is reported for this field only.
func FromSource(p graphql.ResolveParams) (interface{}, error) {
	key := ResponseKey(p.Info)
	var value any
	switch src := p.Source.(type) {
	case Source:
		value, _ = src.Lookup(key)
	case map[string]any:
		value = src[key]
	}
	if err, ok := value.(error); ok {
		return nil, err
	}
	return value, nil
}

// ResponseKey returns the alias of the field being resolved, or its name.
func ResponseKey(info graphql.ResolveInfo) string {
	if info.Path != nil {
		if key, ok := info.Path.Key.(string); ok {
			return key
		}
	}
	if len(info.FieldASTs) > 0 {
		field := info.FieldASTs[0]
		if field.Alias != nil && field.Alias.Value != "" {
			return field.Alias.Value
		}
		if field.Name != nil {
			return field.Name.Value
		}
	}
	return info.FieldName
}
