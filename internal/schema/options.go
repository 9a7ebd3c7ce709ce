package schema

// Options control join, distinct and aggregate behavior of the generated API.
type Options struct {
	// DefaultDistinct marks top-level queries distinct when a to-many
	// association is selected.
	DefaultDistinct bool `mapstructure:"default_distinct"`
	// UseDistinctParameter exposes a distinct argument on plural queries that
	// overrides DefaultDistinct per request.
	UseDistinctParameter bool `mapstructure:"use_distinct_parameter"`
	// ToManyDefaultOptional keeps parents without related rows when a to-many
	// association is selected without a filter.
	ToManyDefaultOptional bool `mapstructure:"to_many_default_optional"`
	// EnableAggregate exposes the aggregate field on plural queries.
	EnableAggregate bool `mapstructure:"enable_aggregate"`
	// DefaultLimit caps top-level lists requested without a page limit.
	// Zero means unbounded.
	DefaultLimit int `mapstructure:"default_limit"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultDistinct:       true,
		UseDistinctParameter:  false,
		ToManyDefaultOptional: true,
		EnableAggregate:       true,
	}
}
