package privacy

import "regexp"

// Pattern is a single compiled detection pattern. Patterns are compiled
// once at construction and read-only afterwards, so a Detector can be
// shared by concurrent requests.
type Pattern struct {
	Name        string
	Regexp      *regexp.Regexp
	Description string
}

// patternSpec mirrors one entry of the patterns YAML file.
type patternSpec struct {
	Name        string `mapstructure:"name"`
	Regex       string `mapstructure:"regex"`
	Description string `mapstructure:"description"`
}
