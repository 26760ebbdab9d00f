package privacy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"

	"github.com/kagemask/kagemask/internal/pii"
)

// LoadPatterns reads and compiles the ordered pattern list from a YAML
// file. A missing file or an uncompilable expression fails the load;
// detection never runs with a partial pattern set.
func LoadPatterns(path string) ([]Pattern, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pii.NewProcessingError("regex", fmt.Sprintf("patterns file not found: %s", path), err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, pii.NewProcessingError("regex", fmt.Sprintf("failed to read patterns file: %s", path), err)
	}

	var specs []patternSpec
	if err := v.UnmarshalKey("patterns", &specs); err != nil {
		return nil, pii.NewProcessingError("regex", "failed to parse patterns file", err)
	}

	patterns := make([]Pattern, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, pii.NewProcessingError("regex", "pattern with empty name", nil)
		}
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return nil, pii.NewProcessingError("regex", fmt.Sprintf("invalid regex for pattern %q", spec.Name), err)
		}
		patterns = append(patterns, Pattern{
			Name:        spec.Name,
			Regexp:      re,
			Description: spec.Description,
		})
	}

	return patterns, nil
}
