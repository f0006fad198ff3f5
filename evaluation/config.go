package evaluation

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// LoadConfig reads a benchmark configuration from a YAML or JSON file and
// validates every task type.
//
//	tasks:
//	  promoter:
//	    type: classification
//	    num_classes: 2
//	  expression:
//	    type: regression
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML or JSON document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	for name, task := range cfg.Tasks {
		if _, err := ParseTaskType(string(task.Type)); err != nil {
			return nil, errors.NewUnknownTaskTypeError(name, string(task.Type))
		}
	}
	return &cfg, nil
}
