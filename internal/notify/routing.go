package notify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// routingFile is the on-disk shape of the category routing table:
//
//	routes:
//	  like: site
//	  system: email
type routingFile struct {
	Routes map[string]string `yaml:"routes"`
}

var knownStrategyTypes = map[StrategyType]bool{
	StrategyDatabase: true,
	StrategySite:     true,
	StrategyEmail:    true,
	StrategySMS:      true,
	StrategyPush:     true,
}

// LoadRoutingFile reads a category routing table from a YAML file. Unknown
// strategy names are rejected so a typo in the file cannot silently reroute a
// category to the fallback.
func LoadRoutingFile(path string) (map[string]StrategyType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading notification routing file: %w", err)
	}
	return ParseRouting(raw)
}

// ParseRouting parses YAML routing table bytes.
func ParseRouting(raw []byte) (map[string]StrategyType, error) {
	var file routingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing notification routing: %w", err)
	}
	table := make(map[string]StrategyType, len(file.Routes))
	for category, name := range file.Routes {
		st := StrategyType(name)
		if !knownStrategyTypes[st] {
			return nil, fmt.Errorf("unknown notification strategy %q for category %q", name, category)
		}
		table[category] = st
	}
	return table, nil
}
