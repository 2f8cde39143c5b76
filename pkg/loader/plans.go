package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Plan is a named set of topic config values that topics opt into with
// their plan field.
type Plan struct {
	Alias  string            `json:"alias"`
	Config map[string]string `json:"-"`
}

// Plans maps a plan name to its definition.
type Plans map[string]Plan

type rawPlan struct {
	Alias  string         `json:"alias"`
	Config map[string]any `json:"config"`
}

type plansDocument struct {
	Plans map[string]rawPlan `json:"plans"`
}

// LoadPlans reads a plans document. An empty path yields nil plans.
func LoadPlans(path string) (Plans, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParsingError{File: path, Err: err}
	}
	return ParsePlans(path, data)
}

// ParsePlans decodes a plans document. Config values of any scalar type are
// kept in their textual form.
func ParsePlans(path string, data []byte) (Plans, error) {
	var doc plansDocument
	useNumber := func(d *json.Decoder) *json.Decoder {
		d.UseNumber()
		return d
	}
	if err := yaml.Unmarshal(data, &doc, useNumber); err != nil {
		return nil, &ParsingError{File: path, Err: err}
	}

	plans := make(Plans, len(doc.Plans))
	for name, raw := range doc.Plans {
		cfg := make(map[string]string, len(raw.Config))
		for k, v := range raw.Config {
			switch val := v.(type) {
			case string:
				cfg[k] = val
			case json.Number:
				cfg[k] = val.String()
			case bool:
				cfg[k] = fmt.Sprint(val)
			default:
				return nil, &ParsingError{File: path, Err: fmt.Errorf("plan %s: config %s must be a scalar", name, k)}
			}
		}
		plans[name] = Plan{Alias: raw.Alias, Config: cfg}
	}
	return plans, nil
}
