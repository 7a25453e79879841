package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/antflydb/vecindex/truncate"
)

// Descriptor is the YAML-interpreted form of a ModelSpec, for callers
// (the CLI) that don't want to hand-compile a ModelSpec in Go for every
// model.
type Descriptor struct {
	Name                       string   `yaml:"name"`
	FieldOrder                 []string `yaml:"field_order"`
	SemanticFields             []string `yaml:"semantic_fields"`
	KeywordFields              []string `yaml:"keyword_fields"`
	KeyFields                  []string `yaml:"key_fields"`
	RequiredFields             []string `yaml:"required_fields"`
	TruncationStrategyOverride string   `yaml:"truncation_strategy_override,omitempty"`
	NameLike                   bool     `yaml:"name_like,omitempty"`
	ProseLike                  bool     `yaml:"prose_like,omitempty"`
}

// LoadDescriptors reads a YAML file containing a list of model
// descriptors and compiles each into a *ModelSpec backed by a
// presence/required-field validator.
func LoadDescriptors(path string) ([]*ModelSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model descriptors %s: %w", path, err)
	}
	var descs []Descriptor
	if err := yaml.Unmarshal(b, &descs); err != nil {
		return nil, fmt.Errorf("parsing model descriptors %s: %w", path, err)
	}

	specs := make([]*ModelSpec, 0, len(descs))
	for _, d := range descs {
		spec, err := compile(d)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", d.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func compile(d Descriptor) (*ModelSpec, error) {
	required := make(map[string]bool, len(d.RequiredFields))
	for _, f := range d.RequiredFields {
		required[f] = true
	}

	validator := ValidatorFunc(func(record map[string]string) (Row, error) {
		row := make(Row, len(d.FieldOrder))
		for _, f := range d.FieldOrder {
			v, present := record[f]
			if required[f] && (!present || v == "") {
				return nil, &ValidationError{Field: f, Reason: "required field missing or empty"}
			}
			if present {
				row[f] = v
			}
		}
		return row, nil
	})

	return NewModelSpec(ModelSpec{
		Name:                       d.Name,
		FieldOrder:                 d.FieldOrder,
		SemanticFields:             d.SemanticFields,
		KeywordFields:              d.KeywordFields,
		KeyFields:                  d.KeyFields,
		Validator:                  validator,
		TruncationStrategyOverride: truncate.Strategy(d.TruncationStrategyOverride),
		Hints:                      truncate.ModelHints{NameLike: d.NameLike, ProseLike: d.ProseLike},
	})
}
