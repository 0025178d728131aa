package analysis

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/cinetrait/internal/validation"
)

//go:embed weights/default.yaml
var defaultWeights []byte

// maxCoefficient bounds every correlation and value weight in absolute terms.
const maxCoefficient = 1.0

// Tables holds the category→trait correlation matrix and the trait→value
// weight matrix. A Tables value is immutable once loaded and safe to share
// across goroutines.
type Tables struct {
	// Categories lists the category names the aggregator scores, in order.
	Categories []string
	// Correlations maps category → trait → signed coefficient.
	Correlations map[string]map[Trait]float64
	// ValueWeights maps value → trait → signed weight. Negative weights model
	// an inverse relationship with the trait.
	ValueWeights map[Value]map[Trait]float64
}

type tablesFile struct {
	Categories []string                      `yaml:"categories" validate:"required,min=1,unique,dive,required"`
	Traits     map[string]map[string]float64 `yaml:"traits" validate:"required,min=1"`
	Values     map[string]map[string]float64 `yaml:"values" validate:"required,min=1"`
}

// DefaultTables returns the embedded weight tables. It panics if the embedded
// file is invalid, which can only happen at build time.
func DefaultTables() *Tables {
	t, err := LoadTables(bytes.NewReader(defaultWeights))
	if err != nil {
		panic(fmt.Sprintf("embedded weight tables are invalid: %v", err))
	}
	return t
}

// LoadTablesFile reads weight tables from a YAML file on disk.
func LoadTablesFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening weights file: %w", err)
	}
	defer f.Close()

	t, err := LoadTables(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return t, nil
}

// LoadTables parses and validates weight tables from YAML.
func LoadTables(r io.Reader) (*Tables, error) {
	var raw tablesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing weight tables: %w", err)
	}
	if err := validation.Struct(&raw); err != nil {
		return nil, fmt.Errorf("invalid weight tables: %w", err)
	}

	known := make(map[string]bool, len(raw.Categories))
	for _, c := range raw.Categories {
		known[c] = true
	}

	t := &Tables{
		Categories:   append([]string(nil), raw.Categories...),
		Correlations: make(map[string]map[Trait]float64, len(raw.Traits)),
		ValueWeights: make(map[Value]map[Trait]float64, len(raw.Values)),
	}

	for _, category := range sortedKeys(raw.Traits) {
		if !known[category] {
			return nil, fmt.Errorf("correlations reference undeclared category %q", category)
		}
		row, err := traitRow(raw.Traits[category])
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		t.Correlations[category] = row
	}

	for _, name := range sortedKeys(raw.Values) {
		v := Value(name)
		if !isValue(v) {
			return nil, fmt.Errorf("unknown value %q", name)
		}
		row, err := traitRow(raw.Values[name])
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", name, err)
		}
		if !hasWeight(row) {
			return nil, fmt.Errorf("value %q has no non-zero trait weights", name)
		}
		t.ValueWeights[v] = row
	}
	for _, v := range Values {
		if _, ok := t.ValueWeights[v]; !ok {
			return nil, fmt.Errorf("missing weights for value %q", v)
		}
	}

	return t, nil
}

func traitRow(in map[string]float64) (map[Trait]float64, error) {
	row := make(map[Trait]float64, len(in))
	for name, coef := range in {
		tr := Trait(name)
		if !isTrait(tr) {
			return nil, fmt.Errorf("unknown trait %q", name)
		}
		if coef < -maxCoefficient || coef > maxCoefficient {
			return nil, fmt.Errorf("coefficient %v for %q outside [-%v, %v]", coef, name, maxCoefficient, maxCoefficient)
		}
		row[tr] = coef
	}
	return row, nil
}

func hasWeight(row map[Trait]float64) bool {
	for _, w := range row {
		if w != 0 {
			return true
		}
	}
	return false
}

func isTrait(t Trait) bool {
	for _, known := range Traits {
		if t == known {
			return true
		}
	}
	return false
}

func isValue(v Value) bool {
	for _, known := range Values {
		if v == known {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
