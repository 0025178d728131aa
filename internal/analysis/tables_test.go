package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"reflect"
	"testing"
)

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()

	want := []string{"melodrama", "comic", "violent", "imaginative", "exciting"}
	if !reflect.DeepEqual(tables.Categories, want) {
		t.Errorf("Categories = %v, want %v", tables.Categories, want)
	}
	if got := tables.Correlations["imaginative"][Openness]; got != 0.18 {
		t.Errorf("imaginative/openness = %v, want 0.18", got)
	}
	if got := tables.ValueWeights[HarmonyStability][Neuroticism]; got != -0.4 {
		t.Errorf("harmony_stability/neuroticism = %v, want -0.4", got)
	}
	for _, v := range Values {
		if _, ok := tables.ValueWeights[v]; !ok {
			t.Errorf("missing weights for %s", v)
		}
	}
}

const minimalTables = `
categories: [drama]
traits:
  drama:
    openness: 0.1
values:
  creativity_innovation: {openness: 1}
  social_connection: {extraversion: 1}
  achievement_success: {conscientiousness: 1}
  harmony_stability: {agreeableness: 1}
  authenticity_depth: {neuroticism: -1}
`

func TestLoadTables_Minimal(t *testing.T) {
	tables, err := LoadTables(strings.NewReader(minimalTables))
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}

	if !reflect.DeepEqual(tables.Categories, []string{"drama"}) {
		t.Errorf("Categories = %v", tables.Categories)
	}
	if !reflect.DeepEqual(tables.Correlations["drama"], map[Trait]float64{Openness: 0.1}) {
		t.Errorf("Correlations[drama] = %v", tables.Correlations["drama"])
	}
}

func TestLoadTables_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed",
			yaml:    "categories: [",
			wantErr: "parsing weight tables",
		},
		{
			name:    "unknown field",
			yaml:    minimalTables + "extra: true\n",
			wantErr: "parsing weight tables",
		},
		{
			name:    "no categories",
			yaml:    strings.Replace(minimalTables, "categories: [drama]", "categories: []", 1),
			wantErr: "invalid weight tables",
		},
		{
			name:    "duplicate category",
			yaml:    strings.Replace(minimalTables, "categories: [drama]", "categories: [drama, drama]", 1),
			wantErr: "invalid weight tables",
		},
		{
			name:    "undeclared category",
			yaml:    strings.Replace(minimalTables, "  drama:\n    openness", "  horror:\n    openness", 1),
			wantErr: `undeclared category "horror"`,
		},
		{
			name:    "unknown trait",
			yaml:    strings.Replace(minimalTables, "openness: 0.1", "curiosity: 0.1", 1),
			wantErr: `unknown trait "curiosity"`,
		},
		{
			name:    "coefficient out of range",
			yaml:    strings.Replace(minimalTables, "openness: 0.1", "openness: 1.5", 1),
			wantErr: "outside",
		},
		{
			name:    "unknown value",
			yaml:    minimalTables + "  wealth: {openness: 1}\n",
			wantErr: `unknown value "wealth"`,
		},
		{
			name:    "missing value",
			yaml:    strings.Replace(minimalTables, "  authenticity_depth: {neuroticism: -1}\n", "", 1),
			wantErr: `missing weights for value "authenticity_depth"`,
		},
		{
			name:    "value without weights",
			yaml:    strings.Replace(minimalTables, "{neuroticism: -1}", "{neuroticism: 0}", 1),
			wantErr: `value "authenticity_depth" has no non-zero trait weights`,
		},
		{
			name:    "empty value row",
			yaml:    strings.Replace(minimalTables, "{openness: 1}", "{}", 1),
			wantErr: `value "creativity_innovation" has no non-zero trait weights`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTables(strings.NewReader(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTablesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte(minimalTables), 0o600); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadTablesFile(path)
	if err != nil {
		t.Fatalf("LoadTablesFile: %v", err)
	}
	if len(tables.Categories) != 1 || tables.Categories[0] != "drama" {
		t.Errorf("Categories = %v", tables.Categories)
	}

	if _, err := LoadTablesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}
