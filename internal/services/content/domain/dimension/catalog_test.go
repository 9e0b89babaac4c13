package dimension

import (
	"errors"
	"strings"
	"testing"
)

const sampleConfig = `
dimensions:
  language:
    default: en
    values:
      en:
        specializations:
          en_US:
          en_GB: {}
      de:
        specializations:
          de_CH:
            constraints:
              market:
                "*": false
                ch: true
  market:
    default: world
    values:
      world: {}
      ch: {}
      us:
        constraints:
          language:
            "*": false
            en_US: true
`

func TestParseYAMLKeepsDeclarationOrder(t *testing.T) {
	catalog, err := ParseYAML(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := strings.Join(catalog.Identifiers(), ","); got != "language,market" {
		t.Fatalf("identifiers = %s, want language,market", got)
	}
	language, _ := catalog.Dimension("language")
	if got := strings.Join(language.Values(), ","); got != "en,en_US,en_GB,de,de_CH" {
		t.Fatalf("language values = %s", got)
	}
	if depth, _ := language.Depth("de_CH"); depth != 1 {
		t.Fatalf("depth(de_CH) = %d, want 1", depth)
	}
	if language.Default() != "en" {
		t.Fatalf("default = %q, want en", language.Default())
	}
}

func TestCatalogAllowsCombination(t *testing.T) {
	catalog, err := ParseYAML(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tests := []struct {
		coords map[string]string
		want   bool
	}{
		{coords: map[string]string{"language": "en", "market": "world"}, want: true},
		{coords: map[string]string{"language": "en_US", "market": "us"}, want: true},
		{coords: map[string]string{"language": "en", "market": "us"}, want: false},
		{coords: map[string]string{"language": "de_CH", "market": "ch"}, want: true},
		{coords: map[string]string{"language": "de_CH", "market": "world"}, want: false},
	}
	for _, tt := range tests {
		if got := catalog.AllowsCombination(tt.coords); got != tt.want {
			t.Fatalf("AllowsCombination(%v) = %v, want %v", tt.coords, got, tt.want)
		}
	}
}

func TestCatalogValidate(t *testing.T) {
	catalog, err := ParseYAML(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := catalog.Validate(map[string]string{"language": "en", "market": "world"}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := catalog.Validate(map[string]string{"language": "en"}); err == nil {
		t.Fatal("expected missing dimension to fail")
	}
	if err := catalog.Validate(map[string]string{"language": "fr", "market": "world"}); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
	if err := catalog.Validate(map[string]string{"language": "en", "channel": "web"}); err == nil {
		t.Fatal("expected unknown dimension to fail")
	}
	if got := catalog.Defaults(); got["language"] != "en" || got["market"] != "world" {
		t.Fatalf("defaults = %v", got)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "no values", doc: "language:\n  default: en\n", want: ErrValuesAreMissing},
		{name: "undeclared default", doc: "language:\n  default: fr\n  values:\n    en: {}\n", want: ErrDefaultValueIsMissing},
		{name: "scalar dimension", doc: "language: en\n", want: ErrInvalidConfig},
		{name: "bad constraint", doc: "language:\n  default: en\n  values:\n    en:\n      constraints:\n        market:\n          us: maybe\n", want: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseYAMLEmptyDocument(t *testing.T) {
	catalog, err := ParseYAML(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if catalog.Len() != 0 {
		t.Fatalf("len = %d, want 0", catalog.Len())
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	a, _ := New("language", []Value{{Value: "en"}}, "en")
	b, _ := New("language", []Value{{Value: "de"}}, "de")
	if _, err := NewCatalog(a, b); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
