// Package brand holds the brand/variant table used to expand search keywords
// and to tag listing titles with a detected brand.
package brand

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var defaultBrands []byte

// Variant is one spelling of a brand name.
type Variant struct {
	Locale string `yaml:"locale"`
	Text   string `yaml:"text"`
}

// Brand is a canonical brand name with its spellings.
type Brand struct {
	Name     string    `yaml:"name"`
	Variants []Variant `yaml:"variants"`
}

// Table is the ordered brand table. It is immutable after loading.
type Table struct {
	brands []Brand
	byName map[string]int
}

// Load reads the brand table from path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	data := defaultBrands
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read brands file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes a YAML brand table. Every brand's own name is always a variant.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Brands []Brand `yaml:"brands"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse brands: %w", err)
	}
	if len(doc.Brands) == 0 {
		return nil, errors.New("brand table is empty")
	}

	t := &Table{byName: make(map[string]int, len(doc.Brands))}
	for _, b := range doc.Brands {
		b.Name = strings.TrimSpace(b.Name)
		if b.Name == "" {
			return nil, errors.New("brand without a name")
		}
		key := strings.ToLower(b.Name)
		if _, dup := t.byName[key]; dup {
			return nil, fmt.Errorf("duplicate brand %q", b.Name)
		}

		variants := []Variant{{Text: b.Name}}
		seen := map[string]bool{key: true}
		for _, v := range b.Variants {
			v.Text = strings.TrimSpace(v.Text)
			if v.Text == "" || seen[strings.ToLower(v.Text)] {
				continue
			}
			seen[strings.ToLower(v.Text)] = true
			variants = append(variants, v)
		}
		b.Variants = variants

		t.byName[key] = len(t.brands)
		t.brands = append(t.brands, b)
	}
	return t, nil
}

// Detect returns the first brand with a variant contained in title, ignoring
// case, or "" when none matches.
func (t *Table) Detect(title string) string {
	if title == "" {
		return ""
	}
	lower := strings.ToLower(title)
	for _, b := range t.brands {
		for _, v := range b.Variants {
			if strings.Contains(lower, strings.ToLower(v.Text)) {
				return b.Name
			}
		}
	}
	return ""
}

// Names lists the canonical brand names in table order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.brands))
	for _, b := range t.brands {
		out = append(out, b.Name)
	}
	return out
}

// Keywords returns the search keywords for the named brands: every variant of
// each brand, in table order. Unknown names are searched verbatim.
func (t *Table) Keywords(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if k := strings.ToLower(s); !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		i, ok := t.byName[strings.ToLower(n)]
		if !ok {
			add(n)
			continue
		}
		for _, v := range t.brands[i].Variants {
			add(v.Text)
		}
	}
	return out
}

// AllKeywords returns every variant of every brand.
func (t *Table) AllKeywords() []string {
	return t.Keywords(t.Names())
}
