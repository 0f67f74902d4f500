package site

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultSites []byte

// KeywordPlaceholder is substituted with the escaped keyword in search URL templates.
const KeywordPlaceholder = "{keyword}"

// Fields holds the ordered candidate selectors for each extracted field.
// A selector may end in "@attr" to read an attribute instead of text.
type Fields struct {
	Title []string `yaml:"title"`
	Price []string `yaml:"price"`
	Link  []string `yaml:"link"`
	Image []string `yaml:"image"`
}

// Config is the declarative description of one marketplace.
type Config struct {
	Key            string   `yaml:"key"`
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"base_url"`
	SearchURLs     []string `yaml:"search_urls"`
	CardSelector   string   `yaml:"card_selector"`
	ExpectedMarker string   `yaml:"expected_marker"`
	Fields         Fields   `yaml:"fields"`
	ExcludeTitles  []string `yaml:"exclude_titles"`
	ImageAttrs     []string `yaml:"image_attrs"`
}

type document struct {
	Sites []Config `yaml:"sites"`
}

// LoadConfigs reads the site table from path, or the built-in table when path is empty.
func LoadConfigs(path string) ([]Config, error) {
	data := defaultSites
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read sites file: %w", err)
		}
	}
	return ParseConfigs(data)
}

// ParseConfigs decodes and validates a YAML site table.
func ParseConfigs(data []byte) ([]Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sites: %w", err)
	}
	if len(doc.Sites) == 0 {
		return nil, errors.New("site table is empty")
	}
	for i := range doc.Sites {
		if err := doc.Sites[i].validate(); err != nil {
			return nil, fmt.Errorf("site %d (%s): %w", i, doc.Sites[i].Name, err)
		}
	}
	return doc.Sites, nil
}

func (c *Config) validate() error {
	c.Key = strings.TrimSpace(c.Key)
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Key == "" {
		c.Key = strings.ToLower(strings.ReplaceAll(c.Name, " ", "_"))
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if len(c.SearchURLs) == 0 {
		return errors.New("at least one search url is required")
	}
	for _, u := range c.SearchURLs {
		if !strings.Contains(u, KeywordPlaceholder) {
			return fmt.Errorf("search url %q has no %s placeholder", u, KeywordPlaceholder)
		}
	}
	if c.CardSelector == "" {
		return errors.New("card_selector is required")
	}
	if len(c.Fields.Title) == 0 || len(c.Fields.Link) == 0 {
		return errors.New("title and link selectors are required")
	}
	if len(c.ImageAttrs) == 0 {
		c.ImageAttrs = []string{"src", "data-src", "data-original"}
	}
	return nil
}
