// Package brief defines the campaign brief data model and its boundary
// validation. A brief is parsed once per run and treated as immutable.
package brief

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template references a design document shared by every rendition.
type Template struct {
	FileID   string `yaml:"file_id"`
	Filename string `yaml:"filename"`
}

// Product is one product entry in a campaign brief. Image and Prompt are
// both optional, but at least one must be present for the product to yield
// renditions.
type Product struct {
	Name   string `yaml:"name"`
	FileID string `yaml:"file_id"`
	Image  string `yaml:"image"`
	Prompt string `yaml:"prompt"`
}

// HasImage reports whether the product references a local image file.
func (p Product) HasImage() bool {
	return strings.TrimSpace(p.Image) != ""
}

// HasPrompt reports whether the product carries a generation prompt.
func (p Product) HasPrompt() bool {
	return strings.TrimSpace(p.Prompt) != ""
}

// Brief is a parsed campaign brief. FileName is the brief's source filename
// (extension included); it names both the output subdirectory and the remote
// namespace. Dir is the directory template and image paths resolve against.
type Brief struct {
	CampaignName    string     `yaml:"campaign_name"`
	Templates       []Template `yaml:"templates"`
	Products        []Product  `yaml:"products"`
	TargetAudience  string     `yaml:"target_audience"`
	TargetMarket    string     `yaml:"target_market"`
	CampaignMessage string     `yaml:"campaign_message"`

	FileName string `yaml:"-"`
	Dir      string `yaml:"-"`
}

// TemplatePath resolves a template's local path against the brief directory.
func (b *Brief) TemplatePath(t Template) string {
	return filepath.Join(b.Dir, t.Filename)
}

// ImagePath resolves a product's local image path against the brief directory.
func (b *Brief) ImagePath(p Product) string {
	return filepath.Join(b.Dir, p.Image)
}

// Load reads and parses a campaign brief from a YAML file.
func Load(path string) (*Brief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief: %w", err)
	}

	var b Brief
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse brief %s: %w", filepath.Base(path), err)
	}

	b.FileName = filepath.Base(path)
	b.Dir = filepath.Dir(path)
	b.trim()

	return &b, nil
}

// Discover returns the campaign brief files in dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var briefs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			briefs = append(briefs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(briefs)

	return briefs, nil
}

func (b *Brief) trim() {
	b.CampaignName = strings.TrimSpace(b.CampaignName)
	b.TargetAudience = strings.TrimSpace(b.TargetAudience)
	b.TargetMarket = strings.TrimSpace(b.TargetMarket)
	b.CampaignMessage = strings.TrimSpace(b.CampaignMessage)
	for i := range b.Templates {
		b.Templates[i].FileID = strings.TrimSpace(b.Templates[i].FileID)
		b.Templates[i].Filename = strings.TrimSpace(b.Templates[i].Filename)
	}
	for i := range b.Products {
		b.Products[i].Name = strings.TrimSpace(b.Products[i].Name)
		b.Products[i].FileID = strings.TrimSpace(b.Products[i].FileID)
		b.Products[i].Image = strings.TrimSpace(b.Products[i].Image)
		b.Products[i].Prompt = strings.TrimSpace(b.Products[i].Prompt)
	}
}
