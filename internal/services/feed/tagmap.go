package feed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classification carries the taxonomy elements published per job. Entries
// come from the tag map file keyed by a lowercase title fragment; the
// "default" entry covers titles no fragment matches.
type Classification struct {
	Category       string `yaml:"category"`
	JobType        string `yaml:"jobtype"`
	JobFunction    string `yaml:"jobfunction"`
	JobIndustries  string `yaml:"jobindustries"`
	SeniorityLevel string `yaml:"senioritylevel"`
}

type tagMapFile struct {
	Recruiters      map[string]string         `yaml:"recruiters"`
	Classifications map[string]Classification `yaml:"classifications"`
}

// TagMap maps recruiter names to display tags and job titles to taxonomy
// classifications. Lookups are case-insensitive; unmapped recruiter names
// pass through unchanged.
type TagMap struct {
	entries      map[string]string
	classes      map[string]Classification
	defaultClass Classification
}

// LoadTagMap reads the recruiter and classification map from a YAML file.
// A missing path yields an empty map, which passes every name through and
// classifies every title with zero values.
func LoadTagMap(path string) (*TagMap, error) {
	tm := &TagMap{
		entries: make(map[string]string),
		classes: make(map[string]Classification),
	}
	if path == "" {
		return tm, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tm, nil
		}
		return nil, fmt.Errorf("failed to read tag map %s: %w", path, err)
	}

	var raw tagMapFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tag map %s: %w", path, err)
	}

	for name, tag := range raw.Recruiters {
		tm.entries[strings.ToLower(strings.TrimSpace(name))] = tag
	}
	for fragment, class := range raw.Classifications {
		key := strings.ToLower(strings.TrimSpace(fragment))
		if key == "default" {
			tm.defaultClass = class
			continue
		}
		tm.classes[key] = class
	}
	return tm, nil
}

// Resolve returns the display tag for a recruiter name
func (t *TagMap) Resolve(name string) string {
	if tag, ok := t.entries[strings.ToLower(strings.TrimSpace(name))]; ok {
		return tag
	}
	return name
}

// Classify returns the taxonomy entry for a job title. The longest fragment
// contained in the title wins, so "senior software engineer" beats
// "engineer" when both are configured.
func (t *TagMap) Classify(title string) Classification {
	lower := strings.ToLower(title)

	best := ""
	for fragment := range t.classes {
		if strings.Contains(lower, fragment) {
			if len(fragment) > len(best) {
				best = fragment
			}
		}
	}
	if best != "" {
		return t.classes[best]
	}
	return t.defaultClass
}
