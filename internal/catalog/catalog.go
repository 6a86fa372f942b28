// Package catalog holds the read-only subject → topic reference table used
// by the selection form.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed subjects.json
var defaultSubjects []byte

// Subject is one entry of the reference catalog.
type Subject struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

// Catalog is an ordered, immutable subject list indexed by code.
type Catalog struct {
	subjects []Subject
	byCode   map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultSubjects)
}

// Load reads a catalog from a JSON file, or returns the default one when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a catalog from its JSON form: an array of
// {"code", "name", "topics"} objects.
func Parse(data []byte) (*Catalog, error) {
	var subjects []Subject
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{byCode: make(map[string]int, len(subjects))}
	for _, s := range subjects {
		if s.Code == "" {
			return nil, fmt.Errorf("parse catalog: subject %q has no code", s.Name)
		}
		if _, dup := c.byCode[s.Code]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate subject code %q", s.Code)
		}
		c.byCode[s.Code] = len(c.subjects)
		c.subjects = append(c.subjects, s)
	}
	return c, nil
}

// Subjects returns all subjects in catalog order.
func (c *Catalog) Subjects() []Subject {
	out := make([]Subject, len(c.subjects))
	copy(out, c.subjects)
	return out
}

// Topics returns the ordered topic list for a subject code, or nil when the
// code is unknown.
func (c *Catalog) Topics(code string) []string {
	i, ok := c.byCode[code]
	if !ok {
		return nil
	}
	topics := c.subjects[i].Topics
	out := make([]string, len(topics))
	copy(out, topics)
	return out
}

// Name returns the display name of a subject, falling back to the code.
func (c *Catalog) Name(code string) string {
	if i, ok := c.byCode[code]; ok {
		return c.subjects[i].Name
	}
	return code
}

// HasTopic reports whether topic belongs to the subject's list.
func (c *Catalog) HasTopic(code, topic string) bool {
	for _, t := range c.Topics(code) {
		if t == topic {
			return true
		}
	}
	return false
}
