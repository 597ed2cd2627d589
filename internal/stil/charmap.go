package stil

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// VectorCharMapper translates raw WFC characters into the characters
// the VCT channel columns carry. Characters without a mapping pass
// through unchanged; a mapping to the empty string drops the character.
type VectorCharMapper struct {
	mapping map[string]string
}

// defaultCharMapping is the accepted-input default table. High
// impedance renders as an unused channel.
func defaultCharMapping() map[string]string {
	return map[string]string{
		"Z": ".",
	}
}

// NewVectorCharMapper creates a mapper with the default table.
func NewVectorCharMapper() *VectorCharMapper {
	return &VectorCharMapper{mapping: defaultCharMapping()}
}

// AddMapping adds or replaces a single rule.
func (m *VectorCharMapper) AddMapping(stilChar, vctChar string) {
	m.mapping[stilChar] = vctChar
}

// RemoveMapping deletes a rule, reporting whether it existed.
func (m *VectorCharMapper) RemoveMapping(stilChar string) bool {
	if _, ok := m.mapping[stilChar]; ok {
		delete(m.mapping, stilChar)
		return true
	}
	return false
}

// MapChar maps one character, returning it unchanged when no rule
// applies.
func (m *VectorCharMapper) MapChar(stilChar string) string {
	if mapped, ok := m.mapping[stilChar]; ok {
		return mapped
	}
	return stilChar
}

// MapVector maps every character of a vector string.
func (m *VectorCharMapper) MapVector(vector string) string {
	var b strings.Builder
	b.Grow(len(vector))
	for _, r := range vector {
		b.WriteString(m.MapChar(string(r)))
	}
	return b.String()
}

// Mappings returns a copy of the current rules.
func (m *VectorCharMapper) Mappings() map[string]string {
	out := make(map[string]string, len(m.mapping))
	for k, v := range m.mapping {
		out[k] = v
	}
	return out
}

// LoadMappings merges a batch of rules into the table.
func (m *VectorCharMapper) LoadMappings(mappings map[string]string) {
	for k, v := range mappings {
		m.mapping[k] = v
	}
}

// Reset restores the default table.
func (m *VectorCharMapper) Reset() {
	m.mapping = defaultCharMapping()
}

// ParseMappingString parses a single "X=Y" rule. The right side may be
// empty, which drops the character from the output.
func (m *VectorCharMapper) ParseMappingString(rule string) bool {
	parts := strings.SplitN(rule, "=", 2)
	if len(parts) != 2 {
		return false
	}
	stilChar := strings.TrimSpace(parts[0])
	vctChar := strings.TrimSpace(parts[1])
	if stilChar == "" {
		return false
	}
	m.mapping[stilChar] = vctChar
	return true
}

// ParseMappingLines parses multi-line "X=Y" rules. Blank lines and
// lines starting with # are ignored. Returns the number of rules
// accepted.
func (m *VectorCharMapper) ParseMappingLines(lines string) int {
	count := 0
	for _, line := range strings.Split(strings.TrimSpace(lines), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m.ParseMappingString(line) {
			count++
		}
	}
	return count
}

// MappingString renders the table back into the "X=Y" line format.
func (m *VectorCharMapper) MappingString() string {
	keys := make([]string, 0, len(m.mapping))
	for k := range m.mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, m.mapping[k]))
	}
	return strings.Join(lines, "\n")
}

// ExportJSON writes the table to a JSON file.
func (m *VectorCharMapper) ExportJSON(path string) error {
	data, err := json.MarshalIndent(m.mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode char mappings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write char mappings: %w", err)
	}
	return nil
}

// ImportJSON merges rules from a JSON file into the table.
func (m *VectorCharMapper) ImportJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read char mappings: %w", err)
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to decode char mappings: %w", err)
	}
	m.LoadMappings(parsed)
	return nil
}
