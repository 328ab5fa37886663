package dataset

import (
	"fmt"
	"strings"
)

// Rubric is a grading rubric: a description and the criteria for 1, 3 and
// 5 points.
type Rubric struct {
	Category string
	Labels   []string
	Values   []string
}

// LoadRubric reads a rubric CSV: a header row and one data row with the
// columns description, 1pt, 3pt, 5pt.
func (m *Manifest) LoadRubric(c Category) (*Rubric, error) {
	path := m.RubricPath(c)
	records, err := ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubric for %s: %w", c.Name, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("rubric %s has no criteria row", path)
	}
	header, row := records[0], records[1]
	if len(row) < 4 {
		return nil, fmt.Errorf("rubric %s needs description, 1pt, 3pt and 5pt columns, got %d", path, len(row))
	}

	r := &Rubric{Category: c.Name}
	for i, v := range row {
		label := fmt.Sprintf("column %d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			label = strings.TrimSpace(header[i])
		}
		r.Labels = append(r.Labels, label)
		r.Values = append(r.Values, strings.TrimSpace(v))
	}
	return r, nil
}

// String renders the rubric as "label: criterion" lines for the judge prompt.
func (r *Rubric) String() string {
	var sb strings.Builder
	for i, label := range r.Labels {
		if r.Values[i] == "" {
			continue
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(r.Values[i])
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
