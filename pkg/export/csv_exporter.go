package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Row is one line of a student's schedule: the catalog course code, the
// course title, the section number and the rendered meeting times.
type Row struct {
	Course  string
	Title   string
	Section string
	Meets   string
}

// Dataset is the schedule content handed to the exporters.
type Dataset struct {
	Rows []Row
}

var columns = []string{"Course", "Title", "Section", "Meets"}

// CSVExporter renders a schedule Dataset into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the schedule.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write([]string{row.Course, row.Title, row.Section, row.Meets}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
