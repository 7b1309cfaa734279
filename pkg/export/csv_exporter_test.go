package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduleFixture() Dataset {
	return Dataset{Rows: []Row{
		{Course: "CS 201", Title: "Data Structures", Section: "001", Meets: "MON 10:00-11:30; WED 10:00-11:30"},
		{Course: "MATH 110", Title: "Calculus I", Section: "002", Meets: "TUE 09:00-10:00"},
	}}
}

func TestCSVRenderWritesScheduleColumns(t *testing.T) {
	data, err := NewCSVExporter().Render(scheduleFixture())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Course", "Title", "Section", "Meets"}, records[0])
	assert.Equal(t, []string{"CS 201", "Data Structures", "001", "MON 10:00-11:30; WED 10:00-11:30"}, records[1])
	assert.Equal(t, "MATH 110", records[2][0])
}

func TestCSVRenderEmptySchedule(t *testing.T) {
	data, err := NewCSVExporter().Render(Dataset{})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	data, err := NewPDFExporter().Render(scheduleFixture(), "Class Schedule")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
