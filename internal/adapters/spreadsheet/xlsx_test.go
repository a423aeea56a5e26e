package spreadsheet

import (
	"bytes"
	"testing"

	"confreg/internal/domain/export"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXWriter_RoundTrip(t *testing.T) {
	table := export.Table{
		Sheet:  export.SheetName,
		Header: export.Columns,
		Rows: [][]string{
			{"1/2/2025", "sponsor", "Acme", "", "1 Main St", "", "Reno", "NV", "89501", "US", "775-5550100", "", "", "", "", "", "Yes"},
			{"1/3/2025", "vendor", "Booth Co", "https://booth.example.com", "2 Side St", "Unit 1", "Elko", "NV", "", "US", "775-5550101", "775-5550102", "vegan", "", "flight", "EKO", "No"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter().Write(&buf, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.SheetName}, f.GetSheetList())
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Columns, rows[0])
	assert.Equal(t, table.Rows[0], rows[1])
	assert.Equal(t, table.Rows[1], rows[2])
}

func TestXLSXWriter_DefaultSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter().Write(&buf, export.Table{Header: []string{"A"}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.SheetName}, f.GetSheetList())
}
