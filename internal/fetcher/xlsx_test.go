package fetcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// createTestXLSX builds a workbook with the sheets in order and returns
// its bytes.
func createTestXLSX(t *testing.T, names []string, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range names {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range sheets[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadXLSX_Basic(t *testing.T) {
	data := createTestXLSX(t, []string{"Sheet1"}, map[string][][]string{
		"Sheet1": {
			{"Deal Name", "Deal Value", "Sector"},
			{"Coal Survey", "2.5 Cr", "Mining"},
			{"Metro Mapping", "30L", "Railways"},
		},
	})

	rows, err := ReadXLSX(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Deal Name", "Deal Value", "Sector"}, rows[0])
	assert.Equal(t, []string{"Metro Mapping", "30L", "Railways"}, rows[2])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	data := createTestXLSX(t, []string{"Sheet1"}, map[string][][]string{
		"Sheet1": {
			{"Work Order Tracker"},
			{"Project Name", "Execution Status"},
			{"Coal Survey Phase 1", "Ongoing"},
		},
	})

	rows, err := ReadXLSX(data, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Project Name", "Execution Status"}, rows[0])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	names := []string{"Summary", "Work Orders"}
	data := createTestXLSX(t, names, map[string][][]string{
		"Summary":     {{"total", "3"}},
		"Work Orders": {{"Project Name"}, {"Metro"}},
	})

	rows, err := ReadXLSX(data, XLSXOptions{SheetName: "Work Orders"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Project Name"}, {"Metro"}}, rows)

	rows, err = ReadXLSX(data, XLSXOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Project Name"}, {"Metro"}}, rows)

	_, err = ReadXLSX(data, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, `sheet "Missing" not found`)

	_, err = ReadXLSX(data, XLSXOptions{SheetIndex: 5})
	assert.ErrorContains(t, err, "out of range")
}

func TestReadXLSX_TrailingBlankRows(t *testing.T) {
	data := createTestXLSX(t, []string{"Sheet1"}, map[string][][]string{
		"Sheet1": {{"a", "b"}, {"1", "2"}, {"", ""}, {""}},
	})

	rows, err := ReadXLSX(data, XLSXOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadXLSX_InvalidData(t *testing.T) {
	_, err := ReadXLSX([]byte("not a workbook"), XLSXOptions{})
	assert.Error(t, err)
}
