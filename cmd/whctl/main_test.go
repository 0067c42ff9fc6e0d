package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

const stockCSV = "Label,Length (cm),Width (cm),Height (cm),Volume (m3),Weight (kg),Site,Client Name,Client Email,Colour\n" +
	"Oak wardrobe,120,60,200,1.44,85,Leith,Acme Storage,ops@acme.test,brown\n" +
	"Pine desk,100,50,75,0.38,0,Leith,Acme Storage,ops@acme.test,white\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMapCommand(t *testing.T) {
	path := writeFile(t, "stock.csv", stockCSV)

	out, err := run(t, "map", path)
	require.NoError(t, err)
	assert.Contains(t, out, "stock.csv")
	assert.Contains(t, out, "10 columns, 2 rows")
	assert.Contains(t, out, "client_email")
	assert.Contains(t, out, "(ignored)")
	assert.NotContains(t, out, "Required fields without a column")
}

func TestMapCommand_JSON(t *testing.T) {
	path := writeFile(t, "stock.csv", "Label,Pallet No\nSofa,P-1\n")

	out, err := run(t, "map", path, "--json")
	require.NoError(t, err)

	var got struct {
		Rows             int                      `json:"rows"`
		Mapping          []importer.ColumnMapping `json:"mapping"`
		UnmappedRequired []string                 `json:"unmapped_required"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, []importer.ColumnMapping{
		{Source: "Label", Target: importer.FieldLabel},
		{Source: "Pallet No", Target: importer.FieldPalletNo},
	}, got.Mapping)
	assert.Contains(t, got.UnmappedRequired, importer.FieldSite)
}

func TestMapCommand_MappingFile(t *testing.T) {
	path := writeFile(t, "stock.csv", "A,B\nSofa,P-1\n")
	mapping := writeFile(t, "mapping.json", `[{"csv_column":"A","db_field":"label"},{"csv_column":"B","db_field":"label"}]`)

	_, err := run(t, "map", path, "--mapping", mapping)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapped more than once")
}

func TestImportCommand_DryRun(t *testing.T) {
	path := writeFile(t, "stock.csv", stockCSV)

	out, err := run(t, "import", path, "--dry-run")
	require.ErrorIs(t, err, errRowsFailed)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "Validation completed: 1 succeeded, 1 failed")
	assert.Contains(t, out, "row 2:")
	assert.Contains(t, out, "weight")
}

func TestImportCommand_DryRunJSON(t *testing.T) {
	path := writeFile(t, "stock.csv", stockCSV)

	out, err := run(t, "import", path, "--dry-run", "--json")
	require.Error(t, err)

	var res importer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
}

func TestCommands_FileErrors(t *testing.T) {
	_, err := run(t, "map", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = run(t, "map", writeFile(t, "stock.pdf", "%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, err = run(t, "map", writeFile(t, "big.csv", stockCSV), "--max-size", "16")
	assert.ErrorIs(t, err, importer.ErrFileTooLarge)

	_, err = run(t, "map")
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS inventory_units")
}

func TestProfileFlag(t *testing.T) {
	path := writeFile(t, "stock.csv", stockCSV)

	out, err := run(t, "map", path, "--profile", "inventory")
	require.NoError(t, err)
	assert.Contains(t, out, "client_email")

	_, err = run(t, "map", path, "-p", "payroll")
	require.ErrorIs(t, err, importer.ErrUnknownProfile)
	assert.Contains(t, err.Error(), "available: inventory")
}

func TestImportCommand_RefusesUnmappedRequiredFields(t *testing.T) {
	path := writeFile(t, "stock.csv", "Label,Pallet No\nSofa,P-1\n")

	out, err := run(t, "import", path, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required field not mapped")
	assert.Contains(t, err.Error(), importer.FieldSite)
	assert.Empty(t, out)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, importer.ErrFileTooLarge)
	assert.Contains(t, buf.String(), "Error: file too large")
	assert.Contains(t, buf.String(), "(Code: FILE001)")

	buf.Reset()
	printError(&buf, errRowsFailed)
	assert.Contains(t, buf.String(), "some rows failed")
	assert.NotContains(t, buf.String(), "Code:")
}
