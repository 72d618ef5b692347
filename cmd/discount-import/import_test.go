package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestDecodeDefinition(t *testing.T) {
	d, err := decodeDefinition([]byte(`{"code":"SPRING","percent":20.5,"release_date":"2026-03-01T00:00:00Z",
		"expiration_date":"2026-06-01T00:00:00Z","max_users":500,"minimum_order_value":"50","extra":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, "SPRING", d.Code)
	assert.True(t, d.Percent.Equal(decimal.RequireFromString("20.5")))
	require.NotNil(t, d.MaxUsers)
	assert.Equal(t, 500, *d.MaxUsers)
	require.NotNil(t, d.MinimumOrderValue)
	assert.True(t, d.MinimumOrderValue.Equal(decimal.NewFromInt(50)))

	d, err = decodeDefinition([]byte(`{"code":"OPEN","percent":"5","expiration_date":"2026-06-01T00:00:00Z","max_users":null}`))
	require.NoError(t, err)
	assert.Nil(t, d.MaxUsers)
	assert.True(t, d.ReleaseDate.IsZero())
}

func TestDecodeDefinition_Invalid(t *testing.T) {
	for _, line := range []string{
		`{"percent":"5","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"X","percent":"101","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"X","percent":"-1","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"X","percent":"5"}`,
		`{"code":"X","percent":"5","release_date":"2026-07-01T00:00:00Z","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"X","percent":"5","expiration_date":"yesterday"}`,
		`{"code":"X","percent":"5","expiration_date":"2026-06-01T00:00:00Z","max_users":-3}`,
		`not json`,
	} {
		_, err := decodeDefinition([]byte(line))
		assert.Error(t, err, line)
	}
}

func TestReadAllAndDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "discounts1.jsonl.gz",
		`{"code":"A","percent":"10","expiration_date":"2026-06-01T00:00:00Z"}`,
		``,
		`{"code":"B","percent":"15","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"A","percent":"11","expiration_date":"2026-06-01T00:00:00Z"}`,
	)
	b := writeGz(t, dir, "discounts2.jsonl.gz",
		`{"code":"C","percent":"20","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"A","percent":"12","expiration_date":"2026-06-01T00:00:00Z"}`,
	)

	perFile, err := readAll(t.Context(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, perFile, 2)
	assert.Len(t, perFile[0], 3)
	assert.Len(t, perFile[1], 2)

	defs, dups := dedupe(perFile)
	assert.Equal(t, 2, dups)
	byCode := make(map[string]decimal.Decimal)
	var order []string
	for _, d := range defs {
		byCode[d.Code] = d.Percent
		order = append(order, d.Code)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
	assert.True(t, byCode["A"].Equal(decimal.NewFromInt(12)), "last definition wins")
}

func TestReadAll_BadLine(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "bad.jsonl.gz",
		`{"code":"A","percent":"10","expiration_date":"2026-06-01T00:00:00Z"}`,
		`{"code":"B","percent":"500","expiration_date":"2026-06-01T00:00:00Z"}`,
	)
	_, err := readAll(t.Context(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDedupe_Empty(t *testing.T) {
	defs, dups := dedupe(nil)
	assert.Empty(t, defs)
	assert.Zero(t, dups)
}
