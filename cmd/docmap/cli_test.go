package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docmap version: dev")
	assert.Contains(t, out, "Go version: go")

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}

func TestConvertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "doc.json", `{"_id":{"$oid":"64b7f0c2a1b2c3d4e5f60718"},"title":"Dune","pages":412}`)
	bin := filepath.Join(dir, "doc.bson")

	_, err := run(t, "convert", "--to", "bson", "--out", bin, src)
	require.NoError(t, err)

	out, err := run(t, "convert", "--to", "json", bin)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":{"$oid":"64b7f0c2a1b2c3d4e5f60718"},"title":"Dune","pages":412}`, out)

	out, err = run(t, "convert", "--to", "json", "--canonical", bin)
	require.NoError(t, err)
	assert.Contains(t, out, `{"$numberInt":"412"}`)

	_, err = run(t, "convert", "--to", "xml", src)
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docmap.yaml", "mapping:\n  discriminator_key: kind\nserver:\n  port: 9999\n")

	out, err := run(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "discriminator_key: kind")
	assert.Contains(t, out, "port: 9999")
	assert.Contains(t, out, "backend: memory")

	_, err = run(t, "--config", filepath.Join(dir, "missing.yaml"), "config")
	assert.Error(t, err)
}

func TestPutAndGetWithSQLite(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "docs.db")
	cfgPath := writeFile(t, dir, "docmap.yaml", "store:\n  backend: sqlite\n  sql:\n    dsn: "+dsn+"\n")
	doc := writeFile(t, dir, "book.json", `{"_id":"dune","title":"Dune"}`)

	out, err := run(t, "--config", cfgPath, "put", "books", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "stored")

	out, err = run(t, "--config", cfgPath, "get", "books", "dune")
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"dune","title":"Dune"}`, strings.TrimSpace(out))

	_, err = run(t, "--config", cfgPath, "get", "books", "missing")
	assert.Error(t, err)
}

func TestPutAppliesDatastoreSettings(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "docs.db")
	cfgPath := writeFile(t, dir, "docmap.yaml", "mapping:\n  discriminator_key: kind\ndecode:\n  max_depth: 2\nstore:\n  backend: sqlite\n  sql:\n    dsn: "+dsn+"\n")

	doc := writeFile(t, dir, "book.json", `{"_id":"dune","title":"Dune"}`)
	_, err := run(t, "--config", cfgPath, "put", "--discriminator", "novel", "books", doc)
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "get", "books", "dune")
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"dune","title":"Dune","kind":"novel"}`, strings.TrimSpace(out))

	deep := writeFile(t, dir, "deep.json", `{"_id":"deep","a":{"b":{"c":1}}}`)
	_, err = run(t, "--config", cfgPath, "put", "books", deep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum nesting depth")
}

func TestFilterCommand(t *testing.T) {
	out, err := run(t, "filter", "age", "gte", "21", "tags", "in", `["go","db"]`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":{"$gte":21},"tags":{"$in":["go","db"]}}`, strings.TrimSpace(out))

	out, err = run(t, "filter", "--or", "name", "eq", "ada", "name", "eq", "grace")
	require.NoError(t, err)
	assert.JSONEq(t, `{"$or":[{"name":"ada"},{"name":"grace"}]}`, strings.TrimSpace(out))

	_, err = run(t, "filter", "tags", "exists", "yes")
	assert.Error(t, err, "strict types reject a non-boolean exists")

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "docmap.yaml", "criteria:\n  strict_types: false\n")
	out, err = run(t, "--config", cfgPath, "filter", "tags", "exists", "yes")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags":{"$exists":"yes"}}`, strings.TrimSpace(out))

	_, err = run(t, "filter", "age", "gte")
	assert.Error(t, err)
	_, err = run(t, "filter", "age", "near", "1")
	assert.Error(t, err)
}
