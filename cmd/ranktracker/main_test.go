package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const categoriesJSON = `{"bestCategories":{"category1DepthList":[
	{"depth1Code":"10101","depth1Name":"의류","category2DepthList":[{"depth2Code":"ALL","depth2Name":"전체"},{"depth2Code":"10101201","depth2Name":"아우터"}]},
	{"depth1Code":"10102","depth1Name":"가방","category2DepthList":[{"depth2Code":"ALL","depth2Name":"전체"}]}
]}}`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RANK_REGISTRY_DIR", filepath.Join(dir, "registry"))
	t.Setenv("RANK_OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("RANK_WEBHOOK_URL", "")
	return dir
}

func TestCategoriesSaveAndCheck(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "best_categories.json")
	require.NoError(t, os.WriteFile(file, []byte(categoriesJSON), 0o644))

	out, err := runCLI(t, "categories", "save", file)
	require.NoError(t, err)
	require.Contains(t, out, "saved v1: 3 categories, 3 added, 0 removed")

	out, err = runCLI(t, "categories", "save", file)
	require.NoError(t, err)
	require.Contains(t, out, "unchanged (v1, 3 categories)")

	out, err = runCLI(t, "categories", "check", file)
	require.NoError(t, err)
	require.Contains(t, out, "no change (v1)")

	_, err = runCLI(t, "categories", "history", "--limit", "5")
	require.NoError(t, err)
}

func TestCategoriesSaveRejectsMissingFile(t *testing.T) {
	dir := setupEnv(t)
	_, err := runCLI(t, "categories", "save", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestReportArguments(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "report", "weekly", "2025", "3")
	require.Error(t, err)

	_, err = runCLI(t, "report", "weekly", "2025", "3", "9")
	require.Error(t, err)

	_, err = runCLI(t, "report", "monthly", "2025", "march")
	require.Error(t, err)
}

func TestReportWithoutDataIsSkipped(t *testing.T) {
	dir := setupEnv(t)

	_, err := runCLI(t, "report", "monthly", "2025", "3")
	require.NoError(t, err)
	require.NoDirExists(t, filepath.Join(dir, "output", "2025"))
}

func TestInvalidEnvironmentFails(t *testing.T) {
	setupEnv(t)
	t.Setenv("RANK_STORE_BACKEND", "mongo")

	_, err := runCLI(t, "categories", "history")
	require.Error(t, err)
}
