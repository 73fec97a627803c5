package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	main "github.com/fwojciec/autoprobe/cmd/autoprobe"
	"github.com/fwojciec/autoprobe/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testContext returns a background context for tests.
func testContext() context.Context {
	return context.Background()
}

const catalogPatternYAML = `version: v2
name: catalog
root:
  name: page
  node_type: list-item
  children:
    - name: heading
      node_type: field
      selector: {selector_type: css, selector_text: h1}
      extraction_type: text
    - name: products
      node_type: list
      children:
        - name: product
          node_type: list-item
          selector: {selector_type: css, selector_text: li.product}
          children:
            - name: title
              node_type: field
              selector: {selector_type: css, selector_text: .title}
              extraction_type: text
            - name: stock
              node_type: field
              selector: {selector_type: css, selector_text: .stock}
              extraction_type: text
              default_value: 0
`

const catalogHTML = `<html><body>
<h1>Winter Sale</h1>
<ul>
  <li class="product"><span class="title">Sled</span><span class="stock">3</span></li>
  <li class="product"><span class="title">Skates</span></li>
</ul>
</body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_HelpFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"help command", []string{"help"}},
		{"long flag", []string{"--help"}},
		{"short flag", []string{"-h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := main.NewMain()
			m.DBPath = filepath.Join(t.TempDir(), "test.db")

			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}

			err := m.Run(testContext(), tt.args, stdout, stderr)

			require.NoError(t, err)
			for _, cmd := range []string{"pattern", "run", "task"} {
				assert.Contains(t, stdout.String(), cmd)
			}
			assert.Contains(t, stdout.String(), "Usage:")
		})
	}
}

func TestRun_NoArgs(t *testing.T) {
	t.Parallel()

	m := main.NewMain()
	m.DBPath = filepath.Join(t.TempDir(), "test.db")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	err := m.Run(testContext(), []string{}, stdout, stderr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command specified")
}

func TestRun_HelpWithoutCreatingDB(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	m := main.NewMain()
	m.DBPath = dbPath

	err := m.Run(testContext(), []string{"--help"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err), "help should not create the database")
}

func TestRun_ValidateWithoutCreatingDB(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	m := main.NewMain()
	m.DBPath = dbPath

	stdout := &bytes.Buffer{}
	err := m.Run(testContext(), []string{"pattern", "validate", writeFile(t, "catalog.yaml", catalogPatternYAML)}, stdout, &bytes.Buffer{})

	require.NoError(t, err)
	assert.Contains(t, stdout.String(), `Pattern "catalog" is valid`)
	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	patternPath := writeFile(t, "catalog.yaml", catalogPatternYAML)
	metricsPath := filepath.Join(dir, "metrics.prom")

	var fetched []string
	m := main.NewMain()
	m.DBPath = filepath.Join(dir, "test.db")
	m.SnapshotDir = filepath.Join(dir, "snapshots")
	m.Fetcher = &mock.Fetcher{
		FetchFn: func(_ context.Context, url string) (string, error) {
			fetched = append(fetched, url)
			return catalogHTML, nil
		},
	}

	run := func(args ...string) string {
		t.Helper()
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		err := m.Run(testContext(), args, stdout, stderr)
		require.NoError(t, err, "stderr: %s", stderr.String())
		return stdout.String()
	}

	out := run("pattern", "add", patternPath)
	assert.Contains(t, out, `Added pattern "catalog"`)

	out = run("pattern", "list")
	assert.Contains(t, out, "catalog")

	out = run("--metrics-file", metricsPath, "run", "catalog", "https://shop.example/sale")
	assert.Contains(t, out, "completed")
	assert.Equal(t, []string{"https://shop.example/sale"}, fetched)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "autoprobe_task_transitions_total")

	var taskID string
	for _, line := range strings.Split(run("task", "list"), "\n") {
		if strings.Contains(line, "completed") {
			taskID = strings.Fields(line)[0]
		}
	}
	require.NotEmpty(t, taskID)

	out = run("task", "result", taskID)
	assert.JSONEq(t, `{
		"heading": "Winter Sale",
		"products": [
			{"title": "Sled", "stock": "3"},
			{"title": "Skates", "stock": 0}
		]
	}`, out)

	out = run("task", "result", taskID, "--query", "$.products[*].title")
	var titles []string
	require.NoError(t, json.Unmarshal([]byte(out), &titles))
	assert.Equal(t, []string{"Sled", "Skates"}, titles)

	out = run("task", "status", taskID)
	assert.Contains(t, out, "Snapshot: "+taskID+"/page-0000.html")
	_, err = os.Stat(filepath.Join(m.SnapshotDir, taskID, "page-0000.html"))
	assert.NoError(t, err)

	stderr := &bytes.Buffer{}
	err = m.Run(testContext(), []string{"pattern", "delete", "catalog", "--force"}, &bytes.Buffer{}, stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "error:")
}
