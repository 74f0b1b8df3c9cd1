package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
)

const testSchema = `
version: 1
entities:
  - name: Car
    mixins: [time]
    attributes:
      - {name: name, type: string}
    relations:
      - {name: wheels, target: Wheel, kind: containment, upper: 5, embedded: true}
      - {name: spare, target: Wheel, upper: 1, range: self.wheels, range_self: true}
  - name: Wheel
    attributes:
      - {name: position, type: int, optional: true}
`

const testPayload = `{
  "type": "Car",
  "attrs": {"name": "beetle"},
  "children": {
    "wheels": [
      {"type": "Wheel", "key": "front", "attrs": {"position": 1}},
      {"type": "Wheel", "attrs": {"position": 2}}
    ]
  },
  "refs": {"spare": [{"key": "front"}]}
}`

type harness struct {
	t    *testing.T
	args []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))
	dsn := "file:" + filepath.Join(dir, "relgraph.db") + "?_pragma=foreign_keys(1)"
	return &harness{t: t, args: []string{"--schema", path, "--dsn", dsn}}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(append([]string{}, h.args...), args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	require.NoError(h.t, err)
	return out
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)
	plan := h.mustRun("", "migrate", "--dry-run")
	assert.Contains(t, plan, "CREATE TABLE")

	h.mustRun("", "migrate")
	assert.Contains(t, h.mustRun("", "migrate", "--dry-run"), "up to date")
}

func TestTypes(t *testing.T) {
	h := newHarness(t)
	var types []typeView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "types")), &types))
	require.Len(t, types, 2)
	assert.Equal(t, "Car", types[0].Name)
	assert.Equal(t, "string", types[0].Attributes["name"])
	require.Len(t, types[0].Members, 2)
	assert.Equal(t, "0..5", types[0].Members[0].Bounds)
	assert.Equal(t, "int?", types[1].Attributes["position"])
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t)
	h.mustRun("", "migrate")

	var car struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(testPayload, "create")), &car))
	assert.Equal(t, "Car", car.Type)
	require.NotEmpty(t, car.ID)

	var updated struct {
		Attrs map[string]any `json:"attrs"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(`{"name": "golf"}`, "update", car.ID)), &updated))
	assert.Equal(t, "golf", updated.Attrs["name"])
	assert.Contains(t, updated.Attrs, "created_at")
	assert.Contains(t, updated.Attrs, "updated_at")

	var rec struct {
		Embedded   map[string][]map[string]any `json:"embedded"`
		References map[string][]string         `json:"references"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "get", "--record", car.ID)), &rec))
	require.Len(t, rec.Embedded["wheels"], 2)
	require.Len(t, rec.References["spare"], 1)

	var candidates []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "range", "Car", "spare", "--owner", car.ID)), &candidates))
	assert.Len(t, candidates, 2)

	var page pageView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "list", "Wheel", "--order", "-position", "--limit", "1")), &page))
	require.Len(t, page.Rows, 1)
	assert.EqualValues(t, 2, page.Rows[0].Values["position"])
	assert.True(t, page.HasMore)
	first := page.Rows[0].ID

	page = pageView{}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "list", "Wheel", "--order", "-position", "--after", first)), &page))
	require.Len(t, page.Rows, 1)
	assert.EqualValues(t, 1, page.Rows[0].Values["position"])
	assert.False(t, page.HasMore)

	var g graphView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "graph", "Car", car.ID)), &g))
	assert.Equal(t, []string{car.ID}, g.Roots)
	assert.Len(t, g.Nodes, 3)

	var plan []string
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "delete", "--dry-run", car.ID)), &plan))
	assert.Len(t, plan, 3)
	assert.Equal(t, car.ID, plan[2])

	var deleted []string
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "delete", car.ID)), &deleted))
	assert.ElementsMatch(t, plan, deleted)

	_, err := h.run("", "get", car.ID)
	assert.True(t, relgraph.IsNotFound(err))
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	h := newHarness(t)
	h.mustRun("", "migrate")

	_, err := h.run(`{"type": "Car", "attrs": {}}`, "create")
	assert.True(t, relgraph.IsValidationError(err))

	_, err = h.run(`{"type": `, "create")
	assert.ErrorContains(t, err, "decode payload")
}

func TestRoutes(t *testing.T) {
	h := newHarness(t)
	h.mustRun("", "migrate")
	var car struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(testPayload, "create")), &car))

	a := &app{schema: h.args[1], dsn: h.args[3]}
	require.NoError(t, a.init(io.Discard))
	drv, err := a.openDriver()
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	s, err := a.loadSchema()
	require.NoError(t, err)
	c, err := a.newClient(drv, s)
	require.NoError(t, err)
	srv := &server{}
	srv.client.Store(c)
	ts := httptest.NewServer(srv.routes(a))
	t.Cleanup(ts.Close)

	tests := []struct {
		path string
		code int
	}{
		{"/healthz", http.StatusOK},
		{"/entities/" + car.ID, http.StatusOK},
		{"/entities/missing", http.StatusNotFound},
		{"/graph/Car/" + car.ID, http.StatusOK},
		{"/graph/Boat/" + car.ID, http.StatusBadRequest},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
	}
}
