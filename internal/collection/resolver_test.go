package collection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMapping(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestResolver_ResolutionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_collections.json")
	writeMapping(t, path, `{
		// per-model collections
		"llama3.1:latest": {"id": "col-1", "name": "llama"},
		"private": {"id": "0", "name": "excluded"},
		"default": {"id": "col-default", "name": "general"},
	}`, time.Now())

	r := NewResolver(path, "fallback-id")

	res := r.Resolve("llama3.1:latest")
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, Collection{ID: "col-1", Name: "llama"}, res.Collection)
	assert.Equal(t, "model", res.Source)

	res = r.Resolve("private")
	assert.Equal(t, StatusExcluded, res.Status)

	res = r.Resolve("mistral")
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, "col-default", res.Collection.ID)
	assert.Equal(t, "default", res.Source)
}

func TestResolver_FallbackAndNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_collections.json")
	writeMapping(t, path, `{"llama": {"id": "col-1"}}`, time.Now())

	res := NewResolver(path, "fallback-id").Resolve("mistral")
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, "fallback-id", res.Collection.ID)
	assert.Equal(t, "fallback", res.Source)

	res = NewResolver(path, "").Resolve("mistral")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolver_LegacyStringValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_collections.json")
	writeMapping(t, path, `{"default": "fb2f8415"}`, time.Now())

	res := NewResolver(path, "").Resolve("anything")
	assert.Equal(t, Collection{ID: "fb2f8415"}, res.Collection, "name comes from the knowledge API")
}

func TestResolver_ReloadsOnlyOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_collections.json")
	base := time.Now().Add(-time.Hour)
	writeMapping(t, path, `{"m": {"id": "col-1", "name": "one"}}`, base)

	r := NewResolver(path, "")
	assert.Equal(t, "col-1", r.Resolve("m").Collection.ID)

	writeMapping(t, path, `{"m": {"id": "col-2", "name": "two"}}`, base.Add(time.Minute))
	assert.Equal(t, "col-2", r.Resolve("m").Collection.ID)
}

func TestResolver_BadWriteKeepsPreviousMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_collections.json")
	base := time.Now().Add(-time.Hour)
	writeMapping(t, path, `{"m": {"id": "col-1", "name": "one"}}`, base)

	r := NewResolver(path, "")
	require.NoError(t, r.Reload())

	writeMapping(t, path, `{"m": {"id": `, base.Add(time.Minute))
	assert.Error(t, r.Reload())
	assert.Equal(t, "col-1", r.Resolve("m").Collection.ID)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, "col-1", r.Resolve("m").Collection.ID)
	assert.Len(t, r.Snapshot(), 1)
}
