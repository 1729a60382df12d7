package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptors(t *testing.T) {
	defs, err := ParseDescriptors([]byte(`
entities:
  - name: Widget
    collection: widgets
    extends: BaseModel
    fields:
      - { name: size, kind: int }
      - { name: owner, kind: reference, ref: { target: Person, collection: people } }
      - { name: label, storedAs: lbl, kind: string }
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	w := defs[0]
	assert.Equal(t, "Widget", w.Name)
	assert.Equal(t, "widgets", w.CollectionName())
	assert.Equal(t, "BaseModel", w.Extends)
	require.Len(t, w.Fields, 3)
	assert.Equal(t, KindInt, w.Fields[0].Kind)
	assert.Equal(t, &RefDef{Target: "Person", Collection: "people"}, w.Fields[1].Ref)
	assert.Equal(t, "lbl", w.Fields[2].Key())

	_, err = ParseDescriptors([]byte("entities: [unclosed"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFilesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", "entities:\n  - { name: B, fields: [] }\n")
	writeFile(t, dir, "a.yaml", "entities:\n  - { name: A1, fields: [] }\n  - { name: A2, fields: [] }\n")
	writeFile(t, dir, "notes.txt", "not a descriptor")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	defs, err := LoadFiles(context.Background(), dir)
	require.NoError(t, err)
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"A1", "A2", "B"}, names)
}

func TestLoadFilesErrors(t *testing.T) {
	_, err := LoadFiles(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "entities: {")
	_, err = LoadFiles(context.Background(), dir)
	assert.ErrorContains(t, err, "bad.yaml")
}

func TestLoadYAMLKeepsPreviousOnError(t *testing.T) {
	r := loadEntities(t)
	gen := r.Generation()

	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "entities:\n  - { name: X, extends: Missing, fields: [] }\n")
	err := r.LoadYAML(context.Background(), dir)
	assert.True(t, ErrInvalidDescriptor.Is(err))
	assert.Equal(t, gen, r.Generation())
	assert.NotNil(t, r.Get("Order"))
}
