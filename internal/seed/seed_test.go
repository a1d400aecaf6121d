package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain/models/tree"
)

func TestFixtures(t *testing.T) {
	assert.Equal(t, []string{"demo", "empty-folders"}, Fixtures())

	for _, name := range Fixtures() {
		t.Run(name, func(t *testing.T) {
			data, err := Fixture(name)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestDemo(t *testing.T) {
	data := Demo()
	require.Len(t, data, 3)
	assert.Equal(t, "1", data[0].ID)
	assert.True(t, data[0].IsOpen)
	assert.Equal(t, []string{"1.1.1", "1.1.2"}, []string{data[0].Children[0].Children[0].ID, data[0].Children[0].Children[1].ID})
	assert.Equal(t, 10, Count(data))
}

func TestFixture_Unknown(t *testing.T) {
	_, err := Fixture("nope")
	assert.ErrorContains(t, err, "demo")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonFile := filepath.Join(dir, "tree.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`[{"id":"a","children":[{"id":"b"}]}]`), 0o644))
	data, err := Load(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeData{{ID: "a", Children: []tree.NodeData{{ID: "b"}}}}, data)

	yamlFile := filepath.Join(dir, "tree.yml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("- id: x\n  isFolder: true\n"), 0o644))
	data, err = Load(yamlFile)
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeData{{ID: "x", IsFolder: true}}, data)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("- id: x\n- id: x\n"), 0o644))
	_, err = Load(dup)
	assert.ErrorContains(t, err, "dup.yaml")

	_, err = Load(filepath.Join(dir, "tree.txt"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	data, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Demo(), data)

	data, err = Resolve("empty-folders")
	require.NoError(t, err)
	assert.Equal(t, "inbox", data[0].ID)
}

func TestGenerate(t *testing.T) {
	data := Generate(3, 3)
	assert.Equal(t, 3+9+27, Count(data))
	assert.Equal(t, "2.3.1", data[1].Children[2].Children[0].ID)
	assert.True(t, data[0].IsOpen)
	assert.False(t, data[0].Children[0].IsOpen)

	assert.Nil(t, Generate(0, 3))
}
