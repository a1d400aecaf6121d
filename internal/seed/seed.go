// Package seed provides nested trees to start sessions and stores from:
// built-in fixtures, files on disk, and generated trees of any size.
package seed

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/treeops"
)

//go:embed fixtures/*.yaml
var fixtureFiles embed.FS

// DefaultFixture is the tree served when nothing else is configured.
const DefaultFixture = "demo"

// Fixtures lists the built-in fixture names.
func Fixtures() []string {
	entries, err := fixtureFiles.ReadDir("fixtures")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// Fixture returns a built-in tree by name.
func Fixture(name string) ([]tree.NodeData, error) {
	filename := path.Join("fixtures", name+".yaml")
	data, err := fixtureFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unknown fixture %q (have %s)", name, strings.Join(Fixtures(), ", "))
	}
	return decode(filename, data, yaml.Unmarshal)
}

// Demo returns the default fixture. It panics only if the embedded file is
// broken, which the tests rule out.
func Demo() []tree.NodeData {
	data, err := Fixture(DefaultFixture)
	if err != nil {
		panic(err)
	}
	return data
}

// Load reads a tree from a .yaml, .yml or .json file.
func Load(filename string) ([]tree.NodeData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return decode(filename, data, json.Unmarshal)
	case ".yaml", ".yml":
		return decode(filename, data, yaml.Unmarshal)
	default:
		return nil, fmt.Errorf("seed %s: unsupported extension, want .yaml, .yml or .json", filename)
	}
}

// Resolve interprets ref as a file path if it names an existing file and as
// a fixture name otherwise. An empty ref is the default fixture.
func Resolve(ref string) ([]tree.NodeData, error) {
	if ref == "" {
		return Fixture(DefaultFixture)
	}
	if _, err := os.Stat(ref); err == nil {
		return Load(ref)
	}
	return Fixture(ref)
}

func decode(source string, data []byte, unmarshal func([]byte, any) error) ([]tree.NodeData, error) {
	var nodes []tree.NodeData
	if err := unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", source, err)
	}
	// Reject what a session would reject, with the file name attached
	if _, err := treeops.Flatten(nodes); err != nil {
		return nil, fmt.Errorf("seed %s: %w", source, err)
	}
	return nodes, nil
}

// Generate builds a tree breadth wide and depth deep. Ids are dotted paths
// ("1", "1.2", "1.2.3") like the demo fixture. Folders below the top level
// start closed so large trees mount lazily.
func Generate(breadth, depth int) []tree.NodeData {
	if breadth <= 0 || depth <= 0 {
		return nil
	}
	return generate("", breadth, depth)
}

func generate(prefix string, breadth, depth int) []tree.NodeData {
	nodes := make([]tree.NodeData, breadth)
	for i := range nodes {
		id := strconv.Itoa(i + 1)
		if prefix != "" {
			id = prefix + "." + id
		}
		nodes[i] = tree.NodeData{ID: id, IsOpen: prefix == ""}
		if depth > 1 {
			nodes[i].Children = generate(id, breadth, depth-1)
		}
	}
	return nodes
}

// Count returns the number of items in a nested tree.
func Count(nodes []tree.NodeData) int {
	n := len(nodes)
	for _, node := range nodes {
		n += Count(node.Children)
	}
	return n
}
