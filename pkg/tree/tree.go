// Package tree derives the ordered workspace tree from a flat FileMap and
// provides lookups over it.
package tree

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

// DefaultFile is selected when a FileMap contains it.
const DefaultFile = "main.py"

// builder is the mutable grouping used while building; it is converted to
// FileTreeNode values once all paths are inserted.
type builder struct {
	name     string
	path     string
	isDir    bool
	children map[string]*builder
}

func (b *builder) child(name, path string) *builder {
	if b.children == nil {
		b.children = make(map[string]*builder)
	}
	c, ok := b.children[name]
	if !ok {
		c = &builder{name: name, path: path}
		b.children[name] = c
	}
	return c
}

// Build returns the ordered forest for files. Folders come before files at
// every level, then names in byte order. A key that is also the prefix of
// another key is a folder. Empty segments are ignored.
func Build(files models.FileMap) []*models.FileTreeNode {
	root := &builder{isDir: true}

	for key := range files {
		segments := Segments(key)
		if len(segments) == 0 {
			continue
		}
		node := root
		for i, seg := range segments {
			node = node.child(seg, strings.Join(segments[:i+1], "/"))
			if i < len(segments)-1 {
				node.isDir = true
			}
		}
	}

	return freeze(root)
}

func freeze(b *builder) []*models.FileTreeNode {
	if len(b.children) == 0 {
		return nil
	}
	out := make([]*models.FileTreeNode, 0, len(b.children))
	for _, c := range b.children {
		n := &models.FileTreeNode{Name: c.name, Path: c.path, Kind: models.KindFile}
		if c.isDir || len(c.children) > 0 {
			n.Kind = models.KindFolder
			n.Children = freeze(c)
		}
		out = append(out, n)
	}
	slices.SortFunc(out, Compare)
	return out
}

// Compare orders folders before files, then by name.
func Compare(a, b *models.FileTreeNode) int {
	if a.IsDir() != b.IsDir() {
		if a.IsDir() {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Name, b.Name)
}

// Segments splits a path on "/" and drops empty segments.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultSelection returns main.py when present, otherwise the first file
// in depth-first order of the sorted tree. It returns "" for an empty map.
func DefaultSelection(files models.FileMap) string {
	if files.Has(DefaultFile) {
		return DefaultFile
	}
	paths := FilePaths(Build(files))
	if len(paths) == 0 {
		return ""
	}
	return OriginalKey(files, paths[0])
}

// OriginalKey maps a normalised tree path back to the FileMap key it
// came from, so callers can index the map with it.
func OriginalKey(files models.FileMap, treePath string) string {
	if files.Has(treePath) {
		return treePath
	}
	for _, k := range files.Keys() {
		if strings.Join(Segments(k), "/") == treePath {
			return k
		}
	}
	return treePath
}

// FindByPath resolves a path in the forest (recursive).
func FindByPath(forest []*models.FileTreeNode, path string) *models.FileTreeNode {
	for _, n := range forest {
		if n.Path == path {
			return n
		}
		if n.IsDir() && strings.HasPrefix(path, n.Path+"/") {
			if found := FindByPath(n.Children, path); found != nil {
				return found
			}
		}
	}
	return nil
}

// FilePaths returns the paths of all file nodes in depth-first order.
func FilePaths(forest []*models.FileTreeNode) []string {
	var out []string
	walk(forest, func(n *models.FileTreeNode, _ int) {
		if !n.IsDir() {
			out = append(out, n.Path)
		}
	})
	return out
}

// CountNodes counts all nodes in the forest.
func CountNodes(forest []*models.FileTreeNode) int {
	count := 0
	walk(forest, func(*models.FileTreeNode, int) { count++ })
	return count
}

func walk(forest []*models.FileTreeNode, fn func(n *models.FileTreeNode, depth int)) {
	var rec func(nodes []*models.FileTreeNode, depth int)
	rec = func(nodes []*models.FileTreeNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			rec(n.Children, depth+1)
		}
	}
	rec(forest, 0)
}

// Render writes the forest as an indented listing, marking selected with
// an asterisk.
func Render(w io.Writer, forest []*models.FileTreeNode, selected string) error {
	var err error
	walk(forest, func(n *models.FileTreeNode, depth int) {
		if err != nil {
			return
		}
		marker := "  "
		if n.Path == selected {
			marker = "* "
		}
		name := n.Name
		if n.IsDir() {
			name += "/"
		}
		_, err = fmt.Fprintf(w, "%s%s%s\n", marker, strings.Repeat("  ", depth), name)
	})
	return err
}
