package tree

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

func names(nodes []*models.FileTreeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestBuildOrdersFoldersFirst(t *testing.T) {
	files := models.FileMap{
		"main.py":             "y",
		"src/a.py":            "x",
		"README.md":           "",
		"src/util/helpers.py": "",
		"assets/logo.txt":     "",
	}

	forest := Build(files)
	if got, want := names(forest), []string{"assets", "src", "README.md", "main.py"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("root order = %v, want %v", got, want)
	}

	src := FindByPath(forest, "src")
	if src == nil || src.Kind != models.KindFolder {
		t.Fatalf("src should be a folder, got %+v", src)
	}
	if got, want := names(src.Children), []string{"util", "a.py"}; !reflect.DeepEqual(got, want) {
		t.Errorf("src order = %v, want %v", got, want)
	}

	helpers := FindByPath(forest, "src/util/helpers.py")
	if helpers == nil || helpers.Kind != models.KindFile || helpers.Name != "helpers.py" {
		t.Errorf("helpers.py lookup = %+v", helpers)
	}
}

func TestBuildReconstructsEveryFilePath(t *testing.T) {
	files := models.FileMap{
		"a/b/c.txt": "",
		"a/d.txt":   "",
		"e.txt":     "",
		"a/b/f/g":   "",
	}
	forest := Build(files)

	got := FilePaths(forest)
	if len(got) != len(files) {
		t.Fatalf("expected %d file paths, got %v", len(files), got)
	}
	for _, p := range got {
		if !files.Has(p) {
			t.Errorf("file path %q is not a FileMap key", p)
		}
	}

	var check func(nodes []*models.FileTreeNode, prefix []string)
	check = func(nodes []*models.FileTreeNode, prefix []string) {
		for _, n := range nodes {
			parts := append(append([]string{}, prefix...), n.Name)
			if joined := strings.Join(parts, "/"); joined != n.Path {
				t.Errorf("node path %q does not match traversal %q", n.Path, joined)
			}
			if n.IsDir() && files.Has(n.Path) {
				t.Errorf("folder %q collides with a file key", n.Path)
			}
			check(n.Children, parts)
		}
	}
	check(forest, nil)
}

func TestBuildIsDeterministic(t *testing.T) {
	keys := []string{"z.py", "lib/x.py", "lib/a/b.py", "a.py", "lib/z.py", "docs/readme"}
	var first []*models.FileTreeNode
	for i := 0; i < 20; i++ {
		files := models.FileMap{}
		for j := range keys {
			files[keys[(i+j)%len(keys)]] = ""
		}
		forest := Build(files)
		if first == nil {
			first = forest
			continue
		}
		if !reflect.DeepEqual(first, forest) {
			t.Fatalf("iteration %d produced a different tree", i)
		}
	}
}

func TestBuildPrefixKeyBecomesFolder(t *testing.T) {
	forest := Build(models.FileMap{"pkg": "", "pkg/mod.py": ""})
	if len(forest) != 1 {
		t.Fatalf("expected a single root, got %v", names(forest))
	}
	if forest[0].Kind != models.KindFolder {
		t.Errorf("pkg should be a folder")
	}
	if len(forest[0].Children) != 1 || forest[0].Children[0].Path != "pkg/mod.py" {
		t.Errorf("unexpected children %+v", forest[0].Children)
	}
}

func TestBuildSkipsEmptySegments(t *testing.T) {
	forest := Build(models.FileMap{"/src//a.py": "", "": ""})
	if n := FindByPath(forest, "src/a.py"); n == nil {
		t.Fatalf("expected src/a.py in %v", FilePaths(forest))
	}
	if CountNodes(forest) != 2 {
		t.Errorf("expected 2 nodes, got %d", CountNodes(forest))
	}
}

func TestBuildEmpty(t *testing.T) {
	if forest := Build(nil); len(forest) != 0 {
		t.Errorf("expected empty forest, got %v", forest)
	}
}

func TestDefaultSelection(t *testing.T) {
	tests := []struct {
		name  string
		files models.FileMap
		want  string
	}{
		{"main.py wins", models.FileMap{"src/a.py": "x", "main.py": "y"}, "main.py"},
		{"folders first", models.FileMap{"src/a.py": "", "b.py": ""}, "src/a.py"},
		{"name order", models.FileMap{"b.py": "", "a.py": ""}, "a.py"},
		{"nested main.py does not count", models.FileMap{"app/main.py": "", "z.py": ""}, "app/main.py"},
		{"original key returned", models.FileMap{"/x.py": ""}, "/x.py"},
		{"empty", models.FileMap{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultSelection(tt.files); got != tt.want {
				t.Errorf("DefaultSelection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	forest := Build(models.FileMap{"src/a.py": "", "main.py": ""})
	if err := Render(&buf, forest, "main.py"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "  src/\n    a.py\n* main.py\n"
	if buf.String() != want {
		t.Errorf("Render() =\n%q\nwant\n%q", buf.String(), want)
	}
}
