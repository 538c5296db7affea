package models

// NodeKind tells a file node from a folder node.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// FileTreeNode is one entry of the workspace tree derived from a FileMap.
type FileTreeNode struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Kind     NodeKind        `json:"kind"`
	Children []*FileTreeNode `json:"children,omitempty"`
}

// IsDir reports whether the node is a folder.
func (n *FileTreeNode) IsDir() bool {
	return n.Kind == KindFolder
}
