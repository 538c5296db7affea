// Package mount exposes the active project as a read-only FUSE file
// system. Every lookup reads the latest session state, so regenerated
// files show up without remounting.
package mount

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

// LogsFile is the virtual file at the mount root holding the latest logs.
// It is listed only while there are logs, and a project file of the same
// name at the root takes its place.
const LogsFile = ".appmaker.log"

// Source is the session the mount reads from.
type Source interface {
	Snapshot() session.State
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
}

// Config configures a Workspace.
type Config struct {
	Source Source
	Logger *zap.Logger
	// Timeout is the kernel entry and attribute cache lifetime.
	Timeout time.Duration
}

// Workspace is the mounted file system.
type Workspace struct {
	source  Source
	logger  *zap.Logger
	timeout time.Duration

	// changed holds the unix time of the last session change.
	changed atomic.Int64
}

// New creates a Workspace.
func New(cfg Config) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	w := &Workspace{source: cfg.Source, logger: logger.Named("mount"), timeout: timeout}
	w.changed.Store(time.Now().Unix())
	return w
}

// Mount mounts the workspace at mountPoint. Call Track to keep
// modification times current and Unmount on the returned server when done.
func (w *Workspace) Mount(mountPoint string) (*gofuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther: false,
			Debug:      false,
			FsName:     "appmaker",
			Name:       "appmaker",
		},
		EntryTimeout: &w.timeout,
		AttrTimeout:  &w.timeout,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
	}

	server, err := fs.Mount(mountPoint, w.Root(), opts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	w.logger.Info("workspace mounted", zap.String("path", mountPoint))
	return server, nil
}

// Root returns the root node.
func (w *Workspace) Root() *Node {
	return &Node{ws: w, dir: true}
}

// Track records session changes until ctx is done.
func (w *Workspace) Track(ctx context.Context) {
	ch := w.source.Subscribe()
	defer w.source.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			w.changed.Store(time.Now().Unix())
		}
	}
}

// entry is what a path resolves to in one snapshot.
type entry struct {
	dir     bool
	content string
}

// resolve finds p in the snapshot. The empty path is the root.
func resolve(st session.State, p string) (entry, bool) {
	if p == "" {
		return entry{dir: true}, true
	}
	forest := tree.Build(st.Files)
	if p == LogsFile && showLogs(st, forest) {
		return entry{content: renderLogs(st.Logs)}, true
	}
	node := tree.FindByPath(forest, p)
	if node == nil {
		return entry{}, false
	}
	if node.IsDir() {
		return entry{dir: true}, true
	}
	return entry{content: st.Files[tree.OriginalKey(st.Files, p)]}, true
}

// children lists the entries of directory p.
func children(st session.State, p string) []gofuse.DirEntry {
	forest := tree.Build(st.Files)
	logs := p == "" && showLogs(st, forest)
	if p != "" {
		node := tree.FindByPath(forest, p)
		if node == nil {
			return nil
		}
		forest = node.Children
	}

	out := make([]gofuse.DirEntry, 0, len(forest)+1)
	for _, n := range forest {
		mode := uint32(syscall.S_IFREG)
		if n.IsDir() {
			mode = syscall.S_IFDIR
		}
		out = append(out, gofuse.DirEntry{Name: n.Name, Mode: mode, Ino: inode(n.Path, n.IsDir())})
	}
	if logs {
		out = append(out, gofuse.DirEntry{Name: LogsFile, Mode: syscall.S_IFREG, Ino: inode(LogsFile, false)})
	}
	return out
}

// showLogs reports whether LogsFile is served from the logs of st.
func showLogs(st session.State, root []*models.FileTreeNode) bool {
	return len(st.Logs) > 0 && tree.FindByPath(root, LogsFile) == nil
}

func renderLogs(entries []models.LogEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %-8s %s\n", e.Timestamp, e.Level, e.Message)
	}
	return b.String()
}

// inode derives a stable inode number from the path so the kernel sees
// the same file across lookups.
func inode(p string, dir bool) uint64 {
	h := fnv.New64a()
	h.Write([]byte(p))
	if dir {
		h.Write([]byte{'/'})
	}
	// 1 is reserved for the root.
	return h.Sum64() | 2
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
