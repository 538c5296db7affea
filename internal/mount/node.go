package mount

import (
	"context"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"
)

// Node is a file or directory of the workspace, addressed by path.
type Node struct {
	fs.Inode

	ws   *Workspace
	path string
	dir  bool
}

var _ fs.InodeEmbedder = (*Node)(nil)
var _ fs.NodeGetattrer = (*Node)(nil)
var _ fs.NodeLookuper = (*Node)(nil)
var _ fs.NodeReaddirer = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)
var _ fs.NodeReader = (*Node)(nil)

func (n *Node) fill(out *gofuse.Attr, e entry) {
	if e.dir {
		out.Mode = 0555 | syscall.S_IFDIR
	} else {
		out.Mode = 0444 | syscall.S_IFREG
		out.Size = uint64(len(e.content))
	}
	out.Mtime = uint64(n.ws.changed.Load())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

// Getattr reports the attributes of the node in the current snapshot.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	e, ok := resolve(n.ws.source.Snapshot(), n.path)
	if !ok {
		return syscall.ENOENT
	}
	n.fill(&out.Attr, e)
	return 0
}

// Lookup finds a child by name.
func (n *Node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if !n.dir {
		return nil, syscall.ENOTDIR
	}
	p := join(n.path, name)
	e, ok := resolve(n.ws.source.Snapshot(), p)
	if !ok {
		return nil, syscall.ENOENT
	}
	n.fill(&out.Attr, e)

	child := &Node{ws: n.ws, path: p, dir: e.dir}
	stable := fs.StableAttr{Mode: out.Mode & syscall.S_IFMT, Ino: inode(p, e.dir)}
	return n.NewInode(ctx, child, stable), 0
}

// Readdir lists directory contents.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	if !n.dir {
		return nil, syscall.ENOTDIR
	}
	st := n.ws.source.Snapshot()
	if _, ok := resolve(st, n.path); !ok {
		return nil, syscall.ENOENT
	}
	return fs.NewListDirStream(children(st, n.path)), 0
}

// Open captures the file content at open time. Writes are refused.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.dir {
		return nil, 0, syscall.EISDIR
	}
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	e, ok := resolve(n.ws.source.Snapshot(), n.path)
	if !ok {
		return nil, 0, syscall.ENOENT
	}
	n.ws.logger.Debug("open", zap.String("path", n.path), zap.Int("size", len(e.content)))
	return &FileHandle{data: []byte(e.content)}, gofuse.FOPEN_DIRECT_IO, 0
}

// Read serves bytes from the handle captured by Open.
func (n *Node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	h, ok := fh.(*FileHandle)
	if !ok {
		return nil, syscall.EIO
	}
	return h.read(dest, off), 0
}

// FileHandle is an open file's content.
type FileHandle struct {
	data []byte
}

func (h *FileHandle) read(dest []byte, off int64) gofuse.ReadResult {
	if off >= int64(len(h.data)) {
		return gofuse.ReadResultData(nil)
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return gofuse.ReadResultData(h.data[off:end])
}
