package aferofs

import (
	"os"
	"time"

	"github.com/aligator/aums/fsys"
)

// FileInfo returns the os.FileInfo of a node.
func FileInfo(n fsys.Node) os.FileInfo {
	return nodeFileInfo{n}
}

type nodeFileInfo struct {
	node fsys.Node
}

func (i nodeFileInfo) Name() string {
	return i.node.Name()
}

func (i nodeFileInfo) Size() int64 {
	if i.node.IsDirectory() {
		return 0
	}
	return i.node.Length()
}

// Mode maps the read only attribute to the permission bits.
func (i nodeFileInfo) Mode() os.FileMode {
	perm := os.FileMode(0666)
	if i.node.IsDirectory() {
		perm = os.ModeDir | 0777
	}
	if i.node.Attributes().ReadOnly {
		perm &^= 0222
	}
	return perm
}

func (i nodeFileInfo) ModTime() time.Time {
	return i.node.LastModified()
}

func (i nodeFileInfo) IsDir() bool {
	return i.node.IsDirectory()
}

// Sys returns the fsys.Node.
func (i nodeFileInfo) Sys() interface{} {
	return i.node
}
