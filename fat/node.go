package fat

import (
	"fmt"
	"strings"
	"time"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
)

// node holds what files and directories share.
// The root directory has neither a parent nor an entry.
type node struct {
	fs     *FileSystem
	parent *Directory
	entry  *lfnEntry
}

func (n *node) Name() string {
	if n.entry == nil {
		return "/"
	}
	return n.entry.name
}

func (n *node) IsRoot() bool {
	return n.entry == nil
}

func (n *node) Parent() fsys.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) AbsolutePath() string {
	switch {
	case n.parent == nil:
		return "/"
	case n.parent.IsRoot():
		return "/" + n.entry.name
	default:
		return n.parent.AbsolutePath() + "/" + n.entry.name
	}
}

func (n *node) Attributes() fsys.Attributes {
	if n.entry == nil {
		return fsys.Attributes{}
	}
	return n.entry.header.attributes()
}

func (n *node) CreatedAt() time.Time {
	if n.entry == nil {
		return time.Time{}
	}
	h := &n.entry.header
	return DecodeTimestamp(h.CreateDate, h.CreateTime, h.CreateTimeTenth, n.fs.loc)
}

func (n *node) LastModified() time.Time {
	if n.entry == nil {
		return time.Time{}
	}
	h := &n.entry.header
	return DecodeTimestamp(h.WriteDate, h.WriteTime, 0, n.fs.loc)
}

func (n *node) LastAccessed() time.Time {
	if n.entry == nil {
		return time.Time{}
	}
	return DecodeTimestamp(n.entry.header.LastAccessDate, 0, 0, n.fs.loc)
}

func (n *node) invalid(op string) error {
	return &fsys.InvalidOperationError{Op: op, Name: n.AbsolutePath()}
}

// Rename changes the long name and generates a new short name.
func (n *node) Rename(name string) error {
	if n.entry == nil {
		return n.invalid("rename")
	}
	if name == n.entry.name {
		return nil
	}
	if err := validName(name); err != nil {
		return err
	}

	p := n.parent
	if err := p.load(); err != nil {
		return err
	}
	if other, ok := p.byName[strings.ToLower(name)]; ok && other != n.entry {
		return checkpoint.Wrapf(fmt.Errorf("%q", name), fsys.ErrNameCollision, "rename %s", n.AbsolutePath())
	}

	oldName, oldShort := n.entry.name, n.entry.short()
	delete(p.shortNames, oldShort)
	short, err := generateShortName(name, p.shortNames)
	if err != nil {
		p.shortNames[oldShort] = true
		return err
	}

	p.unindex(n.entry)
	n.entry.setName(name, short)
	p.index(n.entry)

	if err := p.write(); err != nil {
		p.unindex(n.entry)
		n.entry.setName(oldName, oldShort)
		p.index(n.entry)
		return err
	}
	return nil
}

// MoveTo moves the node into dest, keeping its name.
func (n *node) MoveTo(dest fsys.Node) error {
	if n.entry == nil {
		return n.invalid("move")
	}
	return n.Move(dest, n.entry.name)
}

// Move moves the node into destNode under name. Nothing changes if name is taken in destNode.
func (n *node) Move(destNode fsys.Node, name string) error {
	if n.entry == nil {
		return n.invalid("move")
	}
	dest, ok := destNode.(*Directory)
	if !ok || dest.fs != n.fs {
		return checkpoint.Wrapf(fmt.Errorf("destination %T", destNode), fsys.ErrInvalidOperation, "move %s", n.AbsolutePath())
	}
	src := n.parent
	if dest == src {
		return n.Rename(name)
	}

	self := src.child(n.entry)
	if dir, ok := self.(*Directory); ok {
		for d := dest; d != nil; d = d.parent {
			if d == dir {
				return checkpoint.Wrapf(fmt.Errorf("destination %s", dest.AbsolutePath()), fsys.ErrInvalidOperation, "move %s into itself", n.AbsolutePath())
			}
		}
	}

	e := n.entry
	oldName, oldShort := e.name, e.short()
	if name != oldName {
		if err := validName(name); err != nil {
			return err
		}
	}
	if err := dest.load(); err != nil {
		return err
	}
	if _, ok := dest.byName[strings.ToLower(name)]; ok {
		return checkpoint.Wrapf(fmt.Errorf("%q", name), fsys.ErrNameCollision, "move %s to %s", n.AbsolutePath(), dest.AbsolutePath())
	}

	short := oldShort
	if name != oldName || dest.shortNames[oldShort] {
		var err error
		if short, err = generateShortName(name, dest.shortNames); err != nil {
			return err
		}
	}

	src.unindex(e)
	e.setName(name, short)
	dest.add(e)
	if err := dest.write(); err != nil {
		dest.remove(e)
		e.setName(oldName, oldShort)
		src.index(e)
		return err
	}

	src.drop(e)
	delete(src.children, e)
	if err := src.write(); err != nil {
		return err
	}

	n.parent = dest
	dest.children[e] = self
	if dir, ok := self.(*Directory); ok {
		return dir.setParentCluster(dest.cluster())
	}
	return nil
}
