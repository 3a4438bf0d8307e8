package fat

import (
	"fmt"
	"io"
	"strings"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// Directory is a FAT directory. Its entries are read on first access and
// kept in memory. Every change rewrites the whole table.
type Directory struct {
	node

	store   storage
	loaded  bool
	entries []*lfnEntry
	// label is the volume label entry of the root directory.
	label *EntryHeader

	byName     map[string]*lfnEntry
	shortNames map[shortName]bool
	children   map[*lfnEntry]fsys.Node
}

func newDirectory(fs *FileSystem, parent *Directory, entry *lfnEntry) *Directory {
	return &Directory{
		node: node{fs: fs, parent: parent, entry: entry},
	}
}

func (d *Directory) IsDirectory() bool {
	return true
}

// cluster is the value stored in the ".." entry of subdirectories.
func (d *Directory) cluster() uint32 {
	if d.entry == nil {
		return 0
	}
	return d.entry.header.firstCluster()
}

func (d *Directory) load() error {
	if d.loaded {
		return nil
	}

	if d.store == nil {
		chain, err := newClusterChain(d.fs.table, d.fs.dev, d.entry.header.firstCluster())
		if err != nil {
			return err
		}
		d.store = chain
	}

	data := make([]byte, d.store.Length())
	if _, err := d.store.ReadAt(data, 0); err != nil && err != io.EOF {
		return checkpoint.From(err)
	}

	entries, label := readEntries(data)
	d.reset()
	for _, e := range entries {
		d.add(e)
	}
	if d.IsRoot() {
		d.label = label
	}
	d.loaded = true

	glog.V(2).Infof("fat: read %d entries of %s", len(d.entries), d.AbsolutePath())
	return nil
}

func (d *Directory) reset() {
	d.entries = nil
	d.byName = make(map[string]*lfnEntry)
	d.shortNames = make(map[shortName]bool)
	d.children = make(map[*lfnEntry]fsys.Node)
}

func (d *Directory) index(e *lfnEntry) {
	d.shortNames[e.short()] = true
	if !e.isDot() {
		d.byName[strings.ToLower(e.name)] = e
	}
}

func (d *Directory) unindex(e *lfnEntry) {
	delete(d.shortNames, e.short())
	if d.byName[strings.ToLower(e.name)] == e {
		delete(d.byName, strings.ToLower(e.name))
	}
}

func (d *Directory) add(e *lfnEntry) {
	d.entries = append(d.entries, e)
	d.index(e)
}

func (d *Directory) remove(e *lfnEntry) {
	d.drop(e)
	d.unindex(e)
}

// drop removes e from the table but keeps the index.
func (d *Directory) drop(e *lfnEntry) {
	for i, other := range d.entries {
		if other == e {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// write rewrites the whole directory table. A cluster based directory grows if needed,
// the fixed FAT16 root fails with fsys.ErrNoSpace.
func (d *Directory) write() error {
	size := 0
	for _, e := range d.entries {
		size += e.size()
	}
	if d.label != nil {
		size++
	}

	data := make([]byte, 0, size*dirEntrySize)
	if d.label != nil {
		var record [dirEntrySize]byte
		encode(record[:], d.label)
		data = append(data, record[:]...)
	}
	for _, e := range d.entries {
		data = e.appendTo(data)
	}

	if int64(len(data)) > d.store.Length() {
		if err := d.store.SetLength(int64(len(data))); err != nil {
			return err
		}
	}
	// The rest of the table is cleared, the first zero byte marks the end.
	data = append(data, make([]byte, d.store.Length()-int64(len(data)))...)

	if _, err := d.store.WriteAt(data, 0); err != nil {
		return err
	}
	glog.V(2).Infof("fat: wrote %d entries of %s", len(d.entries), d.AbsolutePath())
	return nil
}

// child returns the node for an entry, creating it on first use.
func (d *Directory) child(e *lfnEntry) fsys.Node {
	if n, ok := d.children[e]; ok {
		return n
	}

	var n fsys.Node
	if e.header.isDirectory() {
		n = newDirectory(d.fs, d, e)
	} else {
		n = &File{node: node{fs: d.fs, parent: d, entry: e}}
	}
	d.children[e] = n
	return n
}

// List returns the names of all entries except "." and "..".
func (d *Directory) List() ([]string, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.isDot() {
			names = append(names, e.name)
		}
	}
	return names, nil
}

// ListFiles returns all entries except "." and "..".
func (d *Directory) ListFiles() ([]fsys.Node, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	nodes := make([]fsys.Node, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.isDot() {
			nodes = append(nodes, d.child(e))
		}
	}
	return nodes, nil
}

// Search resolves a slash separated path. Each segment must match a name exactly.
func (d *Directory) Search(path string) (fsys.Node, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return d, nil
	}

	current := d
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if err := current.load(); err != nil {
			return nil, err
		}
		e, ok := current.byName[strings.ToLower(segment)]
		if !ok || e.name != segment {
			return nil, nil
		}

		n := current.child(e)
		if i == len(segments)-1 {
			return n, nil
		}
		dir, ok := n.(*Directory)
		if !ok {
			return nil, nil
		}
		current = dir
	}
	return nil, nil
}

// prepare checks name and returns a new entry for it.
func (d *Directory) prepare(name string) (*lfnEntry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	if _, ok := d.byName[strings.ToLower(name)]; ok {
		return nil, checkpoint.Wrapf(fmt.Errorf("%q", name), fsys.ErrNameCollision, "create in %s", d.AbsolutePath())
	}

	short, err := generateShortName(name, d.shortNames)
	if err != nil {
		return nil, err
	}
	e := newLfnEntry(name, short)
	e.header.stamp(d.fs.now())
	return e, nil
}

// CreateFile creates an empty file. No cluster is allocated until data is written.
func (d *Directory) CreateFile(name string) (fsys.Node, error) {
	e, err := d.prepare(name)
	if err != nil {
		return nil, err
	}
	e.header.Attribute = attrArchive

	d.add(e)
	if err := d.write(); err != nil {
		d.remove(e)
		return nil, err
	}
	glog.V(1).Infof("fat: created file %s/%s", strings.TrimSuffix(d.AbsolutePath(), "/"), name)
	return d.child(e), nil
}

// CreateDirectory creates a directory with one cluster holding "." and "..".
func (d *Directory) CreateDirectory(name string) (fsys.Node, error) {
	e, err := d.prepare(name)
	if err != nil {
		return nil, err
	}
	e.header.Attribute = attrDirectory

	chain, err := newClusterChain(d.fs.table, d.fs.dev, clusterFree)
	if err != nil {
		return nil, err
	}
	if err := chain.SetLength(d.fs.boot.BytesPerCluster()); err != nil {
		return nil, err
	}
	e.header.setFirstCluster(chain.start())

	dir := newDirectory(d.fs, d, e)
	dir.store = chain
	dir.reset()
	dir.loaded = true

	dot := newLfnEntry(".", newShortName(".", ""))
	dot.header = e.header
	dot.header.Name = newShortName(".", "")
	dotdot := newLfnEntry("..", newShortName("..", ""))
	dotdot.header = e.header
	dotdot.header.Name = newShortName("..", "")
	dotdot.header.setFirstCluster(d.cluster())
	dir.add(dot)
	dir.add(dotdot)

	// The new table is written before it becomes reachable.
	if err := dir.write(); err != nil {
		if freeErr := chain.SetLength(0); freeErr != nil {
			glog.Warningf("fat: could not free the clusters of %s: %v", name, freeErr)
		}
		return nil, err
	}

	d.add(e)
	if err := d.write(); err != nil {
		d.remove(e)
		if freeErr := chain.SetLength(0); freeErr != nil {
			glog.Warningf("fat: could not free the clusters of %s: %v", name, freeErr)
		}
		return nil, err
	}

	d.children[e] = dir
	glog.V(1).Infof("fat: created directory %s/%s", strings.TrimSuffix(d.AbsolutePath(), "/"), name)
	return dir, nil
}

// setParentCluster updates ".." after the directory was moved.
func (d *Directory) setParentCluster(cluster uint32) error {
	if err := d.load(); err != nil {
		return err
	}
	for _, e := range d.entries {
		if e.name == ".." {
			e.header.setFirstCluster(cluster)
			return d.write()
		}
	}
	return nil
}

// Delete removes all children, the entry and the clusters of the directory.
func (d *Directory) Delete() error {
	if d.IsRoot() {
		return d.invalid("delete")
	}
	if err := d.load(); err != nil {
		return err
	}

	children, err := d.ListFiles()
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := c.Delete(); err != nil {
			return err
		}
	}

	p := d.parent
	p.remove(d.entry)
	delete(p.children, d.entry)
	if err := p.write(); err != nil {
		return err
	}

	glog.V(1).Infof("fat: deleted directory %s", d.AbsolutePath())
	return d.store.SetLength(0)
}

// Flush writes the table of the directory.
func (d *Directory) Flush() error {
	if !d.loaded {
		return nil
	}
	return d.write()
}

func (d *Directory) Close() error {
	return nil
}

func (d *Directory) Length() int64 {
	return 0
}

func (d *Directory) SetLength(int64) error {
	return d.invalid("set length")
}

func (d *Directory) ReadAt([]byte, int64) (int, error) {
	return 0, d.invalid("read")
}

func (d *Directory) WriteAt([]byte, int64) (int, error) {
	return 0, d.invalid("write")
}
