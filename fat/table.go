package fat

import (
	"errors"
	"fmt"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// These errors may occur while working with the allocation table.
var (
	ErrCorruptChain = errors.New("corrupt cluster chain")
	ErrFreeTooMany  = errors.New("freeing more clusters than the chain has")
)

const (
	clusterFree  = 0
	firstCluster = 2

	fat16Bad = 0xFFF7
	fat16EOC = 0xFFF8
	fat32Bad = 0x0FFFFFF7
	fat32EOC = 0x0FFFFFF8

	fat32Mask = 0x0FFFFFFF
)

// sectorCache holds one sector of the FAT.
type sectorCache struct {
	current int64
	dirty   bool
	buffer  []byte
}

// table manages the allocation table of a volume.
// Every mutation is written to the device before the call returns.
type table struct {
	dev  fsys.Device
	boot *BootSector
	info *fsInfo

	sector sectorCache

	// hint is the cluster allocated last.
	hint uint32
	// free is the number of free clusters, fsInfoUnknown until counted.
	free uint32
}

func newTable(dev fsys.Device, boot *BootSector, info *fsInfo) *table {
	t := &table{
		dev:  dev,
		boot: boot,
		info: info,
		sector: sectorCache{
			current: -1,
			buffer:  make([]byte, boot.BytesPerSector),
		},
		hint: firstCluster - 1,
		free: fsInfoUnknown,
	}

	if info != nil {
		if info.NextFree >= firstCluster && info.NextFree < boot.FATEntryCount() {
			t.hint = info.NextFree
		}
		if info.FreeCount <= boot.ClusterCount() {
			t.free = info.FreeCount
		}
	}
	return t
}

func (t *table) eoc() uint32 {
	if t.boot.Type == fsys.TypeFAT32 {
		return fat32Mask
	}
	return 0xFFFF
}

func (t *table) isEOC(v uint32) bool {
	if t.boot.Type == fsys.TypeFAT32 {
		return v >= fat32EOC
	}
	return v >= fat16EOC
}

func (t *table) isBad(v uint32) bool {
	if t.boot.Type == fsys.TypeFAT32 {
		return v == fat32Bad
	}
	return v == fat16Bad
}

func (t *table) valid(cluster uint32) bool {
	return cluster >= firstCluster && cluster < t.boot.FATEntryCount()
}

// fetch loads a single sector of the authoritative FAT.
func (t *table) fetch(sector int64) error {
	if sector == t.sector.current {
		return nil
	}

	if t.sector.dirty {
		if err := t.store(); err != nil {
			return err
		}
	}

	off := t.boot.FATOffset(int(t.boot.ActiveFAT)) + sector*int64(len(t.sector.buffer))
	if _, err := t.dev.ReadAt(t.sector.buffer, off); err != nil {
		t.sector.current = -1
		return checkpoint.From(err)
	}
	t.sector.current = sector
	return nil
}

// store writes the cached sector to every FAT copy if the FATs are mirrored,
// otherwise only to the active one.
func (t *table) store() error {
	if !t.sector.dirty {
		return nil
	}

	first, last := int(t.boot.ActiveFAT), int(t.boot.ActiveFAT)
	if t.boot.Mirrored {
		first, last = 0, int(t.boot.FATCount)-1
	}
	for n := first; n <= last; n++ {
		off := t.boot.FATOffset(n) + t.sector.current*int64(len(t.sector.buffer))
		if _, err := t.dev.WriteAt(t.sector.buffer, off); err != nil {
			return checkpoint.From(err)
		}
	}
	t.sector.dirty = false
	return nil
}

func (t *table) locate(cluster uint32) (int, error) {
	width := int64(t.boot.entryWidth())
	off := int64(cluster) * width
	bps := int64(len(t.sector.buffer))
	if err := t.fetch(off / bps); err != nil {
		return 0, err
	}
	return int(off % bps), nil
}

func (t *table) get(cluster uint32) (uint32, error) {
	pos, err := t.locate(cluster)
	if err != nil {
		return 0, err
	}
	b := t.sector.buffer[pos:]
	if t.boot.Type == fsys.TypeFAT32 {
		return (uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24) & fat32Mask, nil
	}
	return uint32(b[0]) | uint32(b[1])<<8, nil
}

// set changes an entry in the cache. The upper 4 bits of FAT32 entries are preserved.
func (t *table) set(cluster, value uint32) error {
	pos, err := t.locate(cluster)
	if err != nil {
		return err
	}
	b := t.sector.buffer[pos:]
	if t.boot.Type == fsys.TypeFAT32 {
		value = value&fat32Mask | uint32(b[3]&0xF0)<<24
		b[2] = byte(value >> 16)
		b[3] = byte(value >> 24)
	}
	b[0] = byte(value)
	b[1] = byte(value >> 8)
	t.sector.dirty = true
	return nil
}

// Chain returns all clusters of the chain starting at start. Start 0 is the empty chain.
func (t *table) Chain(start uint32) ([]uint32, error) {
	if start == clusterFree {
		return nil, nil
	}

	var chain []uint32
	limit := int(t.boot.ClusterCount())
	for cluster := start; ; {
		if !t.valid(cluster) {
			return nil, checkpoint.Wrapf(fmt.Errorf("cluster %d", cluster), ErrCorruptChain, "chain %d", start)
		}
		if len(chain) >= limit {
			return nil, checkpoint.Wrapf(fmt.Errorf("more than %d clusters", limit), ErrCorruptChain, "chain %d", start)
		}
		chain = append(chain, cluster)

		next, err := t.get(cluster)
		if err != nil {
			return nil, err
		}
		switch {
		case t.isEOC(next):
			return chain, nil
		case next == clusterFree || t.isBad(next):
			return nil, checkpoint.Wrapf(fmt.Errorf("cluster %d links to %#x", cluster, next), ErrCorruptChain, "chain %d", start)
		}
		cluster = next
	}
}

// FreeClusters returns the number of free clusters, counting them if unknown.
func (t *table) FreeClusters() (uint32, error) {
	if t.free != fsInfoUnknown {
		return t.free, nil
	}

	var free uint32
	for c := uint32(firstCluster); c < t.boot.FATEntryCount(); c++ {
		v, err := t.get(c)
		if err != nil {
			return 0, err
		}
		if v == clusterFree {
			free++
		}
	}
	t.free = free
	glog.V(2).Infof("fat: counted %d free clusters", free)
	return free, nil
}

// Alloc appends n free clusters to chain and returns the extended chain.
// The search starts behind the last allocated cluster and wraps around to cluster 2 once.
// If not enough clusters are free, nothing is written and an error matching fsys.ErrNoSpace is returned.
func (t *table) Alloc(chain []uint32, n int) ([]uint32, error) {
	if n <= 0 {
		return chain, nil
	}

	count := t.boot.ClusterCount()
	start := t.hint + 1
	if !t.valid(start) {
		start = firstCluster
	}

	found := make([]uint32, 0, n)
	for i := uint32(0); i < count && len(found) < n; i++ {
		c := firstCluster + (start-firstCluster+i)%count
		v, err := t.get(c)
		if err != nil {
			return chain, err
		}
		if v == clusterFree {
			found = append(found, c)
		}
	}
	if len(found) < n {
		return chain, checkpoint.Wrapf(fmt.Errorf("need %d clusters, %d free", n, len(found)), fsys.ErrNoSpace, "alloc")
	}

	// Link the new clusters and terminate them before they are attached to the chain.
	for i, c := range found {
		next := t.eoc()
		if i+1 < len(found) {
			next = found[i+1]
		}
		if err := t.set(c, next); err != nil {
			return chain, err
		}
	}
	if len(chain) > 0 {
		if err := t.set(chain[len(chain)-1], found[0]); err != nil {
			return chain, err
		}
	}
	if err := t.store(); err != nil {
		return chain, err
	}

	t.hint = found[len(found)-1]
	if t.free != fsInfoUnknown {
		t.free -= uint32(n)
	}
	glog.V(2).Infof("fat: allocated %d clusters starting at %d", n, found[0])

	return append(chain, found...), t.writeInfo()
}

// Free releases the last n clusters of chain and returns the shortened chain.
func (t *table) Free(chain []uint32, n int) ([]uint32, error) {
	if n > len(chain) {
		return chain, checkpoint.Wrapf(fmt.Errorf("%d of %d", n, len(chain)), ErrFreeTooMany, "free")
	}
	if n <= 0 {
		return chain, nil
	}

	keep := len(chain) - n
	if keep > 0 {
		if err := t.set(chain[keep-1], t.eoc()); err != nil {
			return chain, err
		}
	}
	for _, c := range chain[keep:] {
		if err := t.set(c, clusterFree); err != nil {
			return chain, err
		}
	}
	if err := t.store(); err != nil {
		return chain, err
	}

	if t.free != fsInfoUnknown {
		t.free += uint32(n)
	}
	glog.V(2).Infof("fat: freed %d clusters", n)

	return chain[:keep], t.writeInfo()
}

func (t *table) writeInfo() error {
	if t.info == nil {
		return nil
	}
	t.info.NextFree = t.hint
	t.info.FreeCount = t.free
	return t.info.write()
}
