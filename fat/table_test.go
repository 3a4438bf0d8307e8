package fat

import (
	"errors"
	"testing"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/fsys"
	"github.com/google/go-cmp/cmp"
)

// fatEntries reads the first n entries of the active FAT.
func fatEntries(t *testing.T, tab *table, n int) []uint32 {
	t.Helper()

	result := make([]uint32, n)
	for i := range result {
		v, err := tab.get(uint32(i))
		if err != nil {
			t.Fatalf("get(%d) error = %v", i, err)
		}
		result[i] = v
	}
	return result
}

func TestTable_Chain_empty(t *testing.T) {
	fs, _ := testFormat(t, fsys.TypeFAT16, "")

	chain, err := fs.table.Chain(0)
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if chain != nil {
		t.Errorf("Chain() got = %v, want nil", chain)
	}
}

func TestTable_Alloc(t *testing.T) {
	tests := []struct {
		name  string
		typ   fsys.Type
		first uint32
		eoc   uint32
	}{
		{name: "FAT16", typ: fsys.TypeFAT16, first: 2, eoc: 0xFFFF},
		{name: "FAT32 behind the root", typ: fsys.TypeFAT32, first: 3, eoc: fat32Mask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := testFormat(t, tt.typ, "")
			tab := fs.table

			chain, err := tab.Alloc(nil, 3)
			if err != nil {
				t.Fatalf("Alloc() error = %v", err)
			}
			want := []uint32{tt.first, tt.first + 1, tt.first + 2}
			if diff := cmp.Diff(want, chain); diff != "" {
				t.Errorf("Alloc() mismatch (-want +got):\n%s", diff)
			}

			chain, err = tab.Alloc(chain, 2)
			if err != nil {
				t.Fatalf("Alloc() error = %v", err)
			}
			if len(chain) != 5 || chain[4] != tt.first+4 {
				t.Errorf("Alloc() got = %v, want 5 consecutive clusters", chain)
			}

			got, err := tab.Chain(chain[0])
			if err != nil {
				t.Fatalf("Chain() error = %v", err)
			}
			if diff := cmp.Diff(chain, got); diff != "" {
				t.Errorf("Chain() mismatch (-want +got):\n%s", diff)
			}

			last, _ := tab.get(chain[4])
			if last != tt.eoc {
				t.Errorf("tail entry = %#x, want %#x", last, tt.eoc)
			}
		})
	}
}

func TestTable_Alloc_Free_restores(t *testing.T) {
	bothTypes(t, func(t *testing.T, fs *FileSystem, _ *block.ByteDevice) {
		tab := fs.table
		n := int(fs.boot.FATEntryCount())
		if n > 64 {
			n = 64
		}

		before := fatEntries(t, tab, n)
		freeBefore, err := tab.FreeClusters()
		if err != nil {
			t.Fatalf("FreeClusters() error = %v", err)
		}

		existing, err := tab.Alloc(nil, 2)
		if err != nil {
			t.Fatalf("Alloc() error = %v", err)
		}
		afterFirst := fatEntries(t, tab, n)

		chain, err := tab.Alloc(existing, 4)
		if err != nil {
			t.Fatalf("Alloc() error = %v", err)
		}

		eocs := 0
		for _, c := range chain {
			v, _ := tab.get(c)
			if tab.isEOC(v) {
				eocs++
			}
		}
		if eocs != 1 {
			t.Errorf("chain has %d end markers, want 1", eocs)
		}

		chain, err = tab.Free(chain, 4)
		if err != nil {
			t.Fatalf("Free() error = %v", err)
		}
		if diff := cmp.Diff(existing, chain); diff != "" {
			t.Errorf("Free() mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(afterFirst, fatEntries(t, tab, n)); diff != "" {
			t.Errorf("FAT after Free() mismatch (-want +got):\n%s", diff)
		}

		if _, err := tab.Free(chain, 2); err != nil {
			t.Fatalf("Free() error = %v", err)
		}
		if diff := cmp.Diff(before, fatEntries(t, tab, n)); diff != "" {
			t.Errorf("FAT after Free() mismatch (-want +got):\n%s", diff)
		}

		freeAfter, _ := tab.FreeClusters()
		if freeAfter != freeBefore {
			t.Errorf("FreeClusters() got = %d, want %d", freeAfter, freeBefore)
		}
	})
}

func TestTable_Alloc_noSpace(t *testing.T) {
	bothTypes(t, func(t *testing.T, fs *FileSystem, _ *block.ByteDevice) {
		tab := fs.table
		free, err := tab.FreeClusters()
		if err != nil {
			t.Fatalf("FreeClusters() error = %v", err)
		}
		n := int(fs.boot.FATEntryCount())
		before := fatEntries(t, tab, n)

		chain, err := tab.Alloc(nil, int(free)+1)
		if !errors.Is(err, fsys.ErrNoSpace) {
			t.Fatalf("Alloc() error = %v, want %v", err, fsys.ErrNoSpace)
		}
		if chain != nil {
			t.Errorf("Alloc() got = %v, want nil", chain)
		}
		if diff := cmp.Diff(before, fatEntries(t, tab, n)); diff != "" {
			t.Errorf("FAT changed on failed Alloc() (-want +got):\n%s", diff)
		}

		chain, err = tab.Alloc(nil, int(free))
		if err != nil {
			t.Fatalf("Alloc() of all free clusters error = %v", err)
		}
		if len(chain) != int(free) {
			t.Errorf("Alloc() got %d clusters, want %d", len(chain), free)
		}
		if got, _ := tab.FreeClusters(); got != 0 {
			t.Errorf("FreeClusters() got = %d, want 0", got)
		}
		if _, err := tab.Alloc(chain, 1); !errors.Is(err, fsys.ErrNoSpace) {
			t.Errorf("Alloc() on a full volume error = %v, want %v", err, fsys.ErrNoSpace)
		}
	})
}

func TestTable_Alloc_wraps(t *testing.T) {
	fs, _ := testFormat(t, fsys.TypeFAT16, "")
	tab := fs.table
	last := fs.boot.FATEntryCount() - 1

	tab.hint = last - 1
	chain, err := tab.Alloc(nil, 2)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if diff := cmp.Diff([]uint32{last, 2}, chain); diff != "" {
		t.Errorf("Alloc() mismatch (-want +got):\n%s", diff)
	}
	if tab.hint != 2 {
		t.Errorf("hint got = %d, want 2", tab.hint)
	}
}

func TestTable_Free_tooMany(t *testing.T) {
	fs, _ := testFormat(t, fsys.TypeFAT16, "")

	chain, err := fs.table.Alloc(nil, 2)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if _, err := fs.table.Free(chain, 3); !errors.Is(err, ErrFreeTooMany) {
		t.Errorf("Free() error = %v, want %v", err, ErrFreeTooMany)
	}
}

func TestTable_Chain_corrupt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(tab *table)
		start uint32
	}{
		{
			name:  "cycle",
			setup: func(tab *table) { _ = tab.set(2, 3); _ = tab.set(3, 2) },
			start: 2,
		},
		{
			name:  "link to free cluster",
			setup: func(tab *table) { _ = tab.set(2, 3) },
			start: 2,
		},
		{
			name:  "bad cluster",
			setup: func(tab *table) { _ = tab.set(2, fat16Bad) },
			start: 2,
		},
		{
			name:  "reserved start",
			setup: func(tab *table) {},
			start: 1,
		},
		{
			name:  "out of range",
			setup: func(tab *table) { _ = tab.set(2, 0xFFF0) },
			start: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := testFormat(t, fsys.TypeFAT16, "")
			tt.setup(fs.table)
			if err := fs.table.store(); err != nil {
				t.Fatal(err)
			}

			if _, err := fs.table.Chain(tt.start); !errors.Is(err, ErrCorruptChain) {
				t.Errorf("Chain() error = %v, want %v", err, ErrCorruptChain)
			}
		})
	}
}

func TestTable_mirrored(t *testing.T) {
	bothTypes(t, func(t *testing.T, fs *FileSystem, dev *block.ByteDevice) {
		if _, err := fs.table.Alloc(nil, 300); err != nil {
			t.Fatalf("Alloc() error = %v", err)
		}

		size := int64(fs.boot.SectorsPerFAT) * int64(fs.boot.BytesPerSector)
		first := make([]byte, size)
		second := make([]byte, size)
		if _, err := dev.ReadAt(first, fs.boot.FATOffset(0)); err != nil {
			t.Fatal(err)
		}
		if _, err := dev.ReadAt(second, fs.boot.FATOffset(1)); err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(first, second) {
			t.Error("FAT copies differ")
		}
	})
}

func TestTable_fsInfo(t *testing.T) {
	fs, dev := testFormat(t, fsys.TypeFAT32, "")
	offset := int64(fs.boot.FSInfoSector) * int64(fs.boot.BytesPerSector)
	total := fs.boot.ClusterCount()

	info, err := readFSInfo(dev, offset)
	if err != nil || info == nil {
		t.Fatalf("readFSInfo() = %v, %v", info, err)
	}
	if info.FreeCount != total-1 || info.NextFree != 2 {
		t.Errorf("formatted FSInfo got = %d/%d, want %d/2", info.FreeCount, info.NextFree, total-1)
	}

	chain, err := fs.table.Alloc(nil, 4)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	info, _ = readFSInfo(dev, offset)
	if info.FreeCount != total-5 || info.NextFree != 6 {
		t.Errorf("FSInfo after Alloc() got = %d/%d, want %d/6", info.FreeCount, info.NextFree, total-5)
	}

	if _, err := fs.table.Free(chain, 4); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	info, _ = readFSInfo(dev, offset)
	if info.FreeCount != total-1 {
		t.Errorf("FSInfo after Free() got = %d, want %d", info.FreeCount, total-1)
	}

	// A new mount continues behind the last allocation.
	fs = testMount(t, dev)
	chain, err = fs.table.Alloc(nil, 1)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if chain[0] != 7 {
		t.Errorf("Alloc() after remount got = %v, want [7]", chain)
	}
}

func TestTable_fsInfo_invalid(t *testing.T) {
	fs, dev := testFormat(t, fsys.TypeFAT32, "")
	offset := int64(fs.boot.FSInfoSector) * int64(fs.boot.BytesPerSector)
	if _, err := dev.WriteAt([]byte{0, 0, 0, 0}, offset); err != nil {
		t.Fatal(err)
	}

	fs = testMount(t, dev)
	if fs.table.info != nil {
		t.Error("invalid FSInfo was used")
	}
	free, err := fs.table.FreeClusters()
	if err != nil {
		t.Fatalf("FreeClusters() error = %v", err)
	}
	if free != fs.boot.ClusterCount()-1 {
		t.Errorf("FreeClusters() got = %d, want %d", free, fs.boot.ClusterCount()-1)
	}
}
