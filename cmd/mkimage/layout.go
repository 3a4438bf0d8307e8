package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/aligator/aums/partition"
	"github.com/dustin/go-humanize"
)

// alignment of the partition starts in sectors, 1 MiB for 512 byte sectors.
const alignment = 2048

var errInvalidLayout = errors.New("invalid image layout")

// volume is one filesystem to create.
type volume struct {
	Type  fsys.Type
	Size  uint64
	Label string
}

// parseVolume parses "type[:size[:label]]", e.g. "fat32:32MiB:DATA".
// A size of 0 or an omitted size uses the remaining space.
func parseVolume(s string) (volume, error) {
	parts := strings.SplitN(s, ":", 3)

	var v volume
	switch strings.ToLower(parts[0]) {
	case "fat16":
		v.Type = fsys.TypeFAT16
	case "fat32":
		v.Type = fsys.TypeFAT32
	default:
		return v, checkpoint.Wrapf(fmt.Errorf("type %q", parts[0]), errInvalidLayout, "volume %q", s)
	}

	if len(parts) > 1 && parts[1] != "" {
		size, err := humanize.ParseBytes(parts[1])
		if err != nil {
			return v, checkpoint.Wrapf(err, errInvalidLayout, "volume %q", s)
		}
		v.Size = size
	}
	if len(parts) > 2 {
		v.Label = parts[2]
	}
	return v, nil
}

// layout places the volumes one after another behind the partition table.
// Only the last volume may omit its size.
func layout(volumes []volume, sectors uint64, sectorSize int) ([]partition.Entry, error) {
	if len(volumes) == 0 {
		return nil, checkpoint.Wrapf(errors.New("no volumes"), errInvalidLayout, "layout")
	}

	var entries []partition.Entry
	start := uint64(alignment)
	for i, v := range volumes {
		if start >= sectors {
			return nil, checkpoint.Wrapf(fmt.Errorf("volume %d starts at sector %d of %d", i, start, sectors), errInvalidLayout, "layout")
		}

		count := (v.Size + uint64(sectorSize) - 1) / uint64(sectorSize)
		if count == 0 {
			if i != len(volumes)-1 {
				return nil, checkpoint.Wrapf(fmt.Errorf("volume %d has no size", i), errInvalidLayout, "layout")
			}
			count = sectors - start
		}
		if start+count > sectors {
			return nil, checkpoint.Wrapf(fmt.Errorf("volume %d ends at sector %d of %d", i, start+count, sectors), errInvalidLayout, "layout")
		}

		entries = append(entries, partition.Entry{Type: v.Type, StartLBA: uint32(start), Sectors: uint32(count)})
		start = (start + count + alignment - 1) / alignment * alignment
	}
	return entries, nil
}
