package fat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
)

// shortName is a padded 8.3 name as stored in a directory entry.
type shortName [11]byte

func newShortName(base, ext string) shortName {
	var s shortName
	for i := range s {
		s[i] = ' '
	}
	copy(s[:8], base)
	copy(s[8:], ext)
	if s[0] == entryDeleted {
		s[0] = entryKanji
	}
	return s
}

func (s shortName) parts() (string, string) {
	b := s
	if b[0] == entryKanji {
		b[0] = entryDeleted
	}
	return strings.TrimRight(string(b[:8]), " "), strings.TrimRight(string(b[8:]), " ")
}

// String returns "NAME.EXT" or "NAME".
func (s shortName) String() string {
	base, ext := s.parts()
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// display applies the lower case flags of the entry.
func (s shortName) display(ntFlags byte) string {
	base, ext := s.parts()
	if ntFlags&ntLowerBase != 0 {
		base = strings.ToLower(base)
	}
	if ntFlags&ntLowerExt != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// checksum links LFN fragments to their short entry.
func (s shortName) checksum() byte {
	var sum byte
	for _, b := range s {
		sum = (sum&1)<<7 + sum>>1 + b
	}
	return sum
}

func validShortChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r > 0x7F:
		return false
	}
	return strings.ContainsRune("$%'-_@~`!(){}^#&", r)
}

// sanitize converts part to valid short name characters.
// lossy is true if anything besides case changed.
func sanitize(part string) (string, bool) {
	var b strings.Builder
	lossy := false
	for _, r := range part {
		if !validShortChar(r) {
			r = '_'
			lossy = true
		}
		b.WriteRune(r)
	}
	return b.String(), lossy
}

// generateShortName derives a unique 8.3 name for name.
// existing holds the short names of all siblings.
func generateShortName(name string, existing map[shortName]bool) (shortName, error) {
	upper := strings.ToUpper(name)
	stripped := strings.TrimLeft(upper, ".")
	stripped = strings.ReplaceAll(stripped, " ", "")
	lossy := stripped != upper

	base, ext := stripped, ""
	if i := strings.LastIndex(stripped, "."); i >= 0 {
		base, ext = stripped[:i], stripped[i+1:]
	}
	if strings.Contains(base, ".") {
		base = strings.ReplaceAll(base, ".", "")
		lossy = true
	}

	base, baseLossy := sanitize(base)
	ext, extLossy := sanitize(ext)
	lossy = lossy || baseLossy || extLossy
	if len(ext) > 3 {
		ext = ext[:3]
		lossy = true
	}
	if base == "" {
		base = "_"
		lossy = true
	}

	if !lossy && len(base) <= 8 {
		s := newShortName(base, ext)
		if !existing[s] {
			return s, nil
		}
	}

	for i := 1; i <= 999999; i++ {
		tail := "~" + strconv.Itoa(i)
		b := base
		if len(b) > 8-len(tail) {
			b = b[:8-len(tail)]
		}
		s := newShortName(b+tail, ext)
		if !existing[s] {
			return s, nil
		}
	}

	return shortName{}, checkpoint.Wrapf(fmt.Errorf("no free short name for %q", name), fsys.ErrNameCollision, "short name")
}
