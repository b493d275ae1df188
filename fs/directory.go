package fs

import (
	"sync"
	"unicode/utf16"

	"github.com/tinyunix/tinyunix/codec"
)

// Directory is the flat name-to-inumber table rooted at "/", persisted as
// the contents of inode 0. ialloc/ifree/namei must be atomic with respect
// to each other, so a single mutex guards the whole table.
type Directory struct {
	mu sync.Mutex

	used  []bool
	sizes []int32    // current length of each name, in UTF-16-like code units
	units [][]uint16 // fixed-width nameSlotBytes/2 code units per slot
}

// NewDirectory creates a directory of capacity n. Slot 0 is reserved for
// "/"; every other slot starts unused.
func NewDirectory(n int) *Directory {
	d := &Directory{
		used:  make([]bool, n),
		sizes: make([]int32, n),
		units: make([][]uint16, n),
	}
	for i := range d.units {
		d.units[i] = make([]uint16, MaxNameLength)
	}
	if n > 0 {
		d.setSlot(0, "/")
		d.used[0] = true
	}
	return d
}

func (d *Directory) setSlot(i int, name string) {
	r := utf16.Encode([]rune(name))
	if len(r) > MaxNameLength {
		r = r[:MaxNameLength]
	}
	copy(d.units[i], r)
	for j := len(r); j < MaxNameLength; j++ {
		d.units[i][j] = 0
	}
	d.sizes[i] = int32(len(r))
}

func (d *Directory) nameAt(i int) string {
	n := int(d.sizes[i])
	if n > MaxNameLength {
		n = MaxNameLength
	}
	return string(utf16.Decode(d.units[i][:n]))
}

// Capacity returns the number of inumbers the directory can hold.
func (d *Directory) Capacity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.used)
}

// ToBytes serializes the directory as N*4 bytes of sizes followed by
// N*(2*MaxNameLength) bytes of fixed-width names.
func (d *Directory) ToBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.used)
	buf := make([]byte, n*4+n*nameSlotBytes)
	for i := 0; i < n; i++ {
		size := d.sizes[i]
		if !d.used[i] {
			size = 0
		}
		codec.PutInt32(buf, i*4, size)
	}
	base := n * 4
	for i := 0; i < n; i++ {
		off := base + i*nameSlotBytes
		for j := 0; j < MaxNameLength; j++ {
			codec.PutInt16(buf, off+j*2, int16(d.units[i][j]))
		}
	}
	return buf
}

// FromBytes reconstructs a directory of capacity n from the encoding
// ToBytes produces, inferring `used` from a nonzero size (slot 0 is always
// used, matching the "/" convention).
func FromBytes(buf []byte, n int) *Directory {
	d := &Directory{
		used:  make([]bool, n),
		sizes: make([]int32, n),
		units: make([][]uint16, n),
	}
	for i := range d.units {
		d.units[i] = make([]uint16, MaxNameLength)
	}
	for i := 0; i < n; i++ {
		d.sizes[i] = codec.Int32(buf, i*4)
	}
	base := n * 4
	for i := 0; i < n; i++ {
		off := base + i*nameSlotBytes
		for j := 0; j < MaxNameLength; j++ {
			d.units[i][j] = uint16(codec.Int16(buf, off+j*2))
		}
		d.used[i] = d.sizes[i] > 0
	}
	if n > 0 {
		d.used[0] = true
	}
	return d
}

// Ialloc truncates name to MaxNameLength code units, finds the lowest
// unused inumber i >= 1, marks it used, stores the (truncated) name, and
// returns i. It returns -1 if every slot is already used.
func (d *Directory) Ialloc(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 1; i < len(d.used); i++ {
		if !d.used[i] {
			d.used[i] = true
			d.setSlot(i, name)
			return i
		}
	}
	return -1
}

// Ifree clears inumber i's slot if it is in range and used.
func (d *Directory) Ifree(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i < 0 || i >= len(d.used) || !d.used[i] {
		return false
	}
	d.used[i] = false
	d.setSlot(i, "")
	return true
}

// Namei resolves name to its inumber by exact-string linear scan, or -1 if
// not found.
func (d *Directory) Namei(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.used {
		if d.used[i] && d.nameAt(i) == name {
			return i
		}
	}
	return -1
}
