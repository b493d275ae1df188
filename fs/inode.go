package fs

import (
	"fmt"

	"github.com/tinyunix/tinyunix/codec"
	"github.com/tinyunix/tinyunix/disk"
)

// Inode is the 32-byte per-file metadata record: size, reference count,
// state flag, and the direct/indirect pointer table that maps byte offsets
// to data blocks. It is a plain value loaded and stored through an
// inumber — it never holds a back-reference to the superblock or disk that
// produced it, so ownership of allocation policy stays with the caller
// (the FileSystem facade).
type Inode struct {
	Length   int32
	Count    int16
	Flag     int16
	Direct   [DirectPointers]int16
	Indirect int16
}

// newUnusedInode returns the inode format() writes into every reserved
// inumber slot: zero length, zero references, all pointers unassigned. Its
// Flag is intentionally flagUsed (1), not flagUnused (0) — freshly formatted
// inodes are marked "used" even though none of them are yet, preserved here
// for on-disk compatibility with that convention.
func newUnusedInode() *Inode {
	in := &Inode{Flag: flagUsed, Indirect: Unassigned}
	for i := range in.Direct {
		in.Direct[i] = Unassigned
	}
	return in
}

func inodeBlockAndOffset(inumber int) (block, offset int) {
	block = 1 + inumber/InodesPerBlock
	offset = (inumber % InodesPerBlock) * InodeSize
	return
}

// LoadInode reads the block containing inumber's slot and decodes it.
func LoadInode(device disk.Device, inumber int) (*Inode, error) {
	if inumber < 0 {
		return nil, fmt.Errorf("inumber %d is negative", inumber)
	}
	block, offset := inodeBlockAndOffset(inumber)
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(block, buf); err != nil {
		return nil, fmt.Errorf("load inode %d: %w", inumber, err)
	}
	return decodeInode(buf[offset : offset+InodeSize]), nil
}

func decodeInode(b []byte) *Inode {
	in := &Inode{
		Length: codec.Int32(b, 0),
		Count:  codec.Int16(b, 4),
		Flag:   codec.Int16(b, 6),
	}
	for i := 0; i < DirectPointers; i++ {
		in.Direct[i] = codec.Int16(b, 8+i*2)
	}
	in.Indirect = codec.Int16(b, 8+DirectPointers*2)
	return in
}

func (in *Inode) encode(b []byte) {
	codec.PutInt32(b, 0, in.Length)
	codec.PutInt16(b, 4, in.Count)
	codec.PutInt16(b, 6, in.Flag)
	for i := 0; i < DirectPointers; i++ {
		codec.PutInt16(b, 8+i*2, in.Direct[i])
	}
	codec.PutInt16(b, 8+DirectPointers*2, in.Indirect)
}

// Store performs a read-modify-write of inumber's containing block so the
// other 15 inodes packed into it are not clobbered.
func (in *Inode) Store(device disk.Device, inumber int) error {
	if inumber < 0 {
		return fmt.Errorf("inumber %d is negative", inumber)
	}
	block, offset := inodeBlockAndOffset(inumber)
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(block, buf); err != nil {
		return fmt.Errorf("store inode %d: %w", inumber, err)
	}
	in.encode(buf[offset : offset+InodeSize])
	if err := device.WriteBlock(block, buf); err != nil {
		return fmt.Errorf("store inode %d: %w", inumber, err)
	}
	return nil
}

// BlockForOffset maps a byte offset to the block number holding it, or
// Unassigned if no block has been assigned there yet.
func (in *Inode) BlockForOffset(device disk.Device, off int) (int, error) {
	if off < DirectPointers*BlockSize {
		return int(in.Direct[off/BlockSize]), nil
	}
	if in.Indirect == Unassigned {
		return Unassigned, nil
	}
	idx := (off - DirectPointers*BlockSize) / BlockSize
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(int(in.Indirect), buf); err != nil {
		return 0, fmt.Errorf("read indirect block: %w", err)
	}
	return int(codec.Int16(buf, idx*2)), nil
}

// AssignBlockForOffset records blockNumber as the block backing off. For an
// offset in the indirect range, the indirect block must already be
// registered via RegisterIndirect — otherwise ErrIndirectNull is returned
// and the caller is responsible for allocating and registering one first.
func (in *Inode) AssignBlockForOffset(device disk.Device, off, blockNumber int) error {
	if off < DirectPointers*BlockSize {
		in.Direct[off/BlockSize] = int16(blockNumber)
		return nil
	}
	if in.Indirect == Unassigned {
		return ErrIndirectNull
	}
	idx := (off - DirectPointers*BlockSize) / BlockSize
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(int(in.Indirect), buf); err != nil {
		return fmt.Errorf("read indirect block: %w", err)
	}
	codec.PutInt16(buf, idx*2, int16(blockNumber))
	if err := device.WriteBlock(int(in.Indirect), buf); err != nil {
		return fmt.Errorf("write indirect block: %w", err)
	}
	return nil
}

// RegisterIndirect records blockNumber as the inode's indirect block. It
// only succeeds once every direct slot is assigned and no indirect block is
// already registered. It does not initialize the indirect block's
// contents — the caller does that separately.
func (in *Inode) RegisterIndirect(blockNumber int) bool {
	if in.Indirect != Unassigned {
		return false
	}
	for _, d := range in.Direct {
		if d == Unassigned {
			return false
		}
	}
	in.Indirect = int16(blockNumber)
	return true
}

// UnregisterIndirect reads the current indirect block, zeroes it on disk,
// clears the inode's indirect pointer, and returns the block's prior
// contents (nil if no indirect block was registered).
func (in *Inode) UnregisterIndirect(device disk.Device) ([]byte, error) {
	if in.Indirect == Unassigned {
		return nil, nil
	}
	block := int(in.Indirect)
	old := make([]byte, BlockSize)
	if err := device.ReadBlock(block, old); err != nil {
		return nil, fmt.Errorf("read indirect block: %w", err)
	}
	zero := make([]byte, BlockSize)
	if err := device.WriteBlock(block, zero); err != nil {
		return nil, fmt.Errorf("zero indirect block: %w", err)
	}
	in.Indirect = Unassigned
	return old, nil
}
