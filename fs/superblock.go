package fs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tinyunix/tinyunix/codec"
	"github.com/tinyunix/tinyunix/disk"
)

// SuperBlock is the process-wide singleton holding block 0's metadata and
// the head of the free-block list. getFreeBlock and returnBlock must run
// atomically with respect to each other since both mutate freeListHead and
// touch the head block; a single mutex guards that state together with its
// on-disk update.
type SuperBlock struct {
	mu sync.Mutex

	totalBlocks  int
	inodeBlocks  int // number of inumbers the directory can hold
	freeListHead int

	// VolumeID is additive metadata beyond the three invariant-bearing
	// fields above, stamped fresh on every format() the way ext4 stamps a
	// UUID. It lives in block 0's otherwise-unused spare bytes and never
	// participates in the totalBlocks/inodeBlocks/freeListHead validity check.
	volumeID uuid.UUID
}

// TotalBlocks, InodeBlocks and FreeListHead expose the superblock's fields
// for callers (the FileSystem facade, tests) that need to read them.
func (sb *SuperBlock) TotalBlocks() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.totalBlocks
}

func (sb *SuperBlock) InodeBlocks() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.inodeBlocks
}

func (sb *SuperBlock) FreeListHead() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.freeListHead
}

func (sb *SuperBlock) VolumeID() uuid.UUID {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.volumeID
}

const superblockSpareOffset = 12 // VolumeID occupies bytes [12,28) of block 0

func encodeSuperblock(sb *SuperBlock) []byte {
	buf := make([]byte, BlockSize)
	codec.PutInt32(buf, 0, int32(sb.totalBlocks))
	codec.PutInt32(buf, 4, int32(sb.inodeBlocks))
	codec.PutInt32(buf, 8, int32(sb.freeListHead))
	copy(buf[superblockSpareOffset:superblockSpareOffset+16], sb.volumeID[:])
	return buf
}

func decodeSuperblock(buf []byte) *SuperBlock {
	sb := &SuperBlock{
		totalBlocks:  int(codec.Int32(buf, 0)),
		inodeBlocks:  int(codec.Int32(buf, 4)),
		freeListHead: int(codec.Int32(buf, 8)),
	}
	copy(sb.volumeID[:], buf[superblockSpareOffset:superblockSpareOffset+16])
	return sb
}

// LoadSuperBlock reads block 0 and accepts it if it looks like a valid
// superblock for a device of device.TotalBlocks() blocks; otherwise it
// formats the device fresh with defaultInodeCount inumbers.
// The second return value reports whether a fresh format happened, which
// tells Mount whether the directory region of inode 0 is live or still
// needs to be initialized.
func LoadSuperBlock(device disk.Device, defaultInodeCount int) (*SuperBlock, bool, error) {
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(0, buf); err != nil {
		return nil, false, fmt.Errorf("read superblock: %w", err)
	}
	sb := decodeSuperblock(buf)

	valid := sb.totalBlocks == device.TotalBlocks() &&
		sb.inodeBlocks > 0 &&
		(sb.freeListHead == Unassigned || sb.freeListHead >= 1+inodeTableBlocks(sb.inodeBlocks))
	if valid {
		return sb, false, nil
	}

	sb = &SuperBlock{}
	if err := sb.Format(device, defaultInodeCount); err != nil {
		return nil, false, fmt.Errorf("format fresh superblock: %w", err)
	}
	return sb, true, nil
}

// Sync writes the current fields to block 0.
func (sb *SuperBlock) Sync(device disk.Device) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.syncLocked(device)
}

func (sb *SuperBlock) syncLocked(device disk.Device) error {
	if err := device.WriteBlock(0, encodeSuperblock(sb)); err != nil {
		return fmt.Errorf("sync superblock: %w", err)
	}
	return nil
}

// Format lays out a fresh superblock, inode table and free list for a
// device of numInodes inumbers: it writes a blank "unused" inode (per the
// flag=1 quirk, see newUnusedInode) into every reserved inumber slot, then
// threads the free list through every remaining data block.
func (sb *SuperBlock) Format(device disk.Device, numInodes int) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.totalBlocks = device.TotalBlocks()
	sb.inodeBlocks = numInodes
	sb.freeListHead = 1 + inodeTableBlocks(numInodes)
	sb.volumeID = uuid.New()

	blank := newUnusedInode()
	for i := 0; i < numInodes; i++ {
		if err := blank.Store(device, i); err != nil {
			return fmt.Errorf("format inode %d: %w", i, err)
		}
	}

	buf := make([]byte, BlockSize)
	for b := sb.freeListHead; b < sb.totalBlocks; b++ {
		next := b + 1
		if b == sb.totalBlocks-1 {
			next = Unassigned
		}
		codec.PutInt32(buf, 0, int32(next))
		if err := device.WriteBlock(b, buf); err != nil {
			return fmt.Errorf("format free block %d: %w", b, err)
		}
	}

	return sb.syncLocked(device)
}

// GetFreeBlock pops the head of the free list, or returns (-1, nil) if the
// list is exhausted.
func (sb *SuperBlock) GetFreeBlock(device disk.Device) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.freeListHead < 0 || sb.freeListHead >= sb.totalBlocks {
		return Unassigned, nil
	}

	head := sb.freeListHead
	buf := make([]byte, BlockSize)
	if err := device.ReadBlock(head, buf); err != nil {
		return 0, fmt.Errorf("get free block: %w", err)
	}
	sb.freeListHead = int(codec.Int32(buf, 0))
	return head, nil
}

// ReturnBlock pushes b back onto the head of the free list. It returns
// false if b is out of [0, totalBlocks).
func (sb *SuperBlock) ReturnBlock(device disk.Device, b int) (bool, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if b < 0 || b >= sb.totalBlocks {
		return false, nil
	}

	buf := make([]byte, BlockSize)
	codec.PutInt32(buf, 0, int32(sb.freeListHead))
	if err := device.WriteBlock(b, buf); err != nil {
		return false, fmt.Errorf("return block %d: %w", b, err)
	}
	sb.freeListHead = b
	return true, nil
}
