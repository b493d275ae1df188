// Package disk provides the simulated block device the metadata engine in
// package fs is built against: a fixed-size array of fixed-size blocks with
// blocking raw-read/raw-write primitives. It deliberately knows nothing
// about inodes, directories or free lists — those live in package fs, which
// only ever calls ReadBlock/WriteBlock/Sync/TotalBlocks on the Device
// interface below.
package disk

import (
	"fmt"
	"sync"

	"github.com/tinyunix/tinyunix/backend"
)

// BlockSize is the fixed size, in bytes, of every block on the simulated
// device. It is duplicated from fs.BlockSize to avoid disk depending on fs;
// fs.BlockSize must always equal this value.
const BlockSize = 512

// Device is the disk collaborator the metadata engine consumes. Every
// operation is blocking and the device itself serializes raw reads and
// writes one at a time, matching the single-threaded backing store a real
// block device or image file provides.
type Device interface {
	// ReadBlock reads the block-sized contents of block into buf.
	// len(buf) must equal BlockSize.
	ReadBlock(block int, buf []byte) error
	// WriteBlock writes the block-sized contents of buf to block.
	// len(buf) must equal BlockSize.
	WriteBlock(block int, buf []byte) error
	// Sync flushes any buffered state to the backing storage.
	Sync() error
	// TotalBlocks reports the fixed number of blocks on the device.
	TotalBlocks() int
}

// Disk is a Device backed by a github.com/tinyunix/tinyunix/backend.Storage —
// typically a plain file or an actual block device opened through
// backend/file. Reads and writes are serialized with a mutex the same way
// the simulated device they replace would serialize them: one operation
// on the backing store at a time.
type Disk struct {
	mu          sync.Mutex
	storage     backend.Storage
	totalBlocks int
}

// New wraps storage as a Device of totalBlocks fixed-size blocks.
// storage must already be sized to at least totalBlocks*BlockSize bytes.
func New(storage backend.Storage, totalBlocks int) *Disk {
	return &Disk{storage: storage, totalBlocks: totalBlocks}
}

func (d *Disk) TotalBlocks() int { return d.totalBlocks }

func (d *Disk) checkBlock(block int) error {
	if block < 0 || block >= d.totalBlocks {
		return &BlockRangeError{Block: block, TotalBlocks: d.totalBlocks}
	}
	return nil
}

func (d *Disk) ReadBlock(block int, buf []byte) error {
	if len(buf) != BlockSize {
		return &BufferSizeError{Got: len(buf), Want: BlockSize}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBlock(block); err != nil {
		return err
	}
	n, err := d.storage.ReadAt(buf, int64(block)*BlockSize)
	if err != nil && n != BlockSize {
		return fmt.Errorf("read block %d: %w", block, err)
	}
	return nil
}

func (d *Disk) WriteBlock(block int, buf []byte) error {
	if len(buf) != BlockSize {
		return &BufferSizeError{Got: len(buf), Want: BlockSize}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBlock(block); err != nil {
		return err
	}
	w, err := d.storage.Writable()
	if err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	if _, err := w.WriteAt(buf, int64(block)*BlockSize); err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

func (d *Disk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.storage.Writable()
	if err != nil {
		return nil
	}
	if syncer, ok := w.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close releases the underlying backend.Storage, e.g. the *os.File a
// file-backed Disk opened through Create or Open.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.storage.Close()
}
