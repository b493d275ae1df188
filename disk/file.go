package disk

import (
	"errors"
	"fmt"

	"github.com/tinyunix/tinyunix/backend/file"
)

var errNotDevice = errors.New("backing storage is not a block device")

// Create makes a new image file at path sized for totalBlocks blocks and
// returns a Device backed by it, the equivalent of laying out a blank
// simulated disk for format() to initialize.
func Create(path string, totalBlocks int) (*Disk, error) {
	if totalBlocks <= 0 {
		return nil, fmt.Errorf("totalBlocks must be positive, got %d", totalBlocks)
	}
	storage, err := file.CreateFromPath(path, int64(totalBlocks)*BlockSize)
	if err != nil {
		return nil, err
	}
	return New(storage, totalBlocks), nil
}

// Open attaches to an existing image file or block device at path, trusting
// the caller's totalBlocks unless the path names a real device, in which
// case verification via BLKGETSIZE64 is attempted and a
// mismatch is reported rather than silently accepted.
func Open(path string, totalBlocks int, readOnly bool) (*Disk, error) {
	storage, err := file.OpenFromPath(path, readOnly)
	if err != nil {
		return nil, err
	}
	if osFile, sysErr := storage.Sys(); sysErr == nil {
		if actual, err := deviceBlockCount(osFile); err == nil && actual != totalBlocks {
			return nil, fmt.Errorf("device %s reports %d blocks, caller requested %d", path, actual, totalBlocks)
		}
	}
	return New(storage, totalBlocks), nil
}
