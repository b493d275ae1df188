package fs

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tinyunix/tinyunix/codec"
	"github.com/tinyunix/tinyunix/disk"
)

// Whence selects the reference point Seek measures offset from.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// FileSystem is the public facade: it ties the superblock, root directory
// and file table to a block device and exposes format, open, close, fsize,
// read, write, seek and delete as a single coherent API.
type FileSystem struct {
	device disk.Device
	sb     *SuperBlock
	ft     *FileTable
	log    logrus.FieldLogger
}

// Mount loads the superblock and root directory from device, formatting the
// device fresh with defaultInodeCount inumbers if block 0 does not already
// hold a valid one. The root directory lives as the contents of inode 0, so
// a fresh format also initializes that inode's contents.
func Mount(device disk.Device, defaultInodeCount int) (*FileSystem, error) {
	sb, fresh, err := LoadSuperBlock(device, defaultInodeCount)
	if err != nil {
		return nil, err
	}

	log := logrus.StandardLogger().WithField("component", "fs")

	inode0, err := LoadInode(device, 0)
	if err != nil {
		return nil, err
	}

	n := sb.InodeBlocks()
	var dir *Directory
	if fresh {
		dir = NewDirectory(n)
		if _, err := writeBlocks(device, sb, inode0, 0, 0, dir.ToBytes()); err != nil {
			return nil, fmt.Errorf("persist fresh directory: %w", err)
		}
		if err := inode0.Store(device, 0); err != nil {
			return nil, err
		}
		if err := sb.Sync(device); err != nil {
			return nil, err
		}
		log.WithField("inodes", n).Info("mounted a freshly formatted device")
	} else {
		buf := make([]byte, n*4+n*nameSlotBytes)
		if _, err := readBlocks(device, inode0, 0, buf); err != nil {
			return nil, fmt.Errorf("read root directory: %w", err)
		}
		dir = FromBytes(buf, n)
		log.Info("mounted an existing device")
	}

	return &FileSystem{
		device: device,
		sb:     sb,
		ft:     NewFileTable(dir),
		log:    log,
	}, nil
}

// Format suspends until every open entry is closed, then resets the
// superblock's inode table and free list, replaces the root directory with
// an empty one of capacity numFiles, and persists it.
// Everything reachable only through the old directory becomes unreachable;
// its data blocks go back on the free list, which SuperBlock.Format rebuilds
// from scratch over every data block.
func (f *FileSystem) Format(numFiles int) error {
	f.ft.mu.Lock()
	defer f.ft.mu.Unlock()

	for len(f.ft.entries) != 0 {
		f.ft.cond.Wait()
	}

	if err := f.sb.Format(f.device, numFiles); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	dir := NewDirectory(numFiles)
	f.ft.dir = dir
	f.ft.pinned = make(map[int]*pinnedInode)

	inode0, err := LoadInode(f.device, 0)
	if err != nil {
		return err
	}
	if _, err := writeBlocks(f.device, f.sb, inode0, 0, 0, dir.ToBytes()); err != nil {
		return fmt.Errorf("persist formatted directory: %w", err)
	}
	if err := inode0.Store(f.device, 0); err != nil {
		return err
	}
	if err := f.sb.Sync(f.device); err != nil {
		return err
	}

	f.log.WithField("inodes", numFiles).Warn("formatted filesystem; prior contents are unreachable")
	return nil
}

// Open resolves name to a new FileTableEntry in the given mode, creating
// name if it does not exist and mode is writable. ModeWrite additionally
// truncates any existing contents before the entry is returned.
func (f *FileSystem) Open(name string, mode AccessMode) (*FileTableEntry, error) {
	entry, err := f.ft.Falloc(f.device, name, mode)
	if err != nil {
		return nil, err
	}

	if mode == ModeWrite {
		entry.mu.Lock()
		terr := truncateInode(f.device, f.sb, entry.inode)
		entry.offset = 0
		entry.mu.Unlock()
		if terr != nil {
			f.log.WithError(terr).Warn("truncate on open failed")
			return entry, terr
		}
	}

	return entry, nil
}

// Close releases entry. Once its inode's reference count drops to zero the
// inode is persisted to disk.
func (f *FileSystem) Close(entry *FileTableEntry) (bool, error) {
	return f.ft.Ffree(f.device, entry)
}

// Fsize returns entry's current file length in bytes.
func (f *FileSystem) Fsize(entry *FileTableEntry) int {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return int(entry.inode.Length)
}

// Read copies up to len(buf) bytes starting at entry's current offset into
// buf, advancing the offset by however many bytes were actually read. It
// stops short of len(buf) at the file's length or at the first unassigned
// block; neither is an error.
func (f *FileSystem) Read(entry *FileTableEntry, buf []byte) (int, error) {
	if entry.mode != ModeRead && entry.mode != ModeReadWrite {
		return 0, ErrInvalidMode
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	n, err := readBlocks(f.device, entry.inode, entry.offset, buf)
	entry.offset += n
	return n, err
}

// Write copies data into entry's file starting at its current offset,
// allocating blocks as needed, and advances the offset by however many
// bytes were actually written. ModeAppend ignores the entry's offset and
// always writes at the current end of file. A write that exhausts the free
// list or the maximum file size stops short rather than failing outright,
// unless nothing at all could be written.
func (f *FileSystem) Write(entry *FileTableEntry, buf []byte) (int, error) {
	if entry.mode == ModeRead {
		return 0, ErrInvalidMode
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.mode == ModeAppend {
		entry.offset = int(entry.inode.Length)
	}

	n, err := writeBlocks(f.device, f.sb, entry.inode, entry.inumber, entry.offset, buf)
	entry.offset += n
	if err != nil {
		f.log.WithError(err).Warn("write stopped short")
	}

	if serr := entry.inode.Store(f.device, entry.inumber); serr != nil {
		return n, serr
	}
	return n, err
}

// Seek repositions entry's offset relative to whence, clamped to
// [0, file length]. It never grows the file.
func (f *FileSystem) Seek(entry *FileTableEntry, offset int, whence Whence) (int, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	var base int
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = entry.offset
	case SeekEnd:
		base = int(entry.inode.Length)
	default:
		return entry.offset, ErrInvalidMode
	}

	pos := base + offset
	if pos < 0 {
		pos = 0
	}
	if length := int(entry.inode.Length); pos > length {
		pos = length
	}
	entry.offset = pos
	return pos, nil
}

// Delete removes name from the directory, freeing its inumber for reuse.
// It does not reclaim the file's data blocks or reset its inode; they stay
// attached to that inumber until a later file reuses it and is opened with
// ModeWrite (which truncates them), or until the next full format.
func (f *FileSystem) Delete(name string) (bool, error) {
	dir := f.ft.CurrentDirectory()
	inumber := dir.Namei(name)
	if inumber < 0 {
		return false, ErrFileNotFound
	}
	ok := dir.Ifree(inumber)
	if ok {
		f.log.WithField("inumber", inumber).Warn("deleted name; its data blocks remain allocated")
	}
	return ok, nil
}

// Sync persists the root directory's current contents into inode 0 and
// flushes the superblock to block 0.
func (f *FileSystem) Sync() error {
	dir := f.ft.CurrentDirectory()

	inode0, err := LoadInode(f.device, 0)
	if err != nil {
		return err
	}
	if _, err := writeBlocks(f.device, f.sb, inode0, 0, 0, dir.ToBytes()); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	if err := inode0.Store(f.device, 0); err != nil {
		return err
	}
	return f.sb.Sync(f.device)
}

// readBlocks copies up to len(buf) bytes of in's contents starting at
// offset, stopping at the file's recorded length or the first unassigned
// block.
func readBlocks(device disk.Device, in *Inode, offset int, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		off := offset + read
		if off >= int(in.Length) {
			break
		}

		blockNum, err := in.BlockForOffset(device, off)
		if err != nil {
			return read, err
		}
		if blockNum == Unassigned {
			break
		}

		blockOffset := off % BlockSize
		n := BlockSize - blockOffset
		if remaining := len(buf) - read; remaining < n {
			n = remaining
		}
		if remaining := int(in.Length) - off; remaining < n {
			n = remaining
		}

		blockBuf := make([]byte, BlockSize)
		if err := device.ReadBlock(blockNum, blockBuf); err != nil {
			return read, err
		}
		copy(buf[read:read+n], blockBuf[blockOffset:blockOffset+n])
		read += n
	}
	return read, nil
}

// writeBlocks copies data into in's contents starting at offset, allocating
// direct and indirect blocks from sb as needed and growing in.Length. It
// loops across every block the write spans, draining the buffer fully
// rather than stopping at one block boundary, and stops short only when
// the free list or the maximum file size is exhausted.
func writeBlocks(device disk.Device, sb *SuperBlock, in *Inode, inumber, offset int, data []byte) (int, error) {
	// Guarded by len(data) > 0 so a zero-length write at offset == MaxFileSize
	// (e.g. EOF on a maximally-sized file) is a no-op rather than an error.
	if len(data) > 0 && offset >= MaxFileSize {
		return 0, ErrFileTooLarge
	}

	written := 0
	for written < len(data) {
		off := offset + written
		if off >= MaxFileSize {
			break
		}

		blockNum, err := in.BlockForOffset(device, off)
		if err != nil {
			return written, err
		}

		if blockNum == Unassigned {
			if off >= DirectPointers*BlockSize && in.Indirect == Unassigned {
				ib, ferr := sb.GetFreeBlock(device)
				if ferr != nil {
					return written, ferr
				}
				if ib == Unassigned {
					break
				}
				if !in.RegisterIndirect(ib) {
					sb.ReturnBlock(device, ib)
					break
				}
				initBuf := make([]byte, BlockSize)
				for i := 0; i < IndirectEntries; i++ {
					codec.PutInt16(initBuf, i*2, int16(Unassigned))
				}
				if werr := device.WriteBlock(ib, initBuf); werr != nil {
					return written, werr
				}
			}

			nb, ferr := sb.GetFreeBlock(device)
			if ferr != nil {
				return written, ferr
			}
			if nb == Unassigned {
				break
			}
			if aerr := in.AssignBlockForOffset(device, off, nb); aerr != nil {
				sb.ReturnBlock(device, nb)
				return written, aerr
			}
			blockNum = nb
		}

		blockOffset := off % BlockSize
		n := BlockSize - blockOffset
		if remaining := len(data) - written; remaining < n {
			n = remaining
		}

		blockBuf := make([]byte, BlockSize)
		if err := device.ReadBlock(blockNum, blockBuf); err != nil {
			return written, err
		}
		copy(blockBuf[blockOffset:blockOffset+n], data[written:written+n])
		if err := device.WriteBlock(blockNum, blockBuf); err != nil {
			return written, err
		}

		written += n
		if offset+written > int(in.Length) {
			in.Length = int32(offset + written)
		}
	}

	if written == 0 && len(data) > 0 {
		return 0, ErrNoFreeBlocks
	}
	return written, nil
}

// truncateInode returns every block reachable from in back to sb's free
// list and resets in to an empty file, without touching its Flag or Count.
func truncateInode(device disk.Device, sb *SuperBlock, in *Inode) error {
	for i := range in.Direct {
		if in.Direct[i] != Unassigned {
			if _, err := sb.ReturnBlock(device, int(in.Direct[i])); err != nil {
				return err
			}
			in.Direct[i] = Unassigned
		}
	}

	if in.Indirect != Unassigned {
		old, err := in.UnregisterIndirect(device)
		if err != nil {
			return err
		}
		for i := 0; i < IndirectEntries; i++ {
			v := codec.Int16(old, i*2)
			if v != Unassigned {
				if _, err := sb.ReturnBlock(device, int(v)); err != nil {
					return err
				}
			}
		}
	}

	in.Length = 0
	return nil
}
