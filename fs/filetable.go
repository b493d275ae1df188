package fs

import (
	"math"
	"sync"

	"github.com/tinyunix/tinyunix/disk"
)

// AccessMode is the mode a file was opened with.
type AccessMode int

const (
	ModeRead AccessMode = iota
	ModeWrite
	ModeAppend
	ModeReadWrite
)

func (m AccessMode) writable() bool { return m != ModeRead }

// FileTableEntry is an in-memory open-file handle: an inumber, a pinned
// (shared) inode, a seek position, and the mode it was opened with. Its own
// mutex serializes the read/write/seek/close operations a single entry may
// be driven through — only one goroutine at a time may mutate a given
// entry's offset or pinned inode.
type FileTableEntry struct {
	mu sync.Mutex

	inumber int
	inode   *Inode
	offset  int
	mode    AccessMode
}

func (e *FileTableEntry) Inumber() int     { return e.inumber }
func (e *FileTableEntry) Mode() AccessMode { return e.mode }

// pinnedInode is the FileTable's bookkeeping for one inumber with at least
// one live entry: the shared decoded Inode every entry for that inumber
// mutates in place, how many entries currently reference it, and whether
// one of them holds it in a writable mode.
type pinnedInode struct {
	inode        *Inode
	refCount     int
	writerActive bool
}

// FileTable is the process-wide singleton registry of open entries. It
// coordinates sharing of inodes across opens and enforces the mode rules:
// falloc/ffree/fempty run atomically with respect to each other, and a
// requesting writer cooperatively waits on a condition variable until no
// writer is currently active.
type FileTable struct {
	mu      sync.Mutex
	cond    *sync.Cond
	dir     *Directory
	pinned  map[int]*pinnedInode
	entries map[*FileTableEntry]struct{}
}

// NewFileTable creates an empty file table bound to dir. dir is resolved
// under the same mutex as falloc/ffree so format() can swap it out for a
// fresh directory without racing a concurrent open().
func NewFileTable(dir *Directory) *FileTable {
	ft := &FileTable{
		dir:     dir,
		pinned:  make(map[int]*pinnedInode),
		entries: make(map[*FileTableEntry]struct{}),
	}
	ft.cond = sync.NewCond(&ft.mu)
	return ft
}

// CurrentDirectory returns the directory the table is presently bound to.
func (ft *FileTable) CurrentDirectory() *Directory {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.dir
}

func grantable(p *pinnedInode, mode AccessMode) bool {
	if !mode.writable() {
		return !p.writerActive
	}
	return !p.writerActive && p.refCount < math.MaxInt16
}

// Falloc resolves name through the table's current directory (allocating a
// fresh inumber for a nonexistent name when mode is writable), loads or
// reuses its pinned inode, waits out any mode conflict, and returns a new
// entry. Directory resolution happens under the same lock as the rest of
// falloc so it cannot race a concurrent format() swapping in a fresh one.
func (ft *FileTable) Falloc(device disk.Device, name string, mode AccessMode) (*FileTableEntry, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	dir := ft.dir
	inumber := dir.Namei(name)
	if inumber < 0 {
		if !mode.writable() {
			return nil, ErrFileNotFound
		}
		inumber = dir.Ialloc(name)
		if inumber < 0 {
			return nil, ErrDirectoryFull
		}
	}

	p, ok := ft.pinned[inumber]
	if !ok {
		inode, err := LoadInode(device, inumber)
		if err != nil {
			return nil, err
		}
		p = &pinnedInode{inode: inode}
		ft.pinned[inumber] = p
	}

	for !grantable(p, mode) {
		ft.cond.Wait()
		p, ok = ft.pinned[inumber]
		if !ok {
			// the last holder closed (Ffree dropped the pin) or format()
			// reset the pinned set while we slept; reload.
			inode, err := LoadInode(device, inumber)
			if err != nil {
				return nil, err
			}
			p = &pinnedInode{inode: inode}
			ft.pinned[inumber] = p
		}
	}

	p.refCount++
	p.inode.Count = int16(p.refCount)
	if mode.writable() {
		p.writerActive = true
		p.inode.Flag = flagWriting
	} else {
		p.inode.Flag = flagReading
	}

	offset := 0
	if mode == ModeAppend {
		offset = int(p.inode.Length)
	}

	entry := &FileTableEntry{inumber: inumber, inode: p.inode, offset: offset, mode: mode}
	ft.entries[entry] = struct{}{}
	return entry, nil
}

// Ffree releases entry: decrements its inode's reference count, and once
// that count reaches zero, persists the inode and resets its flag to
// "used, idle" before dropping it from the pinned set.
func (ft *FileTable) Ffree(device disk.Device, entry *FileTableEntry) (bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	p, ok := ft.pinned[entry.inumber]
	if !ok {
		return false, nil
	}
	if _, ok := ft.entries[entry]; !ok {
		return false, nil
	}

	p.refCount--
	p.inode.Count = int16(p.refCount)
	if entry.mode.writable() {
		p.writerActive = false
	}
	if p.refCount <= 0 {
		p.inode.Flag = flagUsed
		if err := p.inode.Store(device, entry.inumber); err != nil {
			return false, err
		}
		delete(ft.pinned, entry.inumber)
	}
	delete(ft.entries, entry)
	ft.cond.Broadcast()
	return true, nil
}

// Fempty reports whether no entries are currently live. Format() makes the
// same check inline, under the table's mutex, while it waits for quiescence.
func (ft *FileTable) Fempty() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.entries) == 0
}

// WaitEmpty blocks until Fempty() is true.
func (ft *FileTable) WaitEmpty() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for len(ft.entries) != 0 {
		ft.cond.Wait()
	}
}

// Reset discards all pinned state and live entries, leaving a clean table.
// Format() does not call it; it replaces the pinned set itself while holding
// the table's mutex.
func (ft *FileTable) Reset() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.pinned = make(map[int]*pinnedInode)
	ft.entries = make(map[*FileTableEntry]struct{})
}
