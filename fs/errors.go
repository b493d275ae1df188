package fs

import "errors"

var (
	// ErrIndirectNull is returned by Inode.AssignBlockForOffset when the
	// target offset falls in the indirect range but no indirect block has
	// been registered yet. The write path must register one first.
	ErrIndirectNull = errors.New("indirect block not registered")
	// ErrNoFreeBlocks is returned when the superblock's free list is exhausted.
	ErrNoFreeBlocks = errors.New("no free blocks available")
	// ErrDirectoryFull is returned when the directory has no free inumber left to allocate.
	ErrDirectoryFull = errors.New("directory has no free inumber")
	// ErrFileNotFound is returned when a name does not resolve to an inumber.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidMode is returned for a mode that does not apply to the requested operation.
	ErrInvalidMode = errors.New("invalid access mode for this operation")
	// ErrFileTooLarge is returned when a write starts at or past MaxFileSize;
	// a write that starts below it and runs past it stops short instead.
	ErrFileTooLarge = errors.New("file would exceed maximum file size")
)
