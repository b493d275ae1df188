//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package disk

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const blkGetSize64 = 0x80081272 // BLKGETSIZE64, reports device size in bytes

// deviceBlockCount reports how many BlockSize-sized blocks the underlying
// block device actually has, via the BLKGETSIZE64 ioctl. It is only
// meaningful when storage is backed by a real device node rather than a
// plain image file, and is used by Open to refuse to trust a
// caller-supplied totalBlocks that doesn't match reality.
func deviceBlockCount(f *os.File) (int, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return 0, errNotDevice
	}

	var sizeBytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&sizeBytes)))
	if errno != 0 {
		return 0, fmt.Errorf("BLKGETSIZE64 on %s: %w", f.Name(), errno)
	}
	return int(sizeBytes / BlockSize), nil
}
