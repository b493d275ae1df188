package fs

import (
	"path/filepath"
	"testing"

	"github.com/tinyunix/tinyunix/disk"
)

// TestFileBackedDiskRoundTrip mounts a FileSystem over a real file-backed
// disk.Disk (disk.Create/disk.Open, backed by backend/file's os.File
// adapter) instead of disk.Memory, so the student's read/write/format
// semantics flow through the same OS-interop seam a real deployment would
// use. The temp file is not a block device, so disk.Open's BLKGETSIZE64
// check takes its "not a device" fallback path rather than the ioctl itself.
func TestFileBackedDiskRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	const totalBlocks = 200

	device, err := disk.Create(path, totalBlocks)
	if err != nil {
		t.Fatalf("disk.Create: %v", err)
	}

	fsys, err := Mount(device, 16)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	w, err := fsys.Open("onfile.txt", ModeWrite)
	if err != nil {
		t.Fatalf("Open (write): %v", err)
	}
	payload := []byte("backed by a real file")
	n, err := fsys.Write(w, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("wrote %d bytes, want %d", n, len(payload))
	}
	if _, err := fsys.Close(w); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fsys.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := device.Close(); err != nil {
		t.Fatalf("device.Close: %v", err)
	}

	reopened, err := disk.Open(path, totalBlocks, false)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	defer reopened.Close()

	fsys2, err := Mount(reopened, 16)
	if err != nil {
		t.Fatalf("Mount (reopen): %v", err)
	}
	r, err := fsys2.Open("onfile.txt", ModeRead)
	if err != nil {
		t.Fatalf("Open (read): %v", err)
	}
	buf := make([]byte, fsys2.Fsize(r))
	if _, err := fsys2.Read(r, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != string(payload) {
		t.Fatalf("contents after reopen = %q, want %q", buf, payload)
	}
	if _, err := fsys2.Close(r); err != nil {
		t.Fatalf("Close (read): %v", err)
	}
}

// TestFileBackedDiskReadOnly confirms a read-only disk.Open can still read
// every block but rejects writes, exercising backend/file's readOnly guard
// (backend.ErrIncorrectOpenMode) through disk.Disk.WriteBlock.
func TestFileBackedDiskReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readonly.bin")
	const totalBlocks = 50

	device, err := disk.Create(path, totalBlocks)
	if err != nil {
		t.Fatalf("disk.Create: %v", err)
	}
	fsys, err := Mount(device, 8)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	w, err := fsys.Open("ro.txt", ModeWrite)
	if err != nil {
		t.Fatalf("Open (write): %v", err)
	}
	if _, err := fsys.Write(w, []byte("read only check")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fsys.Close(w)
	fsys.Sync()
	if err := device.Close(); err != nil {
		t.Fatalf("device.Close: %v", err)
	}

	roDevice, err := disk.Open(path, totalBlocks, true)
	if err != nil {
		t.Fatalf("disk.Open (read-only): %v", err)
	}
	defer roDevice.Close()

	buf := make([]byte, disk.BlockSize)
	if err := roDevice.ReadBlock(0, buf); err != nil {
		t.Fatalf("ReadBlock on read-only device: %v", err)
	}
	if err := roDevice.WriteBlock(0, buf); err == nil {
		t.Fatalf("WriteBlock on read-only device succeeded, want an error")
	}
}
