package fs

import (
	"testing"

	"github.com/tinyunix/tinyunix/disk"
)

func newTestDevice(t *testing.T, blocks int) disk.Device {
	t.Helper()
	return disk.NewMemory(blocks)
}

func TestNewUnusedInodeFlag(t *testing.T) {
	in := newUnusedInode()
	if in.Flag != flagUsed {
		t.Fatalf("flag = %d, want %d (the documented flagUsed quirk)", in.Flag, flagUsed)
	}
	if in.Indirect != Unassigned {
		t.Fatalf("indirect = %d, want %d", in.Indirect, Unassigned)
	}
	for i, d := range in.Direct {
		if d != Unassigned {
			t.Fatalf("direct[%d] = %d, want %d", i, d, Unassigned)
		}
	}
}

func TestInodeStoreLoadRoundTrip(t *testing.T) {
	device := newTestDevice(t, 16)

	in := newUnusedInode()
	in.Length = 4096
	in.Count = 2
	in.Flag = flagReading
	in.Direct[0] = 5
	in.Direct[1] = 6
	in.Indirect = 9

	if err := in.Store(device, 3); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := LoadInode(device, 3)
	if err != nil {
		t.Fatalf("LoadInode: %v", err)
	}
	if *got != *in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestInodeStorePreservesSiblings(t *testing.T) {
	device := newTestDevice(t, 16)

	for i := 0; i < InodesPerBlock; i++ {
		in := newUnusedInode()
		in.Length = int32(i)
		if err := in.Store(device, i); err != nil {
			t.Fatalf("Store(%d): %v", i, err)
		}
	}

	for i := 0; i < InodesPerBlock; i++ {
		got, err := LoadInode(device, i)
		if err != nil {
			t.Fatalf("LoadInode(%d): %v", i, err)
		}
		if got.Length != int32(i) {
			t.Fatalf("inode %d length = %d, want %d (sibling overwrite)", i, got.Length, i)
		}
	}
}

func TestBlockForOffsetDirect(t *testing.T) {
	device := newTestDevice(t, 16)
	in := newUnusedInode()
	in.Direct[2] = 7

	got, err := in.BlockForOffset(device, 2*BlockSize+10)
	if err != nil {
		t.Fatalf("BlockForOffset: %v", err)
	}
	if got != 7 {
		t.Fatalf("block = %d, want 7", got)
	}
}

func TestBlockForOffsetIndirectUnassigned(t *testing.T) {
	device := newTestDevice(t, 16)
	in := newUnusedInode()

	got, err := in.BlockForOffset(device, DirectPointers*BlockSize+1)
	if err != nil {
		t.Fatalf("BlockForOffset: %v", err)
	}
	if got != Unassigned {
		t.Fatalf("block = %d, want Unassigned", got)
	}
}

func TestRegisterIndirectRequiresFullDirect(t *testing.T) {
	device := newTestDevice(t, 16)
	in := newUnusedInode()

	if in.RegisterIndirect(5) {
		t.Fatalf("RegisterIndirect succeeded with an empty direct table")
	}

	for i := range in.Direct {
		in.Direct[i] = int16(i + 1)
	}
	if !in.RegisterIndirect(5) {
		t.Fatalf("RegisterIndirect failed once every direct slot was assigned")
	}
	if in.RegisterIndirect(6) {
		t.Fatalf("RegisterIndirect succeeded a second time")
	}

	if err := in.AssignBlockForOffset(device, DirectPointers*BlockSize, 9); err != nil {
		t.Fatalf("AssignBlockForOffset: %v", err)
	}
	got, err := in.BlockForOffset(device, DirectPointers*BlockSize)
	if err != nil {
		t.Fatalf("BlockForOffset: %v", err)
	}
	if got != 9 {
		t.Fatalf("indirect slot 0 = %d, want 9", got)
	}
}

func TestAssignBlockForOffsetIndirectNull(t *testing.T) {
	device := newTestDevice(t, 16)
	in := newUnusedInode()

	err := in.AssignBlockForOffset(device, DirectPointers*BlockSize, 1)
	if err != ErrIndirectNull {
		t.Fatalf("err = %v, want ErrIndirectNull", err)
	}
}

func TestUnregisterIndirectReturnsContents(t *testing.T) {
	device := newTestDevice(t, 16)
	in := newUnusedInode()
	for i := range in.Direct {
		in.Direct[i] = int16(i + 1)
	}
	in.RegisterIndirect(5)
	if err := in.AssignBlockForOffset(device, DirectPointers*BlockSize, 42); err != nil {
		t.Fatalf("AssignBlockForOffset: %v", err)
	}

	old, err := in.UnregisterIndirect(device)
	if err != nil {
		t.Fatalf("UnregisterIndirect: %v", err)
	}
	if in.Indirect != Unassigned {
		t.Fatalf("indirect = %d, want Unassigned after unregister", in.Indirect)
	}
	if len(old) != BlockSize {
		t.Fatalf("old contents len = %d, want %d", len(old), BlockSize)
	}
}
