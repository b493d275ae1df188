// Package codec packs and unpacks the fixed-width big-endian integers used
// throughout the on-disk layout. It is the byte-packing collaborator the
// core metadata engine is built against, not a domain concern in its own
// right, so it stays a thin wrapper over encoding/binary rather than pulling
// in anything from the dependency pack.
package codec

import "encoding/binary"

// PutInt32 writes v as 4 big-endian bytes at buf[off:off+4].
func PutInt32(buf []byte, off int, v int32) {
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
}

// Int32 reads 4 big-endian bytes at buf[off:off+4] as a signed int32.
func Int32(buf []byte, off int) int32 {
	return int32(binary.BigEndian.Uint32(buf[off : off+4]))
}

// PutInt16 writes v as 2 big-endian bytes at buf[off:off+2].
func PutInt16(buf []byte, off int, v int16) {
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(v))
}

// Int16 reads 2 big-endian bytes at buf[off:off+2] as a signed int16.
func Int16(buf []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(buf[off : off+2]))
}
