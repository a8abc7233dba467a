package kerntypes

import "bytes"

// putUint64LE/putUint32LE/putString implement the canonical little-endian,
// length-prefixed encoding binding to §6.2: every CommitType body is
// encoded through these three primitives only, so any implementation on
// any target produces the same bytes for the same semantic commit.

func putUint64LE(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

func putUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

func putByte(buf *bytes.Buffer, v byte) {
	buf.WriteByte(v)
}

func putString(buf *bytes.Buffer, s string) {
	putUint32LE(buf, uint32(len(s)))
	buf.WriteString(s)
}
