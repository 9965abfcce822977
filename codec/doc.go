// Package codec turns scanned rows into the quicksync dump stream and back.
//
// The stream is gzip compressed end to end and is a plain concatenation of
// blocks, one per entity type, with no outer header or footer:
//
//	block      = descriptor count row*
//	descriptor = string(name) uvarint(nfields) { string(field) kind:byte }
//	count      = int64, big endian
//	row        = { present:byte [value] }   one per field, 0 means NULL
//	string     = uvarint(len) bytes
//
// Values are encoded by field kind: text and bytes as length-prefixed
// strings, int64 as a zig-zag varint, and opaque values as a one byte
// sub-tag followed by the sub-type's encoding.
//
// A stream cut short by a failed dump has no trailing marker; Verify walks a
// stream and compares every block's declared count against the rows present.
package codec
