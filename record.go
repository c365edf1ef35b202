/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ipfixcore

import (
	"fmt"
	"io"
)

// Output record flags, per §3. The record may carry 64-bit counters, IPv6
// addresses on either leg, an IPv6 next-hop, an IPv6 BGP next-hop, an IPv6
// exporter address, and/or sampling correction, independently of one another.
const (
	FlagCounter64 uint32 = 1 << iota
	FlagIPv6Addr
	FlagIPv6NextHop
	FlagIPv6BgpNextHop
	FlagExporterIPv6
	FlagSampled
)

// recordType distinguishes the kind of common_record a block holds; this
// decoder only ever emits this one type, but the constant is named so a
// downstream reader sharing the block format can tell records apart.
const recordType uint16 = 1

// recordHeaderSize is the fixed-size prefix every output record carries
// before its per-template variable-length body.
const recordHeaderSize = 24

// writeRecordHeader stamps the fixed common_record header (flags, total
// size, type, extension map id, exporter sysid, protocol version) at the
// start of rec. rec must be at least recordHeaderSize bytes.
func writeRecordHeader(rec []byte, flags uint32, size uint16, extensionMapId uint32, exporterSysId uint32) {
	putUint32(rec, 0, flags)
	putUint16(rec, 4, size)
	putUint16(rec, 6, recordType)
	putUint32(rec, 8, extensionMapId)
	putUint32(rec, 12, exporterSysId)
	putUint16(rec, 16, ProtocolVersion)
	// bytes 18..24 reserved/padding to keep the header a multiple of 8 bytes.
}

// The put* helpers write big-endian values at an arbitrary (not necessarily
// aligned) byte offset, per the "unaligned output writes" design note in §9:
// the output record may live at any byte boundary, so every multi-byte write
// goes through one of these instead of an aligned unsafe cast.
func putUint16(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

func putUint32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func putUint64(b []byte, off int, v uint64) {
	putUint32(b, off, uint32(v>>32))
	putUint32(b, off+4, uint32(v))
}

func putUint128(b []byte, off int, hi, lo uint64) {
	putUint64(b, off, hi)
	putUint64(b, off+8, lo)
}

func zero(b []byte, off, n int) {
	for i := 0; i < n; i++ {
		b[off+i] = 0
	}
}

// DumpRecord renders a single decoded output record as a human-readable line
// for the verbose-dump sink operation named in §6 (ExpandRecord_v2 /
// flow_record_to_raw in the original collector). It renders the template id
// and the fixed header fields (flags, size, extension map id, exporter
// sysid); the core fields and extension contents are not rendered.
func DumpRecord(w io.Writer, tt *TranslationTable, rec []byte) error {
	if len(rec) < recordHeaderSize {
		return fmt.Errorf("record too short to dump: %d bytes", len(rec))
	}
	flags := u32(rec, 0)
	size := u16(rec, 4)
	extMapId := u32(rec, 8)
	exporterSysId := u32(rec, 12)

	_, err := fmt.Fprintf(w, "template=%d flags=%#x size=%d extmap=%d exporter=%d",
		tt.TemplateId, flags, size, extMapId, exporterSysId)
	return err
}
