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

// canonicalMerge collapses catalog rows that are alternate wire encodings of
// the same output field onto one canonical element id, so they share a
// single output slot regardless of which variant a given exporter used:
// a millisecond and a seconds-resolution timestamp are still "the" flow
// start time, a 2- and 4-byte AS number still "the" source AS, and so on.
// Entries absent from this table are their own canonical key.
var canonicalMerge = map[uint16]uint16{
	ieFlowStartSeconds:           ieFlowStartMilliseconds,
	ieFlowStartSysUpTime:         ieFlowStartMilliseconds,
	ieFlowEndSeconds:             ieFlowEndMilliseconds,
	ieFlowEndSysUpTime:           ieFlowEndMilliseconds,
	iePacketTotalCount:           iePacketDeltaCount,
	ieOctetTotalCount:            ieOctetDeltaCount,
	ieIcmpTypeCodeIPv6:           ieIcmpTypeCodeIPv4,
	ieSourceIPv6PrefixLength:     ieSourceIPv4PrefixLength,
	ieDestinationIPv6PrefixLength: ieDestinationIPv4PrefixLength,
}

func canonicalKey(elementId uint16) uint16 {
	if k, ok := canonicalMerge[elementId]; ok {
		return k
	}
	return elementId
}

// fieldLayout is where one canonical output field lives: either in the
// record's unconditional core region (extId == extNone) or inside one
// extension's fixed-width block, at a sub-offset relative to that block.
type fieldLayout struct {
	extId  extensionId
	offset int // byte offset within the core region, or within the extension block
	length int
}

// layoutByKey maps a canonical element key to its fieldLayout. coreSize is
// the total size of the unconditional core region (before any extension
// blocks). extBlockSize[extId] is that extension's fixed block size,
// computed independently of which other extensions are active.
var (
	layoutByKey    map[uint16]fieldLayout
	keyZeroOpcode  map[uint16]opcode
	extKeys        map[extensionId][]uint16
	coreKeys       []uint16
	coreSize       int
	extBlockSize   map[extensionId]int
)

func init() {
	layoutByKey = make(map[uint16]fieldLayout)
	keyZeroOpcode = make(map[uint16]opcode)
	extKeys = make(map[extensionId][]uint16)
	extBlockSize = make(map[extensionId]int)

	coreCursor := 0
	extCursor := make(map[extensionId]int)

	for _, row := range catalog {
		if row.outputLength == 0 {
			// ICMP type/code and any other zero-width row contributes no
			// output space; it is handled out of band by the executor.
			continue
		}
		if row.copyOpcode == opTime64MiliDur || row.copyOpcode == opTimeMili {
			// Duration and per-record SysUpTime are scratch-only (§4.6
			// steps 9-10): the executor folds them into flow_start/flow_end
			// instead of writing them to their own output slot.
			continue
		}
		key := canonicalKey(row.elementId)
		if _, seen := layoutByKey[key]; seen {
			continue
		}
		keyZeroOpcode[key] = row.zeroOpcode
		if row.extensionId == extNone {
			layoutByKey[key] = fieldLayout{extId: extNone, offset: coreCursor, length: int(row.outputLength)}
			coreKeys = append(coreKeys, key)
			coreCursor += int(row.outputLength)
			continue
		}
		off := extCursor[row.extensionId]
		layoutByKey[key] = fieldLayout{extId: row.extensionId, offset: off, length: int(row.outputLength)}
		extKeys[row.extensionId] = append(extKeys[row.extensionId], key)
		extCursor[row.extensionId] = off + int(row.outputLength)
	}

	coreSize = coreCursor
	for id, size := range extCursor {
		extBlockSize[id] = size
	}
}

// coreFieldOffset returns the fixed, exporter-independent absolute output
// offset of a core canonical key, for callers (the executor, ICMP fix-up)
// that need to find a core field without walking a translation table.
func coreFieldOffset(key uint16) (int, bool) {
	layout, ok := layoutByKey[key]
	if !ok || layout.extId != extNone {
		return 0, false
	}
	return recordHeaderSize + layout.offset, true
}

// seqInstruction is one compiled step of a translation table's data
// executor program, per §4.4/§4.6: an opcode, the wire width to consume
// (for a variable-length field, dynamic is set and the true width is read
// from a runtime length prefix instead), and the absolute output offset to
// write to (-1 if the instruction has no direct output, e.g. ICMP save or an
// unmapped field being skipped).
type seqInstruction struct {
	op           opcode
	wireLength   int
	dynamic      bool
	outputOffset int
}

// dynamicWireLength is the sentinel IPFIX uses in a template's field length
// to mark a variable-length field; the true length is carried per-record as
// a 1- or 3-byte prefix (dynSkipExtended marks the 3-byte form).
const dynamicWireLength = 65535

// compiledField is the result of resolving one template field against the
// catalog, immediately before it is turned into a seqInstruction; template.go
// uses it to additionally track whether the table carries an ICMP field and
// which fields are scratch-only.
type compiledField struct {
	instr     seqInstruction
	ext       extensionId
	isICMP    bool
	isScratch bool
}

// compileField resolves a single template field (elementId, templateLength,
// enterpriseNumber) into a compiledField. found is false for fields the
// catalog does not recognize (unsupported enterprise PEN, or a combination
// of element id and length the catalog has no row for); those still need a
// skip instruction so decode stays in sync with the wire, but contribute
// nothing to the output record per §4.4 step 2.
func compileField(elementId uint16, templateLength uint16, enterpriseNumber uint32) compiledField {
	dynamic := templateLength == dynamicWireLength

	result := MapElement(elementId, templateLength, enterpriseNumber)
	if !result.found {
		return compiledField{instr: seqInstruction{
			op:           opDynSkip,
			wireLength:   int(templateLength),
			dynamic:      dynamic,
			outputOffset: -1,
		}}
	}

	entry := catalog[result.entryIndex]

	if entry.copyOpcode == opSaveICMP {
		return compiledField{
			instr:  seqInstruction{op: opSaveICMP, wireLength: int(templateLength), dynamic: dynamic, outputOffset: -1},
			isICMP: true,
		}
	}

	if entry.copyOpcode == opTime64MiliDur || entry.copyOpcode == opTimeMili {
		return compiledField{
			instr:     seqInstruction{op: entry.copyOpcode, wireLength: int(templateLength), dynamic: dynamic, outputOffset: -1},
			isScratch: true,
		}
	}

	key := canonicalKey(entry.elementId)
	layout, ok := layoutByKey[key]
	if !ok {
		// Zero-width catalog row with no special handling: skip.
		return compiledField{instr: seqInstruction{op: opDynSkip, wireLength: int(templateLength), dynamic: dynamic, outputOffset: -1}}
	}

	return compiledField{
		instr: seqInstruction{op: entry.copyOpcode, wireLength: int(templateLength), dynamic: dynamic, outputOffset: layout.offset},
		ext:   entry.extensionId,
	}
}
