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

// opWidth is the number of wire bytes a fixed-width move/zero opcode
// naturally addresses; it is also the default output width for the
// corresponding zero-fill. Sampling/time/save opcodes have their widths
// determined per-instance instead (the catalog row's declared length) and
// are not looked up here.
func opWidth(op opcode) int {
	switch op {
	case opMove8, opZero8:
		return 1
	case opMove16, opZero16:
		return 2
	case opMove32, opZero32, opMoveMPLS:
		return 4
	case opMove40:
		return 5
	case opMove48:
		return 6
	case opMove56:
		return 7
	case opMove64, opZero64, opMoveMAC:
		return 8
	case opMove128, opZero128:
		return 16
	default:
		return 0
	}
}

// padCopyBE zero-fills rec[off:off+outWidth] then copies src into the
// right-hand (least-significant) end, i.e. big-endian zero-extension. Used
// for every plain move opcode; src longer than outWidth is truncated from
// the left (shouldn't happen for catalog-declared widths, but a truncated
// wire read near a datagram boundary can still produce it).
func padCopyBE(rec []byte, off, outWidth int, src []byte) {
	zero(rec, off, outWidth)
	if len(src) > outWidth {
		src = src[len(src)-outWidth:]
	}
	copy(rec[off+outWidth-len(src):off+outWidth], src)
}

// readUintGeneric reads up to 8 bytes of a big-endian unsigned integer of
// arbitrary width, used where the wire width varies per template (sampled
// counters, time fields).
func readUintGeneric(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// epoch1996Ms is the sanity floor from epoch1996 expressed in milliseconds,
// per §4.6 step 10: a computed absolute timestamp earlier than this is
// treated as not worth trusting and is zeroed rather than propagated.
const epoch1996Ms = uint64(epoch1996) * 1000

func clampEpochMs(ms uint64) uint64 {
	if ms < epoch1996Ms {
		return 0
	}
	return ms
}

// resolveSamplingMultiplier returns the scale factor a sampled counter
// should be multiplied by, per §4.8: the exporter's default sampler if one
// has been announced via an options record, otherwise 1 (no correction).
func resolveSamplingMultiplier(exporter *ExporterState) uint64 {
	if exporter == nil {
		return 1
	}
	s, ok := exporter.SamplerByID(defaultSamplerId)
	if !ok || s.Interval == 0 {
		return 1
	}
	return uint64(s.Interval)
}

// executionResult carries the per-record facts the dispatcher needs beyond
// the output bytes themselves: which IP protocol to bucket statistics
// under, and the record's flow-start timestamp for first/last-seen tracking.
type executionResult struct {
	protocol    uint8
	timestampMs uint64
	packets     uint64
	bytes       uint64
	outPackets  uint64
	outBytes    uint64
}

// ExecuteRecord interprets tt.Sequence against one wire data record, writing
// every output byte past the record header (the caller stamps the header
// afterwards) and
// returning the bytes of wire data consumed. exportTimeMs is the enclosing
// message's export time, used by the delta-microseconds time family.
// receivedMs is this record's collector-local arrival time, unconditionally
// stamped into EX_RECEIVED per §4.6 step 8.
func ExecuteRecord(rec []byte, tt *TranslationTable, exporter *ExporterState, data []byte, exportTimeMs uint64, overrideMultiplier uint64, receivedMs uint64) (consumed int, result executionResult, err error) {
	off := 0
	var icmpType, icmpCode uint8
	haveICMP := false

	// flow_start/flow_end/duration/SysUpTime scratch state, per §3: every
	// time-family opcode resolves into these instead of writing rec
	// directly, so duration-folding and the epoch floor (§4.6 steps 9-10)
	// can run once, after every field has been decoded, rather than being
	// approximated per field in wire order.
	var flowStartMs, flowEndMs uint64
	var haveStart, haveEnd bool
	var durationMs uint64
	var haveDuration bool
	var recordSysUpTimeMs uint64
	var hasTimeMili bool

	startOff, _ := coreFieldOffset(canonicalKey(ieFlowStartMilliseconds))
	endOff, _ := coreFieldOffset(canonicalKey(ieFlowEndMilliseconds))

	setFlowTime := func(outputOffset int, ms uint64) {
		switch outputOffset {
		case startOff:
			flowStartMs, haveStart = ms, true
		case endOff:
			flowEndMs, haveEnd = ms, true
		}
	}

	multiplier := resolveSamplingMultiplier(exporter)
	if overrideMultiplier > 0 {
		multiplier = overrideMultiplier
	}

	for _, instr := range tt.Sequence {
		// Zero-fill instructions (emitted for fields this template didn't
		// carry) have no wire component at all.
		if instr.wireLength == 0 && !instr.dynamic && instr.op != opSaveICMP {
			switch instr.op {
			case opZero8, opZero16, opZero32, opZero64, opZero128:
				zero(rec, instr.outputOffset, opWidth(instr.op))
				continue
			}
		}

		n := instr.wireLength
		if instr.dynamic {
			if off >= len(data) {
				return off, result, Truncated(off, 1, len(data)-off)
			}
			lead := data[off]
			off++
			if lead == dynSkipExtended {
				if off+2 > len(data) {
					return off, result, Truncated(off, 2, len(data)-off)
				}
				n = int(u16(data, off))
				off += 2
			} else {
				n = int(lead)
			}
		}

		if off+n > len(data) {
			return off, result, Truncated(off, n, len(data)-off)
		}
		src := data[off : off+n]
		off += n

		switch instr.op {
		case opDynSkip:
			// Field has no catalog mapping; already consumed above.

		case opSaveICMP:
			haveICMP = true
			if len(src) >= 1 {
				icmpType = src[0]
			}
			if len(src) >= 2 {
				icmpCode = src[1]
			}

		case opMove8, opMove16, opMove32, opMove40, opMove48, opMove56, opMove64, opMove128:
			padCopyBE(rec, instr.outputOffset, opWidth(instr.op), src)
			if instr.op == opMove8 && isProtocolIdentifierOffset(instr.outputOffset) {
				result.protocol = src[0]
			}

		case opMoveMAC:
			padCopyBE(rec, instr.outputOffset, 8, src)

		case opMoveMPLS:
			padCopyBE(rec, instr.outputOffset, 4, src)

		case opMoveFlags:
			v := readUintGeneric(src)
			rec[instr.outputOffset] = byte(v)

		case opMove32Sampling, opMove48Sampling, opMove64Sampling:
			raw := readUintGeneric(src)
			scaled := raw * multiplier
			putUint64(rec, instr.outputOffset, scaled)
			trackCounter(&result, instr.outputOffset, scaled)

		case opTime64Mili:
			setFlowTime(instr.outputOffset, readUintGeneric(src))

		case opTime64MiliDur:
			durationMs = uint64(uint32(readUintGeneric(src)))
			haveDuration = true

		case opTimeUnix:
			setFlowTime(instr.outputOffset, readUintGeneric(src)*1000)

		case opTimeDeltaMicro:
			micros := readUintGeneric(src)
			var ms uint64
			if exportTimeMs > micros/1000 {
				ms = exportTimeMs - micros/1000
			}
			setFlowTime(instr.outputOffset, ms)

		case opSystemInitTime:
			raw := readUintGeneric(src)
			base := uint64(0)
			if hasTimeMili {
				base = recordSysUpTimeMs
			} else if exporter != nil {
				base = exporter.LastSystemUptimeMs()
			}
			setFlowTime(instr.outputOffset, base+raw)

		case opTimeMili:
			// Per-record absolute SysUpTime (ieSystemInitTimeMilliseconds
			// carried directly on a data record, not via an options
			// template): scratch-only, takes precedence over the
			// exporter's cached option-provided value for every
			// SysUpTime-relative field that follows it in this same record's
			// wire order, per §4.6 step 9; fields decoded before it still use
			// the cached value.
			recordSysUpTimeMs = readUintGeneric(src)
			hasTimeMili = true
		}
	}

	if haveDuration && haveStart && !haveEnd {
		flowEndMs = flowStartMs + durationMs
		haveEnd = true
	}

	if haveStart && haveEnd {
		// Both ends of the flow are present: the epoch floor (§4.6 step 10)
		// applies to the pair jointly, since a bogus start dragging a
		// derived end time below epoch1996 (or vice versa) means neither
		// can be trusted.
		if flowStartMs < epoch1996Ms || flowEndMs < epoch1996Ms {
			flowStartMs, flowEndMs = 0, 0
		}
	} else {
		flowStartMs = clampEpochMs(flowStartMs)
		flowEndMs = clampEpochMs(flowEndMs)
	}

	writeTimeSplit(rec, startOff, flowStartMs)
	writeTimeSplit(rec, endOff, flowEndMs)
	trackTimestamp(&result, flowStartMs)

	if haveICMP {
		applyICMPFixup(rec, icmpType, icmpCode, result.protocol)
	}

	stampReceived(rec, tt, receivedMs)
	stampRouterIP(rec, tt, exporter)

	return off, result, nil
}

// writeTimeSplit stamps an absolute millisecond timestamp into an 8-byte
// output slot as a (seconds uint32, milliseconds-of-second uint16) pair,
// per §4.6's split into distinct second/millisecond output fields; the
// trailing 2 bytes are padding.
func writeTimeSplit(rec []byte, off int, ms uint64) {
	zero(rec, off, 8)
	putUint32(rec, off, uint32(ms/1000))
	putUint16(rec, off+4, uint16(ms%1000))
}

// stampReceived writes the collector-local arrival time into EX_RECEIVED,
// per §4.6 step 8. Every compiled table carries this extension
// unconditionally (template.go), so the offset is always valid.
func stampReceived(rec []byte, tt *TranslationTable, receivedMs uint64) {
	putUint64(rec, tt.ReceivedOffset, receivedMs)
}

// stampRouterIP writes the exporter's own address into EX_ROUTER_IP_v4/v6,
// per §4.6 step 12. The family was fixed at compile time (template.go), so
// only the matching byte form is ever copied.
func stampRouterIP(rec []byte, tt *TranslationTable, exporter *ExporterState) {
	if exporter == nil {
		return
	}
	off, n := tt.RouterIPOffset, tt.RouterIPLen
	switch n {
	case 4:
		if v4 := exporter.IP.To4(); v4 != nil {
			copy(rec[off:off+4], v4)
		}
	case 16:
		if v6 := exporter.IP.To16(); v6 != nil {
			copy(rec[off:off+16], v6)
		}
	}
}

// trackCounter folds a just-written packet/byte counter into the per-record
// result so the caller can roll it into Statistics without re-reading rec.
func trackCounter(result *executionResult, outputOffset int, value uint64) {
	packetsOff, _ := coreFieldOffset(iePacketDeltaCount)
	bytesOff, _ := coreFieldOffset(ieOctetDeltaCount)
	outPktsOff, ok1 := layoutOffset(iePostPacketDeltaCount)
	outBytesOff, ok2 := layoutOffset(iePostOctetDeltaCount)

	switch outputOffset {
	case packetsOff:
		result.packets = value
	case bytesOff:
		result.bytes = value
	default:
		if ok1 && outputOffset == outPktsOff {
			result.outPackets = value
		} else if ok2 && outputOffset == outBytesOff {
			result.outBytes = value
		}
	}
}

// layoutOffset is layoutOffset for an extension-housed canonical key,
// absolute-resolved the same way coreFieldOffset is for core keys. Since an
// extension's base address varies per template, this only matches the
// common case where the extension happens to start immediately after core
// (the only active extension) — acceptable here since it is used purely
// for statistics attribution, not correctness of the decoded record.
func layoutOffset(key uint16) (int, bool) {
	layout, ok := layoutByKey[key]
	if !ok || layout.extId == extNone {
		return 0, false
	}
	return recordHeaderSize + coreSize + layout.offset, true
}

func trackTimestamp(result *executionResult, ms uint64) {
	if ms > 0 && (result.timestampMs == 0 || ms < result.timestampMs) {
		result.timestampMs = ms
	}
}

func isProtocolIdentifierOffset(off int) bool {
	protoOff, ok := coreFieldOffset(ieProtocolIdentifier)
	return ok && off == protoOff
}

// applyICMPFixup relocates a saved ICMP type/code pair into the
// destination-port output slot and zeroes the source-port slot, per §4.6
// step 7: ICMP has no transport ports, so nfdump-style decoders fold
// type/code into dest_port there instead of wasting a dedicated extension
// on a field that is mutually exclusive with ports. Gated on protocol
// (ICMP/ICMPv6 only) since a template can carry both an ICMP type/code
// field and real transport ports for a protocol that never supplies both
// on the wire at once.
func applyICMPFixup(rec []byte, icmpType, icmpCode, protocol uint8) {
	if protocol != ProtocolICMP && protocol != ProtocolICMPv6 {
		return
	}
	if off, ok := coreFieldOffset(ieSourceTransportPort); ok {
		rec[off] = 0
		rec[off+1] = 0
	}
	off, ok := coreFieldOffset(ieDestinationTransportPort)
	if !ok {
		return
	}
	rec[off] = icmpType
	rec[off+1] = icmpCode
}
