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

// IANA information element ids this decoder recognizes. Only the ids the
// catalog below maps, plus the sampler option fields read by the
// options-template compiler, are named; the registry is intentionally not
// exhaustive, mirroring the teacher's IANA() helper which also only carries
// what a given build cares about.
const (
	ieOctetDeltaCount     uint16 = 1
	iePacketDeltaCount    uint16 = 2
	ieProtocolIdentifier  uint16 = 4
	ieIPClassOfService    uint16 = 5
	ieTCPControlBits      uint16 = 6
	ieSourceTransportPort uint16 = 7
	ieSourceIPv4Address   uint16 = 8
	ieIngressInterface    uint16 = 10
	ieDestinationTransportPort uint16 = 11
	ieDestinationIPv4Address   uint16 = 12
	ieEgressInterface          uint16 = 14
	ieIPNextHopIPv4Address     uint16 = 15
	ieBgpSourceAsNumber        uint16 = 16
	ieBgpDestinationAsNumber   uint16 = 17
	ieBgpNextHopIPv4Address    uint16 = 18
	ieSourceIPv4PrefixLength      uint16 = 9
	ieDestinationIPv4PrefixLength uint16 = 13
	ieFlowEndSysUpTime  uint16 = 21
	ieFlowStartSysUpTime uint16 = 22
	iePostOctetDeltaCount  uint16 = 23
	iePostPacketDeltaCount uint16 = 24
	ieSourceIPv6Address      uint16 = 27
	ieDestinationIPv6Address uint16 = 28
	ieSourceIPv6PrefixLength      uint16 = 29
	ieDestinationIPv6PrefixLength uint16 = 30
	ieVlanId          uint16 = 58
	iePostVlanId      uint16 = 59
	ieIPNextHopIPv6Address  uint16 = 62
	ieBgpNextHopIPv6Address uint16 = 63
	ieMplsLabelStackSection1  uint16 = 70
	ieMplsLabelStackSection2  uint16 = 71
	ieMplsLabelStackSection3  uint16 = 72
	ieMplsLabelStackSection4  uint16 = 73
	ieMplsLabelStackSection5  uint16 = 74
	ieMplsLabelStackSection6  uint16 = 75
	ieMplsLabelStackSection7  uint16 = 76
	ieMplsLabelStackSection8  uint16 = 77
	ieMplsLabelStackSection9  uint16 = 78
	ieMplsLabelStackSection10 uint16 = 79
	ieSourceMacAddress      uint16 = 56
	iePostDestinationMacAddress uint16 = 57
	ieDestinationMacAddress uint16 = 80
	iePostSourceMacAddress  uint16 = 81
	ieDirection     uint16 = 61
	ieOctetTotalCount  uint16 = 85
	iePacketTotalCount uint16 = 86
	ieFlowEndReason   uint16 = 136
	ieIcmpTypeCodeIPv4 uint16 = 176
	ieIcmpTypeCodeIPv6 uint16 = 178
	ieForwardingStatus uint16 = 89
	ieFlowStartSeconds uint16 = 150
	ieFlowEndSeconds   uint16 = 151
	ieFlowStartMilliseconds uint16 = 152
	ieFlowEndMilliseconds   uint16 = 153
	ieFlowDurationMilliseconds uint16 = 161
	ieSystemInitTimeMilliseconds uint16 = 160
	iePostNATSourceIPv4Address      uint16 = 225
	iePostNATDestinationIPv4Address uint16 = 226
	iePostNAPTSourceTransportPort      uint16 = 227
	iePostNAPTDestinationTransportPort uint16 = 228
	ieNatEvent    uint16 = 230
	ieIngressVRFID uint16 = 234
	ieEgressVRFID  uint16 = 235
	ieBiflowDirection uint16 = 239

	// Sampler option fields, named in §4.5. The standard pair (#34/#35) describes
	// a single implicit sampler; the per-sampler triples (#48/#49/#50 and the
	// newer #302/#304/#305) describe an explicit, identified sampler.
	ieSamplingInterval  uint16 = 34
	ieSamplingAlgorithm uint16 = 35
	ieSamplerId         uint16 = 48
	ieSamplerMode       uint16 = 49
	ieSamplerRandomInterval uint16 = 50
	ieSelectorId            uint16 = 302
	ieSamplingFlowInterval  uint16 = 304
	ieSamplingFlowSpacing   uint16 = 305
)

// catalogEntry is one row of the static (element id, input length) -> (opcode,
// extension, output width) table described in §3/§4.2. Multiple entries may
// share elementId but differ on inputLength (e.g. a 2- vs 4-byte AS number);
// they are stored contiguously so MapElement's linear scan over a run finds
// the length-matching variant without a nested map.
type catalogEntry struct {
	elementId    uint16
	inputLength  uint16
	outputLength uint16
	copyOpcode   opcode
	zeroOpcode   opcode
	extensionId  extensionId
}

// catalog is the static element table. Order matters only in that entries
// sharing an elementId must be adjacent; firstIndexByElementId (built at
// init) records where each run starts.
var catalog = []catalogEntry{
	{ieFlowStartMilliseconds, 8, 8, opTime64Mili, opZero64, extNone},
	{ieFlowEndMilliseconds, 8, 8, opTime64Mili, opZero64, extNone},
	{ieFlowStartSeconds, 4, 8, opTimeUnix, opZero64, extNone},
	{ieFlowEndSeconds, 4, 8, opTimeUnix, opZero64, extNone},
	{ieFlowStartSysUpTime, 4, 8, opSystemInitTime, opZero64, extNone},
	{ieFlowEndSysUpTime, 4, 8, opSystemInitTime, opZero64, extNone},
	{ieFlowDurationMilliseconds, 4, 4, opTime64MiliDur, opZero32, extNone},
	{ieSystemInitTimeMilliseconds, 8, 0, opTimeMili, opNop, extNone},

	{ieForwardingStatus, 1, 1, opMove8, opZero8, extNone},
	{ieTCPControlBits, 2, 1, opMoveFlags, opZero8, extNone},
	{ieProtocolIdentifier, 1, 1, opMove8, opZero8, extNone},
	{ieIPClassOfService, 1, 1, opMove8, opZero8, extMultiple},
	{ieSourceTransportPort, 2, 2, opMove16, opZero16, extNone},
	{ieDestinationTransportPort, 2, 2, opMove16, opZero16, extNone},
	{ieBiflowDirection, 1, 1, opMove8, opZero8, extNone},
	{ieFlowEndReason, 1, 1, opMove8, opZero8, extNone},

	{ieSourceIPv4Address, 4, 4, opMove32, opZero32, extNone},
	{ieDestinationIPv4Address, 4, 4, opMove32, opZero32, extNone},
	{ieSourceIPv6Address, 16, 16, opMove128, opZero128, extNone},
	{ieDestinationIPv6Address, 16, 16, opMove128, opZero128, extNone},

	{iePacketTotalCount, 8, 8, opMove64Sampling, opZero64, extNone},
	{iePacketDeltaCount, 4, 8, opMove32Sampling, opZero64, extNone},
	{iePacketDeltaCount, 8, 8, opMove64Sampling, opZero64, extNone},
	{ieOctetTotalCount, 8, 8, opMove64Sampling, opZero64, extNone},
	{ieOctetDeltaCount, 4, 8, opMove32Sampling, opZero64, extNone},
	{ieOctetDeltaCount, 8, 8, opMove64Sampling, opZero64, extNone},

	{ieIngressInterface, 2, 2, opMove16, opZero16, extIoSNMP2},
	{ieIngressInterface, 4, 4, opMove32, opZero32, extIoSNMP4},
	{ieEgressInterface, 2, 2, opMove16, opZero16, extIoSNMP2},
	{ieEgressInterface, 4, 4, opMove32, opZero32, extIoSNMP4},

	{ieBgpSourceAsNumber, 2, 2, opMove16, opZero16, extAS2},
	{ieBgpSourceAsNumber, 4, 4, opMove32, opZero32, extAS4},
	{ieBgpDestinationAsNumber, 2, 2, opMove16, opZero16, extAS2},
	{ieBgpDestinationAsNumber, 4, 4, opMove32, opZero32, extAS4},

	{ieDirection, 1, 1, opMove8, opZero8, extMultiple},
	{ieSourceIPv4PrefixLength, 1, 1, opMove8, opZero8, extMultiple},
	{ieDestinationIPv4PrefixLength, 1, 1, opMove8, opZero8, extMultiple},
	{ieSourceIPv6PrefixLength, 1, 1, opMove8, opZero8, extMultiple},
	{ieDestinationIPv6PrefixLength, 1, 1, opMove8, opZero8, extMultiple},

	{ieIPNextHopIPv4Address, 4, 4, opMove32, opZero32, extNextHopv4},
	{ieIPNextHopIPv6Address, 16, 16, opMove128, opZero128, extNextHopv6},
	{ieBgpNextHopIPv4Address, 4, 4, opMove32, opZero32, extBgpNextHopv4},
	{ieBgpNextHopIPv6Address, 16, 16, opMove128, opZero128, extBgpNextHopv6},

	{ieVlanId, 2, 2, opMove16, opZero16, extVlan},
	{iePostVlanId, 2, 2, opMove16, opZero16, extVlan},

	{iePostPacketDeltaCount, 4, 8, opMove32Sampling, opZero64, extOutPkg},
	{iePostPacketDeltaCount, 8, 8, opMove64Sampling, opZero64, extOutPkg},
	{iePostOctetDeltaCount, 4, 8, opMove32Sampling, opZero64, extOutBytes},
	{iePostOctetDeltaCount, 8, 8, opMove64Sampling, opZero64, extOutBytes},

	{ieSourceMacAddress, 6, 8, opMoveMAC, opZero64, extMac1},
	{iePostDestinationMacAddress, 6, 8, opMoveMAC, opZero64, extMac1},
	{ieDestinationMacAddress, 6, 8, opMoveMAC, opZero64, extMac2},
	{iePostSourceMacAddress, 6, 8, opMoveMAC, opZero64, extMac2},

	{ieMplsLabelStackSection1, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection2, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection3, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection4, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection5, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection6, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection7, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection8, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection9, 3, 4, opMoveMPLS, opZero32, extMpls},
	{ieMplsLabelStackSection10, 3, 4, opMoveMPLS, opZero32, extMpls},

	{ieNatEvent, 1, 1, opMove8, opZero8, extNatEvent},
	{ieIngressVRFID, 4, 4, opMove32, opZero32, extNatVrf},
	{ieEgressVRFID, 4, 4, opMove32, opZero32, extNatVrf},
	{iePostNATSourceIPv4Address, 4, 4, opMove32, opZero32, extNatXlateAddr},
	{iePostNATDestinationIPv4Address, 4, 4, opMove32, opZero32, extNatXlateAddr},
	{iePostNAPTSourceTransportPort, 2, 2, opMove16, opZero16, extNatXlatePort},
	{iePostNAPTDestinationTransportPort, 2, 2, opMove16, opZero16, extNatXlatePort},

	// ICMP type/code is pushed via the canonical phase like any other field, but
	// the template compiler additionally emits a dedicated saveICMP slot for it
	// (§4.4 step 7), so it needs no extension id of its own: it is folded into
	// the destination-port output slot at data-decode time.
	{ieIcmpTypeCodeIPv4, 2, 0, opSaveICMP, opNop, extNone},
	{ieIcmpTypeCodeIPv6, 2, 0, opSaveICMP, opNop, extNone},
}

// firstIndexByElementId maps an element id to the index of its first catalog
// row; rows for the same id are adjacent, so MapElement scans forward from
// there to find the length-matching variant.
var firstIndexByElementId map[uint16]int

func init() {
	firstIndexByElementId = make(map[uint16]int, len(catalog))
	for i, e := range catalog {
		if _, ok := firstIndexByElementId[e.elementId]; !ok {
			firstIndexByElementId[e.elementId] = i
		}
	}
}

// reverseElementTable remaps an element id under the RFC 5103 reverse PEN
// (29305) to the "post"/reverse-direction sibling the catalog already knows
// about, e.g. a forward packetTotalCount counted under the reverse PEN
// becomes the same bits as the existing iePostPacketDeltaCount entry so that
// it lands in the out_packets/out_bytes output slot instead of packets/bytes.
var reverseElementTable = map[uint16]uint16{
	iePacketTotalCount:  iePostPacketDeltaCount,
	iePacketDeltaCount:  iePostPacketDeltaCount,
	ieOctetTotalCount:   iePostOctetDeltaCount,
	ieOctetDeltaCount:   iePostOctetDeltaCount,
	ieSourceIPv4Address: ieDestinationIPv4Address,
	ieDestinationIPv4Address: ieSourceIPv4Address,
	ieSourceIPv6Address: ieDestinationIPv6Address,
	ieDestinationIPv6Address: ieSourceIPv6Address,
}

// mapResult is what MapElement returns for a single wire field.
type mapResult struct {
	found       bool
	entryIndex  int
	extensionId extensionId
}

// MapElement resolves one template field against the static catalog, per
// §4.4 step 2. enterpriseNumber 0 is standard; ReverseInformationElementPEN
// remaps the element id via reverseElementTable; any other enterprise number
// (including the PEN 6871 special-cased by the original collector, see
// DESIGN.md) is not supported and the field is skipped.
func MapElement(elementId uint16, length uint16, enterpriseNumber uint32) mapResult {
	if enterpriseNumber != 0 {
		if enterpriseNumber != ReverseInformationElementPEN {
			// Unsupported enterprise PEN (including 6871): silently dropped,
			// per §4.4 step 2 and the open question in §9.
			return mapResult{}
		}
		if remapped, ok := reverseElementTable[elementId]; ok {
			elementId = remapped
		} else {
			// Not a reversible element per RFC 5103; treat as unsupported.
			return mapResult{}
		}
	}

	idx, ok := firstIndexByElementId[elementId]
	if !ok {
		return mapResult{}
	}
	for i := idx; i < len(catalog) && catalog[i].elementId == elementId; i++ {
		if catalog[i].inputLength == length {
			return mapResult{found: true, entryIndex: i, extensionId: catalog[i].extensionId}
		}
	}
	return mapResult{}
}
