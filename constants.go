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

// ProtocolVersion is the version field of the IPFIX message header. RFC 7011
// fixes this to 10; NetFlow v9 (9) is a different wire format and is not
// decoded by this package.
const ProtocolVersion uint16 = 10

// Flowset ids distinguishing a set's payload kind, per RFC 7011 section 3.3.2.
const (
	FlowSetTemplate        uint16 = 2
	FlowSetOptionsTemplate uint16 = 3
	// Flowset ids below this value are reserved for future template/options-template
	// kinds and are never dispatched as data.
	flowSetReservedMax uint16 = 256
)

// ReverseInformationElementPEN is the private enterprise number RFC 5103 reserves
// to signal that a field describes the reverse direction of a biflow. The element
// id itself is unchanged on the wire; this package remaps it at compile time via
// the reverse-element table in catalog.go.
const ReverseInformationElementPEN uint32 = 29305

// enterpriseMask is the high bit of the 16-bit field type that marks an
// enterprise-specific (vendor) information element.
const enterpriseMask uint16 = 0x8000

// Sentinel sampler id denoting the default/standard sampler, per §3.
const defaultSamplerId int32 = -1

// epoch1996 is the sanity floor for absolute flow timestamps (1996-01-01T00:00:00Z),
// expressed in Unix seconds, per §4.6 step 10.
const epoch1996 int64 = 820454400

// dynSkipExtended is the leading-byte value that signals a 3-byte encoded
// variable length (1 marker byte + 2-byte length) instead of a 1-byte length.
const dynSkipExtended = 255

// opcode is the tag of a single compiled sequencer instruction. The set is
// intentionally small and dense so the executor can dispatch with a plain
// switch instead of any form of indirection.
type opcode uint8

const (
	opNop opcode = iota
	opDynSkip

	opMove8
	opMove16
	opMove32
	opMove40
	opMove48
	opMove56
	opMove64
	opMove128

	opMove32Sampling
	opMove48Sampling
	opMove64Sampling

	opMoveMAC
	opMoveMPLS
	opMoveFlags

	opTime64Mili
	opTime64MiliDur
	opTimeUnix
	opTimeDeltaMicro
	opSystemInitTime
	opTimeMili

	opSaveICMP

	opZero8
	opZero16
	opZero32
	opZero64
	opZero128
)

func (op opcode) String() string {
	switch op {
	case opNop:
		return "nop"
	case opDynSkip:
		return "dyn_skip"
	case opMove8:
		return "move8"
	case opMove16:
		return "move16"
	case opMove32:
		return "move32"
	case opMove40:
		return "move40"
	case opMove48:
		return "move48"
	case opMove56:
		return "move56"
	case opMove64:
		return "move64"
	case opMove128:
		return "move128"
	case opMove32Sampling:
		return "move32_sampling"
	case opMove48Sampling:
		return "move48_sampling"
	case opMove64Sampling:
		return "move64_sampling"
	case opMoveMAC:
		return "move_mac"
	case opMoveMPLS:
		return "move_mpls"
	case opMoveFlags:
		return "move_flags"
	case opTime64Mili:
		return "time64_mili"
	case opTime64MiliDur:
		return "time64_mili_dur"
	case opTimeUnix:
		return "time_unix"
	case opTimeDeltaMicro:
		return "time_delta_micro"
	case opSystemInitTime:
		return "system_init_time"
	case opTimeMili:
		return "time_mili"
	case opSaveICMP:
		return "save_icmp"
	case opZero8:
		return "zero8"
	case opZero16:
		return "zero16"
	case opZero32:
		return "zero32"
	case opZero64:
		return "zero64"
	case opZero128:
		return "zero128"
	default:
		return "unknown"
	}
}

// IP protocol numbers the data executor cares about for §4.6 step 7 (ICMP
// fix-up) and the per-protocol statistics of step 13.
const (
	ProtocolICMP   uint8 = 1
	ProtocolTCP    uint8 = 6
	ProtocolUDP    uint8 = 17
	ProtocolICMPv6 uint8 = 58
)

// timeFamily names the timestamp encodings a template can use. No compiled
// table records one and the executor does not consult it: the per-field
// decode is handled by dedicated opcodes.
type timeFamily uint8

const (
	timeFamilyNone timeFamily = iota
	timeFamilyDeltaMicro
	timeFamilyAbsoluteMilli
	timeFamilySysUpRelative
	timeFamilyAbsoluteSeconds
)
