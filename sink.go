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

import "sync"

// Sink is the boundary this package decodes across, per §6: everything the
// data executor needs to know about where output records go and how the
// surrounding process tracks exporters is reached through this interface,
// so the decoder itself never allocates a socket or a file.
type Sink interface {
	// Verbose reports whether per-record human-readable dumps should be
	// produced alongside the binary output (the ExpandRecord_v2 path).
	Verbose() bool

	// Buffer returns the output buffer the executor appends decoded
	// records to. CheckBufferSpace should be consulted before a record is
	// built, since the executor sizes records before it has committed
	// anything to the buffer.
	Buffer() *OutputBuffer
	CheckBufferSpace(need int) bool

	// Stats returns the running statistics block to update per decoded
	// record (§3's per-protocol counters).
	Stats() *Statistics

	// Extension map lifecycle, per §3: a translation table owns exactly
	// one map at a time and must register a new one (and release the old
	// one) whenever its extension set changes.
	AddExtensionMap(m *ExtensionMap)
	RemoveExtensionMap(m *ExtensionMap)
	ReInitExtensionMapList()

	// FlushInfoExporter and FlushInfoSampler notify the sink that an
	// exporter or sampler descriptor changed, so a downstream consumer
	// relying on periodic metadata dumps (nfdump's flush_info records) can
	// re-emit it.
	FlushInfoExporter(e *ExporterState)
	FlushInfoSampler(s *SamplerDescriptor)

	// NextSysId hands out the next exporter sysid, per §3 (monotonically
	// increasing, never reused within a process lifetime).
	NextSysId() uint32

	// ExtensionDescriptor looks up the configured enabled-bit/output-width
	// for one extension id.
	ExtensionDescriptor(id extensionId) (ExtensionDescriptor, bool)
}

// ProtocolStats accumulates flow/packet/byte counters for one IP protocol
// bucket (ICMP, TCP, UDP, or everything else), per §3's per-protocol
// breakdown. OutPackets/OutBytes only advance for biflow records carrying a
// reverse direction.
type ProtocolStats struct {
	Flows      uint64
	Packets    uint64
	Bytes      uint64
	OutPackets uint64
	OutBytes   uint64
}

// Statistics is the process-wide counters block named in §3/§6: totals plus
// a per-protocol breakdown, sequence failure count, and the first/last
// record timestamps seen (epoch milliseconds).
type Statistics struct {
	mu sync.Mutex

	ICMP  ProtocolStats
	TCP   ProtocolStats
	UDP   ProtocolStats
	Other ProtocolStats

	Flows  uint64
	Packets uint64
	Bytes  uint64

	SequenceFailures uint64

	FirstSeen uint64
	LastSeen  uint64
}

// bucket returns the ProtocolStats this protocol number updates, per §4.6
// step 13.
func (s *Statistics) bucket(protocol uint8) *ProtocolStats {
	switch protocol {
	case ProtocolICMP, ProtocolICMPv6:
		return &s.ICMP
	case ProtocolTCP:
		return &s.TCP
	case ProtocolUDP:
		return &s.UDP
	default:
		return &s.Other
	}
}

// Record folds one decoded record's counters into the running totals. It is
// safe for concurrent use, since a single Statistics block is normally
// shared across every exporter a process handles.
func (s *Statistics) Record(protocol uint8, packets, bytes, outPackets, outBytes uint64, timestampMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(protocol)
	b.Flows++
	b.Packets += packets
	b.Bytes += bytes
	b.OutPackets += outPackets
	b.OutBytes += outBytes

	s.Flows++
	s.Packets += packets
	s.Bytes += bytes

	if s.FirstSeen == 0 || timestampMs < s.FirstSeen {
		s.FirstSeen = timestampMs
	}
	if timestampMs > s.LastSeen {
		s.LastSeen = timestampMs
	}
}

// RecordSequenceFailure increments the global sequence-gap counter,
// mirroring the per-exporter count tracked on ExporterState.
func (s *Statistics) RecordSequenceFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SequenceFailures++
}

// OutputBuffer is a flat, growth-capped byte arena output records are
// appended to, per §6's "fixed-size output block" contract: a full buffer
// is a signal to flush downstream, not an error internal to the decoder.
type OutputBuffer struct {
	mu  sync.Mutex
	buf []byte
	cap int

	NumRecords uint32
}

// NewOutputBuffer allocates a buffer able to hold up to capacity bytes of
// appended records before CheckSpace starts reporting no room.
func NewOutputBuffer(capacity int) *OutputBuffer {
	return &OutputBuffer{buf: make([]byte, 0, capacity), cap: capacity}
}

// CheckSpace reports whether need more bytes can still be appended.
func (b *OutputBuffer) CheckSpace(need int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)+need <= b.cap
}

// Append copies rec onto the end of the buffer. The caller must have
// already confirmed space via CheckSpace; a record that does not fit is
// dropped whole and silently rather than panicking, since a caller that skipped the check has already
// violated its contract.
func (b *OutputBuffer) Append(rec []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf)+len(rec) > b.cap {
		return
	}
	b.buf = append(b.buf, rec...)
	b.NumRecords++
}

// Bytes returns the buffer's current contents. The returned slice aliases
// the buffer's backing array and must not be retained past the next Reset.
func (b *OutputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

// Reset empties the buffer for reuse, the moment a caller would otherwise
// flush it downstream.
func (b *OutputBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
	b.NumRecords = 0
}

// MemorySink is a minimal, dependency-free Sink good enough for tests and
// for small embedding programs that just want decoded records in memory
// rather than shipped over nfdump's wire format. Extension map bookkeeping
// is a simple slice; production sinks with persistence needs are expected
// to implement Sink themselves.
type MemorySink struct {
	mu sync.Mutex

	verbose     bool
	buffer      *OutputBuffer
	stats       *Statistics
	descriptors map[extensionId]ExtensionDescriptor
	extMaps     []*ExtensionMap
	nextSysId   uint32

	FlushedExporters []*ExporterState
	FlushedSamplers  []*SamplerDescriptor
}

// NewMemorySink builds a MemorySink with the given output buffer capacity
// and extension descriptor table (see DefaultExtensionDescriptors).
func NewMemorySink(capacity int, verbose bool, descriptors []ExtensionDescriptor) *MemorySink {
	byId := make(map[extensionId]ExtensionDescriptor, len(descriptors))
	for _, d := range descriptors {
		byId[d.Id] = d
	}
	return &MemorySink{
		verbose:     verbose,
		buffer:      NewOutputBuffer(capacity),
		stats:       &Statistics{},
		descriptors: byId,
	}
}

func (s *MemorySink) Verbose() bool          { return s.verbose }
func (s *MemorySink) Buffer() *OutputBuffer  { return s.buffer }
func (s *MemorySink) Stats() *Statistics     { return s.stats }

func (s *MemorySink) CheckBufferSpace(need int) bool {
	return s.buffer.CheckSpace(need)
}

func (s *MemorySink) AddExtensionMap(m *ExtensionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extMaps = append(s.extMaps, m)
}

func (s *MemorySink) RemoveExtensionMap(m *ExtensionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.extMaps {
		if e == m {
			s.extMaps = append(s.extMaps[:i], s.extMaps[i+1:]...)
			return
		}
	}
}

func (s *MemorySink) ReInitExtensionMapList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extMaps = s.extMaps[:0]
}

func (s *MemorySink) FlushInfoExporter(e *ExporterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FlushedExporters = append(s.FlushedExporters, e)
}

func (s *MemorySink) FlushInfoSampler(sd *SamplerDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FlushedSamplers = append(s.FlushedSamplers, sd)
}

func (s *MemorySink) NextSysId() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSysId++
	return s.nextSysId
}

func (s *MemorySink) ExtensionDescriptor(id extensionId) (ExtensionDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.descriptors[id]
	return d, ok
}
