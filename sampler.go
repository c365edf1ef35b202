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

// Sampler option flags, recording which field group(s) an option template
// described, per §4.5. A single options template may describe the standard
// pair, a per-sampler triple, or (rarely) both.
const (
	samplerFlagStandard uint8 = 1 << iota
	samplerFlagPerSampler
)

// fieldSlot is an (offset, length) pair into an option data record, recorded
// at compile time by the option-template compiler so the data-driven
// extraction in ProcessOptionData doesn't need to re-walk fields.
type fieldSlot struct {
	offset int
	length int
}

func (s fieldSlot) present() bool { return s.length > 0 }

// SamplerOption is one compiled option template describing sampler fields,
// keyed by the option template's id within its exporter, per §3.
type SamplerOption struct {
	TableId     uint16
	Flags       uint8
	RecordWidth int

	StandardInterval  fieldSlot
	StandardAlgorithm fieldSlot

	SamplerId       fieldSlot
	SamplerMode     fieldSlot
	SamplerInterval fieldSlot
}

// SystemInitTimeOption records where a SystemInitTimeMiliseconds option
// field lives in its option data record, per §4.5.
type SystemInitTimeOption struct {
	TableId     uint16
	RecordWidth int
	Value       fieldSlot
}

// SamplerDescriptor is one sampler's scaling parameters, per §3. Id -1
// (defaultSamplerId) denotes the implicit/standard sampler described by the
// #34/#35 fields rather than an explicitly identified one.
type SamplerDescriptor struct {
	Id       int32
	Mode     uint8
	Interval uint32
}

// InsertSampler appends or updates a sampler descriptor by id, per §4.8. It
// reports whether anything actually changed, so the caller can decide
// whether to flush the update to the sink (FlushInfoSampler) and bump the
// SamplerUpdates metric; unchanged re-announcements are common on every
// options data record and are not worth flushing.
func (e *ExporterState) InsertSampler(id int32, mode uint8, interval uint32) (changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.samplers[id]
	if ok && existing.Mode == mode && existing.Interval == interval {
		return false
	}

	e.samplers[id] = &SamplerDescriptor{Id: id, Mode: mode, Interval: interval}
	return true
}

// SamplerByID looks up a previously installed sampler. Used by the executor
// to resolve the default sampler (id == -1).
func (e *ExporterState) SamplerByID(id int32) (*SamplerDescriptor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.samplers[id]
	return s, ok
}

// setSamplerOption installs or replaces a SamplerOption by its table id.
func (e *ExporterState) setSamplerOption(opt *SamplerOption) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samplerOptions[opt.TableId] = opt
}

func (e *ExporterState) samplerOptionsForTable(tableId uint16) (*SamplerOption, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	opt, ok := e.samplerOptions[tableId]
	return opt, ok
}

// setSystemInitTimeOption installs the option describing where SysUpTime
// lives in a given option table's data records.
func (e *ExporterState) setSystemInitTimeOption(opt *SystemInitTimeOption) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.systemInitTime = opt
}

// systemInitTimeForTable returns the installed SystemInitTimeOption if it
// was compiled from the options template named by tableId, nil otherwise.
// Only one is kept per exporter at a time (the most recently seen), which
// matches real exporters that describe their boot time from a single,
// stable options template.
func (e *ExporterState) systemInitTimeForTable(tableId uint16) *SystemInitTimeOption {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.systemInitTime != nil && e.systemInitTime.TableId == tableId {
		return e.systemInitTime
	}
	return nil
}

// LastSystemUptimeMs returns the most recently extracted SysUpTime value, 0
// if none has been seen yet.
func (e *ExporterState) LastSystemUptimeMs() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSystemUptimeMs
}

// ProcessOptionData extracts sampler and system-uptime values out of one
// option data record, per §4.5/§4.8. SysUpTime is extracted first (if this
// exporter's option template described it), then every SamplerOption
// matching tableId contributes a sampler descriptor.
func (e *ExporterState) ProcessOptionData(tableId uint16, rec []byte) {
	e.mu.RLock()
	sysInit := e.systemInitTime
	e.mu.RUnlock()

	if sysInit != nil && sysInit.TableId == tableId && sysInit.Value.present() {
		if end := sysInit.Value.offset + sysInit.Value.length; end <= len(rec) {
			e.mu.Lock()
			e.lastSystemUptimeMs = readUintField(rec, sysInit.Value)
			e.mu.Unlock()
		}
	}

	opt, ok := e.samplerOptionsForTable(tableId)
	if !ok {
		return
	}

	if opt.Flags&samplerFlagStandard != 0 && opt.StandardInterval.present() {
		interval := readUintField(rec, opt.StandardInterval)
		var mode uint8
		if opt.StandardAlgorithm.present() {
			mode = uint8(readUintField(rec, opt.StandardAlgorithm))
		}
		if changed := e.InsertSampler(defaultSamplerId, mode, uint32(interval)); changed {
			SamplerUpdates.Inc()
		}
	}

	if opt.Flags&samplerFlagPerSampler != 0 && opt.SamplerId.present() {
		id := int32(readUintField(rec, opt.SamplerId))
		var mode uint8
		if opt.SamplerMode.present() {
			mode = uint8(readUintField(rec, opt.SamplerMode))
		}
		var interval uint64
		if opt.SamplerInterval.present() {
			interval = readUintField(rec, opt.SamplerInterval)
		}
		if changed := e.InsertSampler(id, mode, uint32(interval)); changed {
			SamplerUpdates.Inc()
		}
	}
}

// readUintField reads a big-endian unsigned integer of slot.length bytes
// (1, 2, 4, or 8) at slot.offset, returning 0 if the slot doesn't fit in rec.
func readUintField(rec []byte, slot fieldSlot) uint64 {
	if slot.offset < 0 || slot.offset+slot.length > len(rec) {
		return 0
	}
	switch slot.length {
	case 1:
		return uint64(u8(rec, slot.offset))
	case 2:
		return uint64(u16(rec, slot.offset))
	case 4:
		return uint64(u32(rec, slot.offset))
	case 8:
		return u64(rec, slot.offset)
	default:
		return 0
	}
}
