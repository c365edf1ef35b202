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
	"context"
	"fmt"
	"net"
	"sync"
)

// ExporterKey identifies one exporter process, per §3: the pair of
// observation domain id and the remote (source) IP the datagram arrived
// from. Two exporters behind the same IP but different observation domains
// are tracked separately, and vice versa.
type ExporterKey struct {
	ObservationDomainId uint32
	SourceIP            string
}

func NewExporterKey(observationDomainId uint32, sourceIP net.IP) ExporterKey {
	return ExporterKey{ObservationDomainId: observationDomainId, SourceIP: sourceIP.String()}
}

func (k ExporterKey) String() string {
	return fmt.Sprintf("%s/%d", k.SourceIP, k.ObservationDomainId)
}

// ExporterState is the per-exporter bookkeeping described in §3. It is
// created on first packet and never destroyed for the session; templates,
// samplers, and sequence counters all live here. The C original anchors
// templates and samplers in singly-linked lists; this port uses maps guarded
// by the same mutex, which preserves every invariant (unique template ids,
// in-place refresh, withdrawal) while being the idiomatic Go shape for the
// same "owned collection keyed by id" structure — see DESIGN.md.
type ExporterState struct {
	mu sync.RWMutex

	Key ExporterKey

	Version uint16
	IP      net.IP
	SysId   uint32

	PacketCount         uint64
	FlowCount           uint64
	SequenceFailures    uint64
	PaddingErrors       uint64
	ExpectedSequence    uint32
	sequenceInitialized bool

	templates map[uint16]*TranslationTable
	lastUsed  *TranslationTable

	samplerOptions map[uint16]*SamplerOption
	samplers       map[int32]*SamplerDescriptor

	systemInitTime      *SystemInitTimeOption
	lastSystemUptimeMs  uint64
}

func newExporterState(key ExporterKey, ip net.IP, sysId uint32) *ExporterState {
	return &ExporterState{
		Key:            key,
		IP:             ip,
		Version:        ProtocolVersion,
		SysId:          sysId,
		templates:      make(map[uint16]*TranslationTable),
		samplerOptions: make(map[uint16]*SamplerOption),
		samplers:       make(map[int32]*SamplerDescriptor),
	}
}

// IsIPv6 reports whether the exporter's source address is an IPv6 address,
// used to choose EX_ROUTER_IP_v4/v6 and the router-IP width at decode time.
func (e *ExporterState) IsIPv6() bool {
	return e.IP.To4() == nil
}

// Template returns the translation table for templateId, consulting the
// one-slot last-used cache described in §3 before falling back to the map.
func (e *ExporterState) Template(templateId uint16) (*TranslationTable, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.lastUsed != nil && e.lastUsed.TemplateId == templateId {
		return e.lastUsed, true
	}
	tt, ok := e.templates[templateId]
	return tt, ok
}

// setTemplate installs (or replaces) a translation table, updating the
// one-slot cache. Replacement of an existing id is the caller's
// responsibility to detect (see installTemplates in dispatcher.go), since freeing the old
// extension map requires sink access the exporter doesn't have.
func (e *ExporterState) setTemplate(tt *TranslationTable) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[tt.TemplateId] = tt
	e.lastUsed = tt
}

// withdrawTemplate removes a single template id. It returns the removed
// table (or nil) so the caller can release its extension map.
func (e *ExporterState) withdrawTemplate(templateId uint16) *TranslationTable {
	e.mu.Lock()
	defer e.mu.Unlock()

	tt := e.templates[templateId]
	delete(e.templates, templateId)
	if e.lastUsed != nil && e.lastUsed.TemplateId == templateId {
		e.lastUsed = nil
	}
	return tt
}

// withdrawAllTemplates implements "a template withdrawal with id equal to
// the template-set id withdraws all templates for that exporter" (§3). It
// returns every removed table for extension-map release.
func (e *ExporterState) withdrawAllTemplates() []*TranslationTable {
	e.mu.Lock()
	defer e.mu.Unlock()

	tts := make([]*TranslationTable, 0, len(e.templates))
	for _, tt := range e.templates {
		tts = append(tts, tt)
	}
	e.templates = make(map[uint16]*TranslationTable)
	e.lastUsed = nil
	return tts
}

// checkSequence implements §4.7's sequence check: a gap only counts once
// this exporter has delivered at least one data record, and the expected
// sequence always resyncs to the observed one, letting 32-bit wraparound
// take care of itself. The decoder then advances ExpectedSequence by one
// for every data record it decodes from the message (dispatcher.go).
func (e *ExporterState) checkSequence(observed uint32) (gap bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sequenceInitialized && observed != e.ExpectedSequence && e.FlowCount > 0 {
		e.SequenceFailures++
		gap = true
	}
	e.ExpectedSequence = observed
	e.sequenceInitialized = true
	return gap
}

// Registry is the process-wide (per FlowSource, per §5) lookup from
// (observation domain, source IP) to ExporterState. It is held by the
// Collector, not by the sink. Misses allocate a new exporter whose sysid
// comes from the registry's own incrementing counter; the sink's NextSysId
// is not consulted. Exporters are never evicted.
type Registry struct {
	mu        sync.RWMutex
	exporters map[ExporterKey]*ExporterState
	nextSysId uint32
}

func NewRegistry() *Registry {
	return &Registry{exporters: make(map[ExporterKey]*ExporterState)}
}

// Get returns the exporter for key, allocating one on first sight.
func (r *Registry) Get(ctx context.Context, key ExporterKey, ip net.IP) *ExporterState {
	r.mu.RLock()
	e, ok := r.exporters[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// re-check under the write lock in case of a race between RUnlock and Lock
	if e, ok := r.exporters[key]; ok {
		return e
	}
	r.nextSysId++
	e = newExporterState(key, ip, r.nextSysId)
	r.exporters[key] = e
	FromContext(ctx).Info("registered new exporter", "key", key.String(), "sysid", e.SysId)
	return e
}

// All returns every currently-known exporter, for introspection/status use.
func (r *Registry) All() []*ExporterState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ExporterState, 0, len(r.exporters))
	for _, e := range r.exporters {
		out = append(out, e)
	}
	return out
}
