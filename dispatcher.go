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
	"net"
	"time"

	"github.com/flowstack/ipfixcore/iana/version"
)

// messageHeaderSize is the fixed IPFIX Message Header size, RFC 7011
// section 3.1: version, length, export time, sequence number, observation
// domain id.
const messageHeaderSize = 16

// messageHeader is the decoded fixed prefix of one IPFIX datagram.
type messageHeader struct {
	Version             uint16
	Length              uint16
	ExportTimeSeconds   uint32
	SequenceNumber      uint32
	ObservationDomainId uint32
}

func readMessageHeader(cur *cursor) (messageHeader, error) {
	var h messageHeader
	var err error
	if h.Version, err = cur.readU16(); err != nil {
		return h, err
	}
	if h.Length, err = cur.readU16(); err != nil {
		return h, err
	}
	if h.ExportTimeSeconds, err = cur.readU32(); err != nil {
		return h, err
	}
	if h.SequenceNumber, err = cur.readU32(); err != nil {
		return h, err
	}
	if h.ObservationDomainId, err = cur.readU32(); err != nil {
		return h, err
	}
	return h, nil
}

// Decoder ties a Registry and its extension descriptor configuration to a
// Sink, and is the package's top-level entry point, per §4.7/§6.
type Decoder struct {
	registry    *Registry
	descriptors map[extensionId]ExtensionDescriptor
	sink        Sink
	cfg         Config
}

// NewDecoder builds a Decoder from a resolved Config (see config.go). Use
// Default() for cfg if the caller has no configuration file of its own.
func NewDecoder(registry *Registry, cfg Config, sink Sink) *Decoder {
	return &Decoder{registry: registry, descriptors: extensionDescriptorMap(cfg.ExtensionDescriptors), sink: sink, cfg: cfg}
}

func extensionDescriptorMap(descriptors []ExtensionDescriptor) map[extensionId]ExtensionDescriptor {
	m := make(map[extensionId]ExtensionDescriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Id] = d
	}
	return m
}

// ProcessPacket decodes one IPFIX datagram, per §4.7: it reads the message
// header, resolves the exporter, checks the sequence number, and dispatches
// every set in turn. The first set that fails to decode is logged and ends
// processing of the datagram: the sets after it are not decoded, and its
// error is returned.
func (d *Decoder) ProcessPacket(ctx context.Context, buf []byte, sourceIP net.IP) error {
	PacketsTotal.Inc()

	cur := newCursor(buf, 0, len(buf))
	header, err := readMessageHeader(cur)
	if err != nil {
		ErrorsTotal.Inc()
		return err
	}
	if version.ProtocolVersion(header.Version) != version.IPFIX {
		ErrorsTotal.Inc()
		return UnknownVersion(header.Version)
	}

	key := NewExporterKey(header.ObservationDomainId, sourceIP)
	exporter := d.registry.Get(ctx, key, sourceIP)
	if exporter.PacketCount == 0 && d.cfg.DefaultSampling > 1 {
		exporter.InsertSampler(defaultSamplerId, 0, d.cfg.DefaultSampling)
	}
	exporter.PacketCount++

	if gap := exporter.checkSequence(header.SequenceNumber); gap {
		d.sink.Stats().RecordSequenceFailure()
		SequenceFailures.Inc()
	}

	exportTimeMs := uint64(header.ExportTimeSeconds) * 1000
	receivedMs := uint64(time.Now().UnixMilli())
	log := FromContext(ctx)

	remaining := int(header.Length) - messageHeaderSize
	if remaining > cur.remaining {
		remaining = cur.remaining
	}
	setsCur := newCursor(buf, cur.off, remaining)

	for setsCur.remaining >= 4 {
		if err := d.dispatchSet(ctx, setsCur, exporter, exportTimeMs, receivedMs); err != nil {
			log.Error(err, "dropping remainder of datagram after set error", "exporter", key.String())
			ErrorsTotal.Inc()
			return err
		}
	}
	return nil
}

// dispatchSet decodes one Set Header and its body, advancing cur past the
// entire set (header included) regardless of whether the body was fully
// understood.
func (d *Decoder) dispatchSet(ctx context.Context, cur *cursor, exporter *ExporterState, exportTimeMs uint64, receivedMs uint64) error {
	setId, err := cur.readU16()
	if err != nil {
		return err
	}
	setLength, err := cur.readU16()
	if err != nil {
		return err
	}
	if setLength < 4 {
		return ErrZeroLengthFlowSet
	}
	bodyLen := int(setLength) - 4
	if bodyLen > cur.remaining {
		return FlowSetOverruns(bodyLen, cur.remaining)
	}

	bodyOff := cur.off
	cur.advance(bodyLen)
	body := newCursor(cur.buf, bodyOff, bodyLen)

	log := FromContext(ctx)

	switch {
	case setId == FlowSetTemplate:
		compiled, withdrawn, withdrawAll, perr := ParseTemplateSet(body, d.descriptors, exporter.IsIPv6())
		if perr != nil {
			return perr
		}
		d.installTemplates(exporter, compiled)
		d.withdrawTemplates(exporter, withdrawn, withdrawAll)
		return nil

	case setId == FlowSetOptionsTemplate:
		samplerOptions, sysInitOptions, perr := ParseOptionsTemplateSet(body)
		if perr != nil {
			return perr
		}
		for _, opt := range samplerOptions {
			exporter.setSamplerOption(opt)
		}
		for _, si := range sysInitOptions {
			exporter.setSystemInitTimeOption(si)
		}
		return nil

	case setId < flowSetReservedMax:
		log.Info("skipping reserved flowset id", "id", setId)
		return nil

	default:
		return d.dispatchDataSet(body, exporter, setId, exportTimeMs, receivedMs)
	}
}

// installTemplates replaces or inserts each compiled template, releasing the
// previous extension map from the sink whenever a refresh actually changed
// the extension set, per §3/§4.4.
func (d *Decoder) installTemplates(exporter *ExporterState, compiled []*TranslationTable) {
	for _, tt := range compiled {
		// The extension map id only needs to be unique within this
		// exporter and stable across refreshes that don't change the
		// extension set; the owning template id already satisfies both.
		tt.ExtMap.Id = uint32(tt.TemplateId)

		old, existed := exporter.Template(tt.TemplateId)
		exporter.setTemplate(tt)
		if !existed || !old.ExtMap.Equal(tt.ExtMap) {
			if existed {
				d.sink.RemoveExtensionMap(old.ExtMap)
			}
			d.sink.AddExtensionMap(tt.ExtMap)
		}
		if existed {
			TemplateRefreshes.Inc()
		} else {
			TemplatesActive.Inc()
		}
	}
}

func (d *Decoder) withdrawTemplates(exporter *ExporterState, withdrawn []uint16, withdrawAll bool) {
	if withdrawAll {
		for _, old := range exporter.withdrawAllTemplates() {
			d.sink.RemoveExtensionMap(old.ExtMap)
			TemplateWithdrawals.Inc()
			TemplatesActive.Dec()
		}
		return
	}
	for _, id := range withdrawn {
		if old := exporter.withdrawTemplate(id); old != nil {
			d.sink.RemoveExtensionMap(old.ExtMap)
			TemplateWithdrawals.Inc()
			TemplatesActive.Dec()
		}
	}
}

// dispatchDataSet decodes a Data Set whose flowset id names either a flow
// template or an options template, per RFC 7011 section 3.4.3: both kinds of
// template share the >= 256 id space, so the id alone decides which path a
// given set's records take.
func (d *Decoder) dispatchDataSet(body *cursor, exporter *ExporterState, setId uint16, exportTimeMs uint64, receivedMs uint64) error {
	if tt, ok := exporter.Template(setId); ok {
		return d.decodeFlowRecords(body, tt, exporter, exportTimeMs, receivedMs)
	}

	samplerOpt, hasSamplerOpt := exporter.samplerOptionsForTable(setId)
	sysInitForTable := exporter.systemInitTimeForTable(setId)
	if hasSamplerOpt || sysInitForTable != nil {
		width := 0
		if hasSamplerOpt {
			width = samplerOpt.RecordWidth
		} else {
			width = sysInitForTable.RecordWidth
		}
		return d.decodeOptionRecords(body, exporter, setId, width)
	}

	return TemplateNotFound(exporter.Key.ObservationDomainId, setId)
}

func (d *Decoder) decodeFlowRecords(body *cursor, tt *TranslationTable, exporter *ExporterState, exportTimeMs uint64, receivedMs uint64) error {
	var overrideMultiplier uint64
	if d.cfg.OverwriteSampling && d.cfg.DefaultSampling > 0 {
		overrideMultiplier = uint64(d.cfg.DefaultSampling)
	}

	for body.remaining > 0 {
		if body.remaining < tt.WireMinLength {
			// Trailing padding after the last full record, not another one.
			return body.skip(body.remaining)
		}
		if !d.sink.CheckBufferSpace(int(tt.OutputRecordLength)) {
			return ErrBufferFull
		}

		data, err := body.slice(body.remaining)
		if err != nil {
			return err
		}

		rec := make([]byte, tt.OutputRecordLength)
		flags := uint32(0)
		if exporter.IsIPv6() {
			flags |= FlagExporterIPv6
		}

		consumed, result, err := ExecuteRecord(rec, tt, exporter, data, exportTimeMs, overrideMultiplier, receivedMs)
		if err != nil {
			ErrorsTotal.Inc()
			return err
		}
		if consumed == 0 {
			return ErrTruncated
		}

		writeRecordHeader(rec, flags, tt.OutputRecordLength, tt.ExtMap.Id, exporter.SysId)

		d.sink.Buffer().Append(rec)
		d.sink.Stats().Record(result.protocol, result.packets, result.bytes, result.outPackets, result.outBytes, result.timestampMs)
		DecodedRecords.WithLabelValues("data").Inc()

		if protoCounter, ok := protocolMetricLabel(result.protocol); ok {
			ProtocolFlows.WithLabelValues(protoCounter).Inc()
			ProtocolPackets.WithLabelValues(protoCounter).Add(float64(result.packets))
			ProtocolBytes.WithLabelValues(protoCounter).Add(float64(result.bytes))
		}

		// IPFIX sequence numbers count data records, so each decoded record
		// advances the sequence number the next message is expected to carry.
		exporter.mu.Lock()
		exporter.FlowCount++
		exporter.ExpectedSequence++
		exporter.mu.Unlock()
		if err := body.skip(consumed); err != nil {
			return err
		}
	}
	DecodedFlowSets.WithLabelValues("data").Inc()
	return nil
}

func (d *Decoder) decodeOptionRecords(body *cursor, exporter *ExporterState, tableId uint16, width int) error {
	if width <= 0 {
		return body.skip(body.remaining)
	}
	for body.remaining >= width {
		data, err := body.slice(width)
		if err != nil {
			return err
		}
		exporter.ProcessOptionData(tableId, data)
		if err := body.skip(width); err != nil {
			return err
		}
	}
	DecodedFlowSets.WithLabelValues("options_data").Inc()
	return nil
}

func protocolMetricLabel(protocol uint8) (string, bool) {
	switch protocol {
	case ProtocolICMP, ProtocolICMPv6:
		return "icmp", true
	case ProtocolTCP:
		return "tcp", true
	case ProtocolUDP:
		return "udp", true
	default:
		return "", false
	}
}
