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

// templateField is one (element id, length[, enterprise number]) triple
// read off the wire while parsing a template record, per RFC 7011 section
// 3.4.1. The enterprise bit of the raw field type is stripped before
// enterpriseNumber is populated.
type templateField struct {
	elementId        uint16
	length           uint16
	enterpriseNumber uint32
}

// readTemplateFields reads count fields from cur, handling the
// enterprise-bit/PEN extension per field.
func readTemplateFields(cur *cursor, count int) ([]templateField, error) {
	fields := make([]templateField, 0, count)
	for i := 0; i < count; i++ {
		rawType, err := cur.readU16()
		if err != nil {
			return nil, err
		}
		length, err := cur.readU16()
		if err != nil {
			return nil, err
		}

		var enterpriseNumber uint32
		elementId := rawType
		if rawType&enterpriseMask != 0 {
			elementId = rawType &^ enterpriseMask
			enterpriseNumber, err = cur.readU32()
			if err != nil {
				return nil, err
			}
		}

		fields = append(fields, templateField{elementId: elementId, length: length, enterpriseNumber: enterpriseNumber})
	}
	return fields, nil
}

// TranslationTable is a compiled template, per §3/§4.4: the ordered program
// the data executor runs over each matching data record, plus the extension
// map and total output size that program produces.
type TranslationTable struct {
	TemplateId uint16
	FieldCount int

	Sequence []seqInstruction

	ExtMap             *ExtensionMap
	OutputRecordLength uint16

	// ReceivedOffset/RouterIPOffset/RouterIPOffset+RouterIPLen are where the
	// executor unconditionally stamps EX_RECEIVED and EX_ROUTER_IP_v4/v6,
	// per §4.4 step 3 and §4.6 steps 8/12. They are never zero: every
	// compiled table carries both extensions.
	ReceivedOffset int
	RouterIPOffset int
	RouterIPLen    int

	HasICMP bool

	// WireMinLength is the fewest bytes a data record matching this
	// template can occupy: the sum of every field's declared length, with
	// variable-length fields counted as their 1-byte length prefix only.
	// A set's remaining bytes falling below this after the last full
	// record is trailing padding, not another record (§4.7).
	WireMinLength int
}

// CompileTemplate turns a parsed template record into a TranslationTable,
// per §4.4. It returns ErrNoFieldsSurvived if every field was dropped
// (unsupported enterprise PEN, or a (element id, length) combination the
// catalog doesn't recognize), since a template with no usable output is
// worse than useless: it would only ever produce empty records.
func CompileTemplate(templateId uint16, fields []templateField, descriptors map[extensionId]ExtensionDescriptor, exporterIsIPv6 bool) (*TranslationTable, error) {
	type resolved struct {
		instr seqInstruction
		key   uint16
		ext   extensionId
		core  bool
	}

	resolvedFields := make([]resolved, 0, len(fields))
	activeExt := make(map[extensionId]struct{})
	presentCoreKeys := make(map[uint16]struct{})
	presentExtKeys := make(map[uint16]struct{})
	hasICMP := false
	survivors := 0
	wireMinLength := 0

	for _, f := range fields {
		if f.length == dynamicWireLength {
			wireMinLength++
		} else {
			wireMinLength += int(f.length)
		}

		cf := compileField(f.elementId, f.length, f.enterpriseNumber)

		if cf.isICMP {
			hasICMP = true
			survivors++
			resolvedFields = append(resolvedFields, resolved{instr: cf.instr})
			continue
		}

		if cf.isScratch {
			// Duration / per-record SysUpTime: resolved by the executor into
			// scratch state, per §4.6 steps 9-10, and never occupies its own
			// output bytes.
			survivors++
			resolvedFields = append(resolvedFields, resolved{instr: cf.instr})
			continue
		}

		if cf.instr.outputOffset < 0 {
			// Unmapped field: still needs a skip instruction to stay in
			// sync with the wire, but isn't a survivor.
			resolvedFields = append(resolvedFields, resolved{instr: cf.instr})
			continue
		}

		survivors++
		key := canonicalKey(f.elementId)
		layout := layoutByKey[key]

		r := resolved{instr: cf.instr, key: key, ext: layout.extId}
		if layout.extId == extNone {
			abs, _ := coreFieldOffset(key)
			r.instr.outputOffset = abs
			r.core = true
			presentCoreKeys[key] = struct{}{}
		} else {
			activeExt[layout.extId] = struct{}{}
			presentExtKeys[key] = struct{}{}
		}
		resolvedFields = append(resolvedFields, r)
	}

	if survivors == 0 {
		return nil, ErrNoFieldsSurvived
	}

	// EX_RECEIVED and the family-appropriate EX_ROUTER_IP are carried by
	// every compiled table unconditionally, per §4.4 step 3: unlike every
	// other extension they are never driven by a template field, only
	// stamped directly by the executor (§4.6 steps 8/12).
	activeExt[extReceived] = struct{}{}
	routerExt := extRouterIPv4
	if exporterIsIPv6 {
		routerExt = extRouterIPv6
	}
	activeExt[routerExt] = struct{}{}

	extMap := NewExtensionMap(activeExt, descriptors)

	// Assign each active extension's base offset now that the full set (and
	// therefore its ascending-id order) is known.
	extBase := make(map[extensionId]int, len(extMap.Ids))
	base := recordHeaderSize + coreSize
	for _, id := range extMap.Ids {
		extBase[id] = base
		base += int(descriptors[id].OutputLength)
	}

	sequence := make([]seqInstruction, 0, len(resolvedFields)+len(coreKeys))
	for _, r := range resolvedFields {
		if !r.core && r.ext != extNone {
			layout := layoutByKey[r.key]
			r.instr.outputOffset = extBase[r.ext] + layout.offset
		}
		sequence = append(sequence, r.instr)
	}

	// Zero-fill every core field this template didn't mention, and every
	// field of an active extension this template didn't mention, so every
	// output record for a given extension set has a fully-initialized fixed
	// layout regardless of which subset of fields the exporter actually sent.
	for _, key := range coreKeys {
		if _, ok := presentCoreKeys[key]; ok {
			continue
		}
		abs, _ := coreFieldOffset(key)
		sequence = append(sequence, seqInstruction{op: keyZeroOpcode[key], outputOffset: abs})
	}
	for extId := range activeExt {
		for _, key := range extKeys[extId] {
			if _, ok := presentExtKeys[key]; ok {
				continue
			}
			layout := layoutByKey[key]
			sequence = append(sequence, seqInstruction{op: keyZeroOpcode[key], outputOffset: extBase[extId] + layout.offset})
		}
	}

	return &TranslationTable{
		TemplateId:         templateId,
		FieldCount:         len(fields),
		Sequence:           sequence,
		ExtMap:             extMap,
		OutputRecordLength: uint16(base),
		ReceivedOffset:     extBase[extReceived],
		RouterIPOffset:     extBase[routerExt],
		RouterIPLen:        int(descriptors[routerExt].OutputLength),
		HasICMP:            hasICMP,
		WireMinLength:      wireMinLength,
	}, nil
}

// ParseTemplateSet walks a Template Set (flowset id 2) body, per RFC 7011
// section 3.4.1, compiling each template record it finds and reporting any
// withdrawals. A template record with a field count of zero withdraws the
// template named by its own template id; template id equal to the set's own
// flowset id (2) withdraws every template the exporter owns, per §3.
func ParseTemplateSet(cur *cursor, descriptors map[extensionId]ExtensionDescriptor, exporterIsIPv6 bool) (compiled []*TranslationTable, withdrawn []uint16, withdrawAll bool, err error) {
	for cur.remaining >= 4 {
		templateId, terr := cur.readU16()
		if terr != nil {
			return compiled, withdrawn, withdrawAll, terr
		}
		fieldCount, ferr := cur.readU16()
		if ferr != nil {
			return compiled, withdrawn, withdrawAll, ferr
		}

		if fieldCount == 0 {
			if templateId == FlowSetTemplate {
				withdrawAll = true
			} else {
				withdrawn = append(withdrawn, templateId)
			}
			continue
		}

		fields, ferr := readTemplateFields(cur, int(fieldCount))
		if ferr != nil {
			return compiled, withdrawn, withdrawAll, ferr
		}

		tt, cerr := CompileTemplate(templateId, fields, descriptors, exporterIsIPv6)
		if cerr != nil {
			// A degenerate template is skipped, not fatal to the rest of
			// the set: other templates in the same datagram are unaffected.
			continue
		}
		compiled = append(compiled, tt)
	}
	return compiled, withdrawn, withdrawAll, nil
}
