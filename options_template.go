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

// CompileOptionsTemplate resolves an Options Template Record (RFC 7011
// section 3.4.2.2) into the sampler/system-init-time descriptors named in
// §4.5. Scope fields are not individually interpreted — their only relevance
// here is their byte width, which the non-scope fields' offsets are computed
// past — but a record declaring zero scope fields is malformed per the RFC
// and rejected outright.
func CompileOptionsTemplate(templateId uint16, scopeFieldCount int, scopeFields, fields []templateField) (*SamplerOption, *SystemInitTimeOption, error) {
	if scopeFieldCount == 0 {
		return nil, nil, ErrScopeFieldCountZero
	}

	offset := 0
	variable := false
	for _, f := range scopeFields {
		if f.length == dynamicWireLength {
			variable = true
		}
		offset += optionFieldWidth(f)
	}

	opt := &SamplerOption{TableId: templateId}
	var sysInit *SystemInitTimeOption

	for _, f := range fields {
		width := optionFieldWidth(f)
		if f.length == dynamicWireLength {
			variable = true
		}
		if variable {
			// Offsets from here on are unknown; see optionFieldWidth.
			offset += width
			continue
		}
		slot := fieldSlot{offset: offset, length: width}

		switch f.elementId {
		case ieSamplingInterval:
			opt.Flags |= samplerFlagStandard
			opt.StandardInterval = slot
		case ieSamplingAlgorithm:
			opt.Flags |= samplerFlagStandard
			opt.StandardAlgorithm = slot
		case ieSamplerId, ieSelectorId:
			opt.Flags |= samplerFlagPerSampler
			opt.SamplerId = slot
		case ieSamplerMode:
			opt.Flags |= samplerFlagPerSampler
			opt.SamplerMode = slot
		case ieSamplerRandomInterval, ieSamplingFlowInterval:
			opt.Flags |= samplerFlagPerSampler
			opt.SamplerInterval = slot
		case ieSamplingFlowSpacing:
			// Spacing-style sampling (1-in-N on a rotating offset) shares the
			// interval slot; this decoder treats it identically to a flow
			// interval for scaling purposes.
			opt.Flags |= samplerFlagPerSampler
			opt.SamplerInterval = slot
		case ieSystemInitTimeMilliseconds:
			sysInit = &SystemInitTimeOption{TableId: templateId, Value: slot}
		}

		offset += width
	}

	if opt.Flags == 0 {
		opt = nil
	} else {
		opt.RecordWidth = offset
	}
	if sysInit != nil {
		sysInit.RecordWidth = offset
	}
	return opt, sysInit, nil
}

// optionFieldWidth is a field's declared wire width, treating the IPFIX
// variable-length marker as width 0: a variable-length scope or option field
// this decoder doesn't specifically recognize can't be offset past reliably,
// so any sampler/system-init-time field declared after one is simply not
// resolvable and is left at its zero value.
func optionFieldWidth(f templateField) int {
	if f.length == dynamicWireLength {
		return 0
	}
	return int(f.length)
}

// ParseOptionsTemplateSet walks an Options Template Set (flowset id 3) body,
// per RFC 7011 section 3.4.2.2, compiling every options template record it
// finds. Unlike ParseTemplateSet, compiled results here are sampler/
// system-init-time descriptors rather than TranslationTables: option
// records never carry flow data of their own kind, only metadata about an
// exporter's samplers.
func ParseOptionsTemplateSet(cur *cursor) (samplerOptions []*SamplerOption, sysInitOptions []*SystemInitTimeOption, err error) {
	for cur.remaining >= 6 {
		templateId, terr := cur.readU16()
		if terr != nil {
			return samplerOptions, sysInitOptions, terr
		}
		fieldCount, ferr := cur.readU16()
		if ferr != nil {
			return samplerOptions, sysInitOptions, ferr
		}
		scopeFieldCount, serr := cur.readU16()
		if serr != nil {
			return samplerOptions, sysInitOptions, serr
		}

		if int(scopeFieldCount) > int(fieldCount) {
			return samplerOptions, sysInitOptions, ErrTruncated
		}

		scopeFields, serr := readTemplateFields(cur, int(scopeFieldCount))
		if serr != nil {
			return samplerOptions, sysInitOptions, serr
		}
		fields, ferr := readTemplateFields(cur, int(fieldCount)-int(scopeFieldCount))
		if ferr != nil {
			return samplerOptions, sysInitOptions, ferr
		}

		opt, sysInit, cerr := CompileOptionsTemplate(templateId, int(scopeFieldCount), scopeFields, fields)
		if cerr != nil {
			continue
		}
		if opt != nil {
			samplerOptions = append(samplerOptions, opt)
		}
		if sysInit != nil {
			sysInitOptions = append(sysInitOptions, sysInit)
		}
	}
	return samplerOptions, sysInitOptions, nil
}
