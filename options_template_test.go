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

import "testing"

func TestCompileOptionsTemplateZeroScope(t *testing.T) {
	_, _, err := CompileOptionsTemplate(300, 0, nil, nil)
	if err != ErrScopeFieldCountZero {
		t.Fatalf("expected ErrScopeFieldCountZero, got %v", err)
	}
}

func TestCompileOptionsTemplateSampler(t *testing.T) {
	scope := []templateField{{elementId: 149, length: 4}} // observationPointId, just a scope field
	fields := []templateField{
		{elementId: ieSamplerId, length: 2},
		{elementId: ieSamplerMode, length: 1},
		{elementId: ieSamplingFlowInterval, length: 4},
	}
	opt, sysInit, err := CompileOptionsTemplate(301, 1, scope, fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sysInit != nil {
		t.Error("did not expect a system-init-time descriptor")
	}
	if opt == nil {
		t.Fatal("expected a sampler descriptor")
	}
	if opt.Flags&samplerFlagPerSampler == 0 {
		t.Error("expected samplerFlagPerSampler to be set")
	}
	if opt.SamplerId.offset != 4 {
		t.Errorf("expected samplerId offset 4 (past the 4-byte scope field), got %d", opt.SamplerId.offset)
	}
	if opt.SamplerMode.offset != 6 {
		t.Errorf("expected samplerMode offset 6, got %d", opt.SamplerMode.offset)
	}
	if opt.SamplerInterval.offset != 7 {
		t.Errorf("expected samplerInterval offset 7, got %d", opt.SamplerInterval.offset)
	}
	if opt.RecordWidth != 11 {
		t.Errorf("expected record width 11, got %d", opt.RecordWidth)
	}
}

func TestCompileOptionsTemplateSystemInitTime(t *testing.T) {
	scope := []templateField{{elementId: 149, length: 4}}
	fields := []templateField{{elementId: ieSystemInitTimeMilliseconds, length: 8}}
	opt, sysInit, err := CompileOptionsTemplate(302, 1, scope, fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt != nil {
		t.Error("did not expect a sampler descriptor")
	}
	if sysInit == nil {
		t.Fatal("expected a system-init-time descriptor")
	}
	if sysInit.Value.offset != 4 || sysInit.Value.length != 8 {
		t.Errorf("unexpected system-init-time slot: %+v", sysInit.Value)
	}
}

func TestParseOptionsTemplateSetRejectsBadScopeCount(t *testing.T) {
	buf := []byte{}
	buf = append(buf, 0x01, 0x2d, 0x00, 0x01, 0x00, 0x02) // templateId=301, fieldCount=1, scopeFieldCount=2
	cur := newCursor(buf, 0, len(buf))
	_, _, err := ParseOptionsTemplateSet(cur)
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
