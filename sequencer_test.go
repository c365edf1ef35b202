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

func TestCanonicalKeyMerging(t *testing.T) {
	cases := []struct {
		name string
		in   uint16
		want uint16
	}{
		{"seconds merges onto milliseconds", ieFlowStartSeconds, ieFlowStartMilliseconds},
		{"sysuptime merges onto milliseconds", ieFlowStartSysUpTime, ieFlowStartMilliseconds},
		{"total count merges onto delta count", iePacketTotalCount, iePacketDeltaCount},
		{"icmp v6 merges onto v4 slot", ieIcmpTypeCodeIPv6, ieIcmpTypeCodeIPv4},
		{"unmerged element is its own key", ieProtocolIdentifier, ieProtocolIdentifier},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := canonicalKey(c.in); got != c.want {
				t.Errorf("canonicalKey(%d) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

func TestCoreFieldOffsetStable(t *testing.T) {
	off1, ok := coreFieldOffset(canonicalKey(ieSourceIPv4Address))
	if !ok {
		t.Fatal("expected sourceIPv4Address to be a core field")
	}
	off2, ok := coreFieldOffset(canonicalKey(ieSourceIPv4Address))
	if !ok || off1 != off2 {
		t.Errorf("expected stable core offset, got %d and %d", off1, off2)
	}
}

func TestCoreFieldOffsetRejectsExtensionKey(t *testing.T) {
	if _, ok := coreFieldOffset(canonicalKey(ieVlanId)); ok {
		t.Error("expected vlanId, an extension field, to not resolve as a core offset")
	}
}

func TestCompileFieldUnknownCombination(t *testing.T) {
	cf := compileField(0xfffe, 4, 0)
	if cf.instr.op != opDynSkip || cf.instr.outputOffset != -1 {
		t.Errorf("expected unmapped field to produce a skip instruction, got %+v", cf.instr)
	}
}

func TestCompileFieldICMP(t *testing.T) {
	cf := compileField(ieIcmpTypeCodeIPv4, 2, 0)
	if !cf.isICMP {
		t.Fatal("expected icmpTypeCodeIPv4 to be flagged as an ICMP field")
	}
	if cf.instr.op != opSaveICMP {
		t.Errorf("expected opSaveICMP, got %s", cf.instr.op)
	}
}

func TestCompileFieldDynamicLength(t *testing.T) {
	cf := compileField(0xfffe, dynamicWireLength, 0)
	if !cf.instr.dynamic {
		t.Error("expected dynamic flag set for templateLength == 65535")
	}
}
