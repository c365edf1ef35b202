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

func TestMapElementStandard(t *testing.T) {
	r := MapElement(ieSourceIPv4Address, 4, 0)
	if !r.found {
		t.Fatal("expected sourceIPv4Address/4 to be found")
	}
	if catalog[r.entryIndex].copyOpcode != opMove32 {
		t.Errorf("expected opMove32, got %s", catalog[r.entryIndex].copyOpcode)
	}
}

func TestMapElementLengthMismatch(t *testing.T) {
	r := MapElement(ieSourceIPv4Address, 16, 0)
	if r.found {
		t.Fatal("expected sourceIPv4Address/16 to be unmapped (length mismatch)")
	}
}

func TestMapElementUnknownEnterprise(t *testing.T) {
	r := MapElement(iePacketDeltaCount, 8, 6871)
	if r.found {
		t.Fatal("expected unsupported enterprise PEN to be dropped")
	}
}

func TestMapElementReversePEN(t *testing.T) {
	r := MapElement(iePacketDeltaCount, 8, ReverseInformationElementPEN)
	if !r.found {
		t.Fatal("expected packetDeltaCount under the reverse PEN to remap to postPacketDeltaCount")
	}
	if catalog[r.entryIndex].elementId != iePostPacketDeltaCount {
		t.Errorf("expected remap to postPacketDeltaCount, got element %d", catalog[r.entryIndex].elementId)
	}
}

func TestMapElementUnmappedCombination(t *testing.T) {
	r := MapElement(0xffff, 4, 0)
	if r.found {
		t.Fatal("expected unknown element id to be unmapped")
	}
}

func TestMapElementTwoASWidths(t *testing.T) {
	r2 := MapElement(ieBgpSourceAsNumber, 2, 0)
	if !r2.found || catalog[r2.entryIndex].extensionId != extAS2 {
		t.Error("expected 2-byte AS number to map to extAS2")
	}
	r4 := MapElement(ieBgpSourceAsNumber, 4, 0)
	if !r4.found || catalog[r4.entryIndex].extensionId != extAS4 {
		t.Error("expected 4-byte AS number to map to extAS4")
	}
}
