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
	"net"
	"testing"
)

func compileIPv4Template(t *testing.T, templateId uint16) *TranslationTable {
	t.Helper()
	tt, err := CompileTemplate(templateId, ipv4Fields(), descriptorMap(t), false)
	if err != nil {
		t.Fatalf("failed to compile template: %v", err)
	}
	return tt
}

func TestExecuteRecordBasicFields(t *testing.T) {
	tt := compileIPv4Template(t, 500)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := []byte{}
	data = append(data, 0, 0, 0x01, 0x86, 0x30, 0x00, 0x00, 0x00) // flowStartMilliseconds
	data = append(data, 0, 0, 0x01, 0x86, 0x30, 0x00, 0x00, 0x64) // flowEndMilliseconds
	data = append(data, 6)                                       // protocolIdentifier = TCP
	data = append(data, 0x1f, 0x90)                               // source port 8080
	data = append(data, 0x00, 0x50)                               // dest port 80
	data = append(data, 192, 0, 2, 10)                            // source IP
	data = append(data, 192, 0, 2, 20)                            // dest IP
	data = append(data, 0, 0, 0, 10)                              // packetDeltaCount
	data = append(data, 0, 0, 0x04, 0)                            // octetDeltaCount

	rec := make([]byte, tt.OutputRecordLength)
	consumed, result, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(data) {
		t.Errorf("expected to consume %d bytes, got %d", len(data), consumed)
	}
	if result.protocol != ProtocolTCP {
		t.Errorf("expected protocol TCP (%d), got %d", ProtocolTCP, result.protocol)
	}
	if result.packets != 10 {
		t.Errorf("expected 10 packets, got %d", result.packets)
	}
	if result.bytes != 1024 {
		t.Errorf("expected 1024 bytes, got %d", result.bytes)
	}

	protoOff, _ := coreFieldOffset(ieProtocolIdentifier)
	if rec[protoOff] != ProtocolTCP {
		t.Errorf("expected protocol byte %d in output record, got %d", ProtocolTCP, rec[protoOff])
	}
	srcOff, _ := coreFieldOffset(ieSourceIPv4Address)
	if !net.IP(rec[srcOff:srcOff+4]).Equal(net.IPv4(192, 0, 2, 10)) {
		t.Errorf("expected source IP 192.0.2.10 in output record, got %v", net.IP(rec[srcOff:srcOff+4]))
	}
}

func TestExecuteRecordSamplingScalesCounters(t *testing.T) {
	tt := compileIPv4Template(t, 501)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)
	exporter.InsertSampler(defaultSamplerId, 0, 10)

	data := make([]byte, 0, tt.WireMinLength)
	data = append(data, 0, 0, 0, 0, 0, 0, 0, 0) // flowStart
	data = append(data, 0, 0, 0, 0, 0, 0, 0, 0) // flowEnd
	data = append(data, 6)
	data = append(data, 0, 0)
	data = append(data, 0, 0)
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 5) // packetDeltaCount = 5
	data = append(data, 0, 0, 0, 7) // octetDeltaCount = 7

	rec := make([]byte, tt.OutputRecordLength)
	_, result, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.packets != 50 {
		t.Errorf("expected sampling-corrected packet count 50, got %d", result.packets)
	}
	if result.bytes != 70 {
		t.Errorf("expected sampling-corrected byte count 70, got %d", result.bytes)
	}
}

func TestExecuteRecordOverrideMultiplier(t *testing.T) {
	tt := compileIPv4Template(t, 502)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)
	exporter.InsertSampler(defaultSamplerId, 0, 10)

	data := make([]byte, tt.WireMinLength)
	data[len(data)-1] = 2 // octetDeltaCount = 2

	rec := make([]byte, tt.OutputRecordLength)
	_, result, err := ExecuteRecord(rec, tt, exporter, data, 0, 1000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.bytes != 2000 {
		t.Errorf("expected override multiplier to produce 2000 bytes, got %d", result.bytes)
	}
}

func TestExecuteRecordEpoch1996Clamp(t *testing.T) {
	tt := compileIPv4Template(t, 503)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := make([]byte, tt.WireMinLength)
	// flowStartMilliseconds left at zero, well before the 1996 floor

	rec := make([]byte, tt.OutputRecordLength)
	_, _, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	off, _ := coreFieldOffset(canonicalKey(ieFlowStartMilliseconds))
	if u64(rec, off) != 0 {
		t.Errorf("expected a bogus pre-1996 timestamp to clamp to 0, got %d", u64(rec, off))
	}
}

func icmpFixupFields() []templateField {
	return []templateField{
		{elementId: ieProtocolIdentifier, length: 1},
		{elementId: ieIcmpTypeCodeIPv4, length: 2},
		{elementId: ieSourceIPv4Address, length: 4},
		{elementId: ieSourceTransportPort, length: 2},
		{elementId: ieDestinationTransportPort, length: 2},
	}
}

func TestExecuteRecordICMPFixup(t *testing.T) {
	descriptors := descriptorMap(t)
	tt, err := CompileTemplate(504, icmpFixupFields(), descriptors, false)
	if err != nil {
		t.Fatalf("failed to compile template: %v", err)
	}
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := []byte{1, 8, 0, 192, 0, 2, 1, 0x1f, 0x90, 0xff, 0xff} // protocol ICMP, src port 8080
	rec := make([]byte, tt.OutputRecordLength)
	_, _, err = ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	portOff, _ := coreFieldOffset(ieDestinationTransportPort)
	if rec[portOff] != 8 || rec[portOff+1] != 0 {
		t.Errorf("expected ICMP type/code folded into dest-port slot, got %d/%d", rec[portOff], rec[portOff+1])
	}
	srcPortOff, _ := coreFieldOffset(ieSourceTransportPort)
	if rec[srcPortOff] != 0 || rec[srcPortOff+1] != 0 {
		t.Errorf("expected source port zeroed by the ICMP fixup, got %d/%d", rec[srcPortOff], rec[srcPortOff+1])
	}
}

func TestExecuteRecordICMPFixupGatedByProtocol(t *testing.T) {
	descriptors := descriptorMap(t)
	tt, err := CompileTemplate(506, icmpFixupFields(), descriptors, false)
	if err != nil {
		t.Fatalf("failed to compile template: %v", err)
	}
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := []byte{6, 8, 0, 192, 0, 2, 1, 0x1f, 0x90, 0x00, 0x50} // protocol TCP, not ICMP
	rec := make([]byte, tt.OutputRecordLength)
	_, _, err = ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srcPortOff, _ := coreFieldOffset(ieSourceTransportPort)
	if rec[srcPortOff] != 0x1f || rec[srcPortOff+1] != 0x90 {
		t.Errorf("expected TCP source port left intact, got %d/%d", rec[srcPortOff], rec[srcPortOff+1])
	}
}

func TestExecuteRecordStampsReceivedAndRouterIP(t *testing.T) {
	tt := compileIPv4Template(t, 507)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("198.51.100.7")), net.ParseIP("198.51.100.7"), 1)

	data := make([]byte, tt.WireMinLength)
	rec := make([]byte, tt.OutputRecordLength)
	_, _, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 1_700_000_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := u64(rec, tt.ReceivedOffset); got != 1_700_000_000_000 {
		t.Errorf("expected received time 1700000000000, got %d", got)
	}
	if tt.RouterIPLen != 4 {
		t.Fatalf("expected an IPv4 router-ip extension for an IPv4 exporter, got length %d", tt.RouterIPLen)
	}
	got := net.IP(rec[tt.RouterIPOffset : tt.RouterIPOffset+4])
	if !got.Equal(net.ParseIP("198.51.100.7")) {
		t.Errorf("expected router ip 198.51.100.7, got %v", got)
	}
}

func TestExecuteRecordTimeFieldsSplitIntoSecondsAndMsec(t *testing.T) {
	tt := compileIPv4Template(t, 508)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := []byte{}
	data = append(data, 0x00, 0x00, 0x01, 0x8b, 0xcf, 0xe5, 0x68, 0x00) // flowStart = 1_700_000_000_000 ms
	data = append(data, 0x00, 0x00, 0x01, 0x8b, 0xcf, 0xe5, 0x69, 0xf4) // flowEnd   = 1_700_000_000_500 ms
	data = append(data, 6)
	data = append(data, 0, 0)
	data = append(data, 0, 0)
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 0)

	rec := make([]byte, tt.OutputRecordLength)
	_, result, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	startOff, _ := coreFieldOffset(canonicalKey(ieFlowStartMilliseconds))
	endOff, _ := coreFieldOffset(canonicalKey(ieFlowEndMilliseconds))

	if secs := u32(rec, startOff); secs != 1_700_000_000 {
		t.Errorf("expected flow-start seconds 1700000000, got %d", secs)
	}
	if msec := u16(rec, startOff+4); msec != 0 {
		t.Errorf("expected flow-start msec 0, got %d", msec)
	}
	if secs := u32(rec, endOff); secs != 1_700_000_000 {
		t.Errorf("expected flow-end seconds 1700000000, got %d", secs)
	}
	if msec := u16(rec, endOff+4); msec != 500 {
		t.Errorf("expected flow-end msec 500, got %d", msec)
	}
	if result.timestampMs != 1_700_000_000_000 {
		t.Errorf("expected tracked timestamp to be the flow-start time, got %d", result.timestampMs)
	}
}

func TestExecuteRecordDurationFoldsIntoFlowEnd(t *testing.T) {
	descriptors := descriptorMap(t)
	fields := []templateField{
		{elementId: ieFlowStartSeconds, length: 4},
		{elementId: ieFlowDurationMilliseconds, length: 4},
		{elementId: ieProtocolIdentifier, length: 1},
	}
	tt, err := CompileTemplate(509, fields, descriptors, false)
	if err != nil {
		t.Fatalf("failed to compile template: %v", err)
	}
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := []byte{0x65, 0x53, 0xf1, 0x00, 0, 0, 0x03, 0xe8, 6} // flowStartSeconds=1700000000, duration=1000ms, TCP
	rec := make([]byte, tt.OutputRecordLength)
	_, _, err = ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	endOff, _ := coreFieldOffset(canonicalKey(ieFlowEndMilliseconds))
	if secs := u32(rec, endOff); secs != 1_700_000_001 {
		t.Errorf("expected flow-end = flow-start + duration = 1700000001s, got %d", secs)
	}
}

func TestExecuteRecordTruncated(t *testing.T) {
	tt := compileIPv4Template(t, 505)
	exporter := newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)

	data := make([]byte, 4) // far short of WireMinLength
	rec := make([]byte, tt.OutputRecordLength)
	_, _, err := ExecuteRecord(rec, tt, exporter, data, 0, 0, 0)
	if err == nil {
		t.Fatal("expected a truncation error")
	}
}
