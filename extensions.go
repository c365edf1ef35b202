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

import "sort"

// extensionId names one optional extension a translation table's output
// record may carry, per §3/§4.4 step 5/6. Extension ids are intentionally
// dense small integers, ordered the way they must appear in an ExtensionMap.
type extensionId uint8

const (
	extNone extensionId = iota
	extReceived
	extRouterIPv4
	extRouterIPv6
	extRouterID
	extIoSNMP2
	extIoSNMP4
	extAS2
	extAS4
	extMultiple
	extNextHopv4
	extNextHopv6
	extBgpNextHopv4
	extBgpNextHopv6
	extVlan
	extOutPkg
	extOutBytes
	extMac1
	extMac2
	extMpls
	extNatEvent
	extNatVrf
	extNatXlateAddr
	extNatXlatePort

	extensionCount // sentinel, number of known extension ids
)

// ExtensionDescriptor is one row of the configuration input named in §6:
// per-extension enabled bit and output size. RouterID occupies no output
// bytes (the field is always skipped per §4.4 step 5) but still has a
// descriptor slot so configuration can name it.
type ExtensionDescriptor struct {
	Id           extensionId `yaml:"-" json:"-"`
	Name         string      `yaml:"name" json:"name"`
	Enabled      bool        `yaml:"enabled" json:"enabled"`
	OutputLength uint16      `yaml:"outputLength" json:"outputLength"`
}

// DefaultExtensionDescriptors returns the built-in descriptor table with
// every extension enabled. Config.ExtensionDescriptors starts from this and
// callers override individual Enabled bits via YAML (see config.go).
func DefaultExtensionDescriptors() []ExtensionDescriptor {
	return []ExtensionDescriptor{
		{Id: extReceived, Name: "received", Enabled: true, OutputLength: 8},
		{Id: extRouterIPv4, Name: "router_ip_v4", Enabled: true, OutputLength: 4},
		{Id: extRouterIPv6, Name: "router_ip_v6", Enabled: true, OutputLength: 16},
		{Id: extRouterID, Name: "router_id", Enabled: true, OutputLength: 0},
		{Id: extIoSNMP2, Name: "io_snmp_2", Enabled: true, OutputLength: 4},
		{Id: extIoSNMP4, Name: "io_snmp_4", Enabled: true, OutputLength: 8},
		{Id: extAS2, Name: "as_2", Enabled: true, OutputLength: 4},
		{Id: extAS4, Name: "as_4", Enabled: true, OutputLength: 8},
		{Id: extMultiple, Name: "multiple", Enabled: true, OutputLength: 4},
		{Id: extNextHopv4, Name: "next_hop_v4", Enabled: true, OutputLength: 4},
		{Id: extNextHopv6, Name: "next_hop_v6", Enabled: true, OutputLength: 16},
		{Id: extBgpNextHopv4, Name: "bgp_next_hop_v4", Enabled: true, OutputLength: 4},
		{Id: extBgpNextHopv6, Name: "bgp_next_hop_v6", Enabled: true, OutputLength: 16},
		{Id: extVlan, Name: "vlan", Enabled: true, OutputLength: 4},
		{Id: extOutPkg, Name: "out_packets", Enabled: true, OutputLength: 8},
		{Id: extOutBytes, Name: "out_bytes", Enabled: true, OutputLength: 8},
		{Id: extMac1, Name: "mac_1", Enabled: true, OutputLength: 16},
		{Id: extMac2, Name: "mac_2", Enabled: true, OutputLength: 16},
		{Id: extMpls, Name: "mpls", Enabled: true, OutputLength: 40},
		{Id: extNatEvent, Name: "nat_event", Enabled: true, OutputLength: 1},
		{Id: extNatVrf, Name: "nat_vrf", Enabled: true, OutputLength: 8},
		{Id: extNatXlateAddr, Name: "nat_xlate_addr", Enabled: true, OutputLength: 8},
		{Id: extNatXlatePort, Name: "nat_xlate_port", Enabled: true, OutputLength: 4},
	}
}

// ExtensionMap is the ordered, strictly-by-id list of extensions a class of
// output records carries, per §3. It is owned by exactly one TranslationTable
// and re-registered with the sink whenever its contents or ordering changes.
type ExtensionMap struct {
	Id   uint32
	Ids  []extensionId
	size uint16
}

// NewExtensionMap builds a map from an unordered set, sorting ids ascending
// as required by the "strictly ordered by extension id" invariant in §3.
func NewExtensionMap(set map[extensionId]struct{}, descriptors map[extensionId]ExtensionDescriptor) *ExtensionMap {
	ids := make([]extensionId, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var size uint16
	for _, id := range ids {
		size += descriptors[id].OutputLength
	}

	return &ExtensionMap{Ids: ids, size: size}
}

// Equal reports whether two extension maps carry the same ids in the same
// order, used to detect when a refreshed template actually changed its
// extension set and therefore needs re-registration with the sink.
func (m *ExtensionMap) Equal(other *ExtensionMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.Ids) != len(other.Ids) {
		return false
	}
	for i := range m.Ids {
		if m.Ids[i] != other.Ids[i] {
			return false
		}
	}
	return true
}

// Has reports whether id is present in the map.
func (m *ExtensionMap) Has(id extensionId) bool {
	for _, v := range m.Ids {
		if v == id {
			return true
		}
	}
	return false
}
