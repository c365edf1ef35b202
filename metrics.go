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

import "github.com/prometheus/client_golang/prometheus"

var (
	PacketsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_packets_total",
		Help: "Total number of IPFIX datagrams handed to ProcessPacket",
	})
	ErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_errors_total",
		Help: "Total number of datagrams aborted due to a protocol error",
	})
	DurationMicroseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipfix_decoder_duration_microseconds",
		Help:    "Duration of ProcessPacket calls in microseconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
	DecodedFlowSets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipfix_decoder_decoded_flowsets_total",
		Help: "Total number of data flowsets decoded per kind (data, options_data); template and options template flowsets are not counted",
	}, []string{"kind"})
	DecodedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipfix_decoder_decoded_records_total",
		Help: "Total number of records emitted into the sink per kind",
	}, []string{"kind"})
)

var (
	TemplatesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipfix_decoder_templates_active",
		Help: "Number of translation tables currently held across all exporters",
	})
	TemplateRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_template_refreshes_total",
		Help: "Total number of templates that were re-compiled in place",
	})
	TemplateWithdrawals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_template_withdrawals_total",
		Help: "Total number of templates withdrawn by the exporter",
	})
	SequenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_sequence_failures_total",
		Help: "Total number of exporter sequence-number gaps observed",
	})
	SamplerUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_decoder_sampler_updates_total",
		Help: "Total number of sampler descriptors inserted or changed",
	})
)

// ProtocolStatsMetrics exposes the per-protocol statistics required by §4.6 step 13
// as Prometheus counter vectors keyed by protocol name.
var (
	ProtocolFlows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipfix_decoder_protocol_flows_total",
		Help: "Total number of flows decoded per IP protocol",
	}, []string{"protocol"})
	ProtocolPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipfix_decoder_protocol_packets_total",
		Help: "Total number of packets (sampling-corrected) decoded per IP protocol",
	}, []string{"protocol"})
	ProtocolBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipfix_decoder_protocol_bytes_total",
		Help: "Total number of bytes (sampling-corrected) decoded per IP protocol",
	}, []string{"protocol"})
)

// listener metrics, covering both transports a collector can be fed from.
var (
	UDPPacketsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_udp_listener_packets_total",
		Help: "Total number of datagrams received via the UDP listener",
	})
	UDPPacketBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_udp_listener_bytes_total",
		Help: "Total number of bytes read by the UDP listener",
	})
	TCPActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipfix_tcp_listener_active_connections",
		Help: "Number of TCP connections currently held open by the TCP listener",
	})
	TCPReceivedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipfix_tcp_listener_bytes_total",
		Help: "Total number of bytes read by the TCP listener",
	})
)
