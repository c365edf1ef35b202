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
)

// Collector bundles the pieces a long-running process needs to decode a
// stream of IPFIX datagrams from one or more exporters: the exporter
// registry (state kept across packets), the configuration driving
// extension/sampling behavior, and the sink decoded records are delivered
// to. It is the package's highest-level entry point, mirroring the way
// nfdump's collector loop ties together its translation table cache, its
// sampling state, and its output file per §6.
type Collector struct {
	decoder  *Decoder
	registry *Registry
}

// NewCollector builds a Collector ready to process datagrams. If sink is
// nil, a MemorySink sized from cfg.OutputBufferBytes is created and used,
// which is enough for tests and small embedding programs; production
// deployments normally supply their own Sink.
func NewCollector(cfg Config, sink Sink) *Collector {
	if sink == nil {
		sink = NewMemorySink(cfg.OutputBufferBytes, cfg.Verbose, cfg.ExtensionDescriptors)
	}
	registry := NewRegistry()
	return &Collector{
		decoder:  NewDecoder(registry, cfg, sink),
		registry: registry,
	}
}

// Process decodes one UDP/TCP-framed IPFIX datagram received from
// sourceIP, updating exporter and sampler state and appending decoded
// records to the configured sink. It is safe to call concurrently from
// multiple goroutines reading from different sockets, since all shared
// state (the registry, the sink) is internally synchronized.
func (c *Collector) Process(ctx context.Context, buf []byte, sourceIP net.IP) error {
	start := time.Now()
	err := c.decoder.ProcessPacket(ctx, buf, sourceIP)
	DurationMicroseconds.Observe(float64(time.Since(start).Microseconds()))
	return err
}

// Exporters returns every exporter this collector has seen so far, for
// status/introspection endpoints.
func (c *Collector) Exporters() []*ExporterState {
	return c.registry.All()
}
