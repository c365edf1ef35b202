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

/*
Package ipfixcore decodes IPFIX (RFC 7011) flow export datagrams into a
fixed-layout binary output record, in the spirit of nfdump's libnfdump/ipfix.c:
rather than walking a template's fields at every data record, each template
is compiled once into a translation table — an ordered sequence of opcodes
with precomputed output offsets — and that table is simply replayed against
every data record tagged with its template id.

# Overview

An IPFIX message carries a 16-byte header followed by one or more sets.
A Template Set (flowset id 2) and an Options Template Set (flowset id 3)
describe the shape of the data sets (flowset id >= 256) that reference them
by id within the same exporter. This package tracks exporters by the pair of
(observation domain id, source IP), keeping each exporter's templates,
samplers, and sequence-number state independently.

Decoding proceeds in two phases per exporter, matching how real exporters
behave: template sets arrive first (and are periodically re-sent), compiling
translation tables; then data sets arrive referencing those templates by id.
A translation table maps every recognized information element onto a fixed
output offset drawn from a static element catalog, widening narrow counters,
normalizing every flow timestamp encoding to epoch milliseconds, scaling
sampled counters by the exporter's announced sampling interval, and folding
ICMP type/code into the otherwise-unused destination port slot.

# Entry point

Collector is the top-level type embedding a Decoder, a Registry, and a Sink.
Call NewCollector with a Config and a Sink (nil for an in-memory one) and
feed it datagrams via Process.
*/
package ipfixcore
