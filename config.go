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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level, YAML-tagged configuration this package reads at
// startup, per the ambient configuration conventions the rest of this
// module's stack follows. Fields left unset fall back to their documented
// defaults rather than zero values; call Default() to get those before
// unmarshaling over them, which LoadConfig does for you.
type Config struct {
	// Verbose is handed to the MemorySink that NewCollector creates and is
	// reported by its Verbose method. The decoder itself does not call
	// DumpRecord, so this flag produces no dumps on its own.
	Verbose bool `yaml:"verbose"`

	// OutputBufferBytes bounds the size of the in-memory output arena a
	// MemorySink allocates.
	OutputBufferBytes int `yaml:"outputBufferBytes"`

	// DefaultSampling is applied to every exporter's default sampler until
	// an options record overrides it, 0/1 meaning no correction.
	DefaultSampling uint32 `yaml:"defaultSampling"`

	// OverwriteSampling forces DefaultSampling even for exporters that have
	// announced their own sampler via an options record, for deployments
	// that know their exporters misreport sampling.
	OverwriteSampling bool `yaml:"overwriteSampling"`

	// ExtensionDescriptors overrides the built-in defaults on a per-field
	// basis (e.g. to disable an extension this deployment never needs).
	ExtensionDescriptors []ExtensionDescriptor `yaml:"extensionDescriptors"`

	// UDPBindAddr and TCPBindAddr hold listen addresses, e.g. ":4739". This
	// package does not read them: Collector.ServeUDP and ServeTCP take their
	// bind address as an argument.
	UDPBindAddr string `yaml:"udpBindAddr"`
	TCPBindAddr string `yaml:"tcpBindAddr"`
}

// Default returns the configuration this package runs with when nothing
// else is specified.
func Default() Config {
	return Config{
		Verbose:              false,
		OutputBufferBytes:    1 << 20,
		DefaultSampling:      1,
		OverwriteSampling:    false,
		ExtensionDescriptors: DefaultExtensionDescriptors(),
	}
}

// LoadConfig reads and unmarshals a YAML configuration file, starting from
// Default() so a file that only overrides a few fields still produces a
// complete, usable Config.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}
