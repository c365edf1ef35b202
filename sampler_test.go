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

func newTestExporter() *ExporterState {
	return newExporterState(NewExporterKey(1, net.ParseIP("192.0.2.1")), net.ParseIP("192.0.2.1"), 1)
}

func TestInsertSamplerChanged(t *testing.T) {
	e := newTestExporter()
	if changed := e.InsertSampler(1, 0, 100); !changed {
		t.Error("expected first insert to report changed")
	}
	if changed := e.InsertSampler(1, 0, 100); changed {
		t.Error("expected re-announcing the same values to report unchanged")
	}
	if changed := e.InsertSampler(1, 0, 200); !changed {
		t.Error("expected a different interval to report changed")
	}
}

func TestSamplerByID(t *testing.T) {
	e := newTestExporter()
	if _, ok := e.SamplerByID(defaultSamplerId); ok {
		t.Fatal("expected no sampler before one is inserted")
	}
	e.InsertSampler(defaultSamplerId, 0, 10)
	s, ok := e.SamplerByID(defaultSamplerId)
	if !ok || s.Interval != 10 {
		t.Errorf("expected sampler interval 10, got %+v", s)
	}
}

func TestProcessOptionDataStandardSampling(t *testing.T) {
	e := newTestExporter()
	e.setSamplerOption(&SamplerOption{
		TableId:          400,
		Flags:            samplerFlagStandard,
		StandardInterval: fieldSlot{offset: 0, length: 4},
		RecordWidth:      4,
	})

	rec := []byte{0, 0, 0, 100}
	e.ProcessOptionData(400, rec)

	s, ok := e.SamplerByID(defaultSamplerId)
	if !ok {
		t.Fatal("expected standard sampler to be installed")
	}
	if s.Interval != 100 {
		t.Errorf("expected interval 100, got %d", s.Interval)
	}
}

func TestProcessOptionDataPerSampler(t *testing.T) {
	e := newTestExporter()
	e.setSamplerOption(&SamplerOption{
		TableId:         401,
		Flags:           samplerFlagPerSampler,
		SamplerId:       fieldSlot{offset: 0, length: 2},
		SamplerInterval: fieldSlot{offset: 2, length: 4},
		RecordWidth:     6,
	})

	rec := []byte{0, 5, 0, 0, 1, 0} // samplerId=5, interval=256
	e.ProcessOptionData(401, rec)

	s, ok := e.SamplerByID(5)
	if !ok {
		t.Fatal("expected sampler id 5 to be installed")
	}
	if s.Interval != 256 {
		t.Errorf("expected interval 256, got %d", s.Interval)
	}
}

func TestProcessOptionDataSystemInitTime(t *testing.T) {
	e := newTestExporter()
	e.setSystemInitTimeOption(&SystemInitTimeOption{TableId: 402, Value: fieldSlot{offset: 0, length: 8}, RecordWidth: 8})

	rec := []byte{0, 0, 0, 0, 0, 0, 0x03, 0xe8} // 1000
	e.ProcessOptionData(402, rec)

	if got := e.LastSystemUptimeMs(); got != 1000 {
		t.Errorf("expected LastSystemUptimeMs 1000, got %d", got)
	}
}

func TestReadUintFieldOutOfRange(t *testing.T) {
	if got := readUintField([]byte{1, 2}, fieldSlot{offset: 5, length: 4}); got != 0 {
		t.Errorf("expected 0 for an out-of-range slot, got %d", got)
	}
}
