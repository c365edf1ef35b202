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
	"testing"
)

func TestCheckSequenceNoGapOnFirstPacket(t *testing.T) {
	e := newTestExporter()
	if gap := e.checkSequence(100); gap {
		t.Error("expected no gap report before any flow has been decoded")
	}
}

func TestCheckSequenceDetectsGap(t *testing.T) {
	e := newTestExporter()
	e.checkSequence(100)
	e.FlowCount = 1

	if gap := e.checkSequence(105); !gap {
		t.Error("expected a gap when the observed sequence jumps ahead unexpectedly")
	}
	if e.SequenceFailures != 1 {
		t.Errorf("expected SequenceFailures to be 1, got %d", e.SequenceFailures)
	}
	e.ExpectedSequence++ // message 105 carried one data record
	if gap := e.checkSequence(106); gap {
		t.Error("expected no further gap once resynced to the observed sequence")
	}
}

func TestTemplateLastUsedCache(t *testing.T) {
	e := newTestExporter()
	tt := compileIPv4Template(t, 600)
	e.setTemplate(tt)

	got, ok := e.Template(600)
	if !ok || got.TemplateId != 600 {
		t.Fatalf("expected to find template 600, got %+v, %v", got, ok)
	}

	if _, ok := e.Template(601); ok {
		t.Error("expected no match for an unregistered template id")
	}
}

func TestWithdrawTemplate(t *testing.T) {
	e := newTestExporter()
	tt := compileIPv4Template(t, 602)
	e.setTemplate(tt)

	withdrawn := e.withdrawTemplate(602)
	if withdrawn == nil || withdrawn.TemplateId != 602 {
		t.Fatalf("expected withdrawTemplate to return the removed table, got %+v", withdrawn)
	}
	if _, ok := e.Template(602); ok {
		t.Error("expected template 602 to be gone after withdrawal")
	}
}

func TestWithdrawAllTemplates(t *testing.T) {
	e := newTestExporter()
	e.setTemplate(compileIPv4Template(t, 603))
	e.setTemplate(compileIPv4Template(t, 604))

	withdrawn := e.withdrawAllTemplates()
	if len(withdrawn) != 2 {
		t.Fatalf("expected 2 withdrawn templates, got %d", len(withdrawn))
	}
	if _, ok := e.Template(603); ok {
		t.Error("expected template 603 to be gone")
	}
	if _, ok := e.Template(604); ok {
		t.Error("expected template 604 to be gone")
	}
}

func TestRegistryGetAllocatesOncePerKey(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	key := NewExporterKey(7, net.ParseIP("198.51.100.1"))

	first := r.Get(ctx, key, net.ParseIP("198.51.100.1"))
	second := r.Get(ctx, key, net.ParseIP("198.51.100.1"))
	if first != second {
		t.Error("expected repeated Get calls for the same key to return the same exporter")
	}

	other := r.Get(ctx, NewExporterKey(8, net.ParseIP("198.51.100.1")), net.ParseIP("198.51.100.1"))
	if other == first {
		t.Error("expected a different observation domain id to allocate a distinct exporter")
	}

	if len(r.All()) != 2 {
		t.Errorf("expected 2 exporters in the registry, got %d", len(r.All()))
	}
}
