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
	"bytes"
	"testing"
)

func TestSessionReceiveMessage(t *testing.T) {
	msg := []byte{0x00, 0x0a, 0x00, 0x14, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1, 0xde, 0xad, 0xbe, 0xef}
	sess := newSession(bytes.NewReader(msg))

	got, err := sess.receiveMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("expected reassembled message to equal input, got %x", got)
	}
}

func TestSessionReceiveMessageMultiple(t *testing.T) {
	one := []byte{0x00, 0x0a, 0x00, 0x10, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1}
	two := []byte{0x00, 0x0a, 0x00, 0x10, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 2}
	stream := append(append([]byte{}, one...), two...)
	sess := newSession(bytes.NewReader(stream))

	first, err := sess.receiveMessage()
	if err != nil {
		t.Fatalf("unexpected error on first message: %v", err)
	}
	if !bytes.Equal(first, one) {
		t.Errorf("expected first message %x, got %x", one, first)
	}

	second, err := sess.receiveMessage()
	if err != nil {
		t.Fatalf("unexpected error on second message: %v", err)
	}
	if !bytes.Equal(second, two) {
		t.Errorf("expected second message %x, got %x", two, second)
	}
}

func TestSessionReceiveMessageTooShort(t *testing.T) {
	msg := []byte{0x00, 0x0a, 0x00, 0x08, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1}
	sess := newSession(bytes.NewReader(msg))

	if _, err := sess.receiveMessage(); err != ErrMessageTooShort {
		t.Fatalf("expected ErrMessageTooShort, got %v", err)
	}
}
