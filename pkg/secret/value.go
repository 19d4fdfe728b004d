// Package secret holds short-lived credentials such as analysis tokens.
//
// A Value never prints its contents: String, GoString, fmt verbs, slog and
// JSON encoding all render a fixed placeholder. The plaintext is reachable
// only through Reveal, which keeps every consumer greppable.
package secret

import (
	"fmt"
	"log/slog"
	"sync"
)

const redacted = "[REDACTED]"

type Value struct {
	mu   sync.Mutex
	data []byte
}

// New copies b into a Value and zeroes the source slice.
func New(b []byte) *Value {
	data := make([]byte, len(b))
	copy(data, b)
	clear(b)
	return &Value{data: data}
}

func FromString(s string) *Value {
	return &Value{data: []byte(s)}
}

// Reveal returns a copy of the plaintext. The caller owns the copy and
// should clear it once consumed.
func (v *Value) Reveal() []byte {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}

func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.data)
}

func (v *Value) IsZero() bool {
	return v.Len() == 0
}

// Destroy zeroes the plaintext. Safe to call more than once.
func (v *Value) Destroy() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.data)
	v.data = nil
}

func (v *Value) String() string {
	return redacted
}

func (v *Value) GoString() string {
	return redacted
}

func (v *Value) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

func (v *Value) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

func (v *Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (v *Value) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
