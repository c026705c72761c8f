package session

import (
	"sync"

	"github.com/go-faster/errors"
)

// ErrNoValue is returned by Slot.Load when the key has never been written.
var ErrNoValue = errors.New("slot value not set")

// Slot is a durable scalar key-value slot scoped to one browser session.
// It survives reloads but is never shared across devices.
type Slot interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
}

var _ Slot = (*Memory)(nil)

// Memory is an in-process Slot.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory returns an empty in-process slot.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNoValue
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Save(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
	return nil
}

type scoped struct {
	slot   Slot
	prefix string
}

// Scoped namespaces every key of slot under prefix, so one backing store can
// hold the slots of many sessions.
func Scoped(slot Slot, prefix string) Slot {
	return &scoped{slot: slot, prefix: prefix + ":"}
}

func (s *scoped) Load(key string) ([]byte, error) {
	return s.slot.Load(s.prefix + key)
}

func (s *scoped) Save(key string, value []byte) error {
	return s.slot.Save(s.prefix+key, value)
}
