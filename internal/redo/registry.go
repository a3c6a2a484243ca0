package redo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// Factory returns a zero operation ready for DeserializeData.
type Factory func() Operation

type registration struct {
	name    string
	factory Factory
}

// Registry maps op codes to factories. Readers need one to decode records.
type Registry struct {
	mu   sync.RWMutex
	regs map[OpCode]registration
}

// NewRegistry returns a registry with the control records installed.
func NewRegistry() *Registry {
	r := &Registry{regs: make(map[OpCode]registration)}
	r.Register(OpCommitTxn, "CommitTxn", func() Operation { return &CommitTxn{} })
	r.Register(OpAbortTxn, "AbortTxn", func() Operation { return &AbortTxn{} })
	r.Register(OpCheckpoint, "Checkpoint", func() Operation { return &Checkpoint{} })
	return r
}

// Register installs a factory. Registering a code twice is a programming
// error and panics.
func (r *Registry) Register(code OpCode, name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.regs[code]; ok {
		panic(fmt.Sprintf("redo: op code %d registered twice (%s, %s)", code, prev.name, name))
	}
	r.regs[code] = registration{name: name, factory: f}
}

// New returns a fresh operation for code.
func (r *Registry) New(code OpCode) (Operation, error) {
	r.mu.RLock()
	reg, ok := r.regs[code]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownOpCode, "code %d", code)
	}
	return reg.factory(), nil
}

// Name returns the registered name for code.
func (r *Registry) Name(code OpCode) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.regs[code]; ok {
		return reg.name
	}
	return fmt.Sprintf("Op(%d)", code)
}

// Codes returns all registered codes in ascending order.
func (r *Registry) Codes() []OpCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]OpCode, 0, len(r.regs))
	for c := range r.regs {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
