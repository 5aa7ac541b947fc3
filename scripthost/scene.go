package scripthost

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/scene-bridge/errors"
)

// Scene is one instantiated scene module.
type Scene struct {
	host     *Host
	mod      api.Module
	compiled wazero.CompiledModule
	boundary Boundary
	name     string
	pending  []byte
	mu       sync.Mutex
}

// Name returns the scene's module name.
func (s *Scene) Name() string { return s.name }

// Module returns the underlying wazero module.
func (s *Scene) Module() api.Module { return s.mod }

// Pending returns the size of the response waiting for read_response.
func (s *Scene) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Call invokes an exported scene function.
func (s *Scene) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := s.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindPanic, err, "call "+name)
	}
	return results, nil
}

// Close closes the scene module and drops its pending response.
func (s *Scene) Close(ctx context.Context) error {
	s.host.forget(s.name)
	s.releasePending()

	var errs []error
	if s.mod != nil {
		if err := s.mod.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.compiled != nil {
		if err := s.compiled.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stash keeps resp for read_response, releasing any unread response.
func (s *Scene) stash(resp []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.boundary.Release(s.pending)
	}
	s.pending = resp
	return len(resp)
}

func (s *Scene) deliver(mem api.Memory, ptr, capacity uint32) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	if uint32(n) > capacity {
		return 0, false
	}
	if n > 0 && !mem.Write(ptr, s.pending) {
		return 0, false
	}
	if s.pending != nil {
		s.boundary.Release(s.pending)
		s.pending = nil
	}
	return n, true
}

func (s *Scene) releasePending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.boundary.Release(s.pending)
		s.pending = nil
	}
}
