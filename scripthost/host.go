package scripthost

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/scene-bridge/errors"
)

// ModuleName is the import module scenes link against.
const ModuleName = "crdt"

const errResult = -1

// Boundary is the bridge as seen by a scene. *bridge.Bridge implements it.
type Boundary interface {
	SendToRenderer(data []byte) []byte
	GetState() []byte
	Release(buf []byte)
}

// Config holds configuration for host creation.
type Config struct {
	// MemoryLimitPages caps each scene's memory in 64KB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 for scenes built with a
	// WASI toolchain.
	EnableWASI bool
}

// Host owns a wazero runtime and the scenes instantiated in it.
type Host struct {
	runtime wazero.Runtime
	scenes  map[string]*Scene
	mu      sync.Mutex
}

// New creates a host with the crdt module registered. cfg may be nil.
func New(ctx context.Context, cfg *Config) (*Host, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	h := &Host{
		runtime: rt,
		scenes:  make(map[string]*Scene),
	}

	if cfg != nil && cfg.EnableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Registration(errors.PhaseHost, "wasi_snapshot_preview1", err)
		}
	}
	if err := h.instantiateHostModule(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return h, nil
}

func (h *Host) instantiateHostModule(ctx context.Context) error {
	i32 := api.ValueTypeI32
	_, err := h.runtime.NewHostModuleBuilder(ModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.send), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		WithParameterNames("ptr", "len").
		Export("send").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.getState), nil, []api.ValueType{i32}).
		Export("get_state").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.readResponse), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		WithParameterNames("ptr", "cap").
		Export("read_response").
		Instantiate(ctx)
	if err != nil {
		return errors.Registration(errors.PhaseHost, "host module "+ModuleName, err)
	}
	return nil
}

// Instantiate compiles wasm and instantiates it as a scene named name whose
// boundary calls go to b. Names must be unique among open scenes.
func (h *Host) Instantiate(ctx context.Context, name string, wasm []byte, b Boundary) (*Scene, error) {
	if name == "" || name == ModuleName {
		return nil, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("invalid scene name %q", name))
	}
	if b == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "nil boundary")
	}

	s := &Scene{host: h, name: name, boundary: b}
	h.mu.Lock()
	if h.scenes == nil {
		h.mu.Unlock()
		return nil, errors.InvalidInput(errors.PhaseHost, "host closed")
	}
	if _, dup := h.scenes[name]; dup {
		h.mu.Unlock()
		return nil, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("scene %q already exists", name))
	}
	// Registered before instantiation so a start function can already sync.
	h.scenes[name] = s
	h.mu.Unlock()

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		h.forget(name)
		return nil, errors.Instantiation(err)
	}
	mod, err := h.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		h.forget(name)
		return nil, errors.Instantiation(err)
	}
	s.compiled = compiled
	s.mod = mod

	Logger().Debug("scene instantiated", zap.String("scene", name))
	return s, nil
}

// Scene returns the open scene with the given name.
func (h *Host) Scene(name string) (*Scene, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.scenes[name]
	return s, ok
}

// Close closes every scene and the runtime.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	scenes := h.scenes
	h.scenes = nil
	h.mu.Unlock()

	for _, s := range scenes {
		s.releasePending()
	}
	return h.runtime.Close(ctx)
}

func (h *Host) forget(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.scenes, name)
}

func (h *Host) sceneFor(mod api.Module) *Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scenes[mod.Name()]
}

func (h *Host) send(_ context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	size := api.DecodeU32(stack[1])

	s := h.sceneFor(mod)
	mem := mod.Memory()
	if s == nil || mem == nil {
		stack[0] = api.EncodeI32(errResult)
		return
	}
	data, ok := mem.Read(ptr, size)
	if !ok {
		Logger().Debug("send out of bounds",
			zap.String("scene", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", size))
		stack[0] = api.EncodeI32(errResult)
		return
	}
	stack[0] = api.EncodeI32(int32(s.stash(s.boundary.SendToRenderer(data))))
}

func (h *Host) getState(_ context.Context, mod api.Module, stack []uint64) {
	s := h.sceneFor(mod)
	if s == nil {
		stack[0] = api.EncodeI32(errResult)
		return
	}
	stack[0] = api.EncodeI32(int32(s.stash(s.boundary.GetState())))
}

func (h *Host) readResponse(_ context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	capacity := api.DecodeU32(stack[1])

	s := h.sceneFor(mod)
	mem := mod.Memory()
	if s == nil || mem == nil {
		stack[0] = api.EncodeI32(errResult)
		return
	}
	n, ok := s.deliver(mem, ptr, capacity)
	if !ok {
		stack[0] = api.EncodeI32(errResult)
		return
	}
	stack[0] = api.EncodeI32(int32(n))
}
