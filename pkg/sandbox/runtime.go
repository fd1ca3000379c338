package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/warden-run/warden/pkg/decision"
)

// These are the WASM export names the compiled module exposes; exportEval
// is the single aggregation entrypoint. The module's eval/malloc/free
// trio mirrors the conventional OPA-to-WASM calling convention:
// the host writes the JSON input into linear memory via malloc, calls
// eval with that pointer, and reads the JSON result back out.
const (
	exportMalloc = "warden_malloc"
	exportFree   = "warden_free"
	exportEval   = "warden_eval"
	exportMemory = "memory"
)

// Module is a compiled scope corpus, ready to be instantiated. Compiled
// modules are process-global and immutable after startup; Instantiate
// may be called repeatedly (e.g. after a reload) without recompiling.
type Module struct {
	runtime wazero.Runtime
	compiled wazero.CompiledModule
}

// Compile wraps the runtime's WASM compilation step (distinct from the
// external rule compiler: this turns already-compiled wasm bytes into a
// wazero-internal compiled form ready for fast repeated instantiation).
func Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: compile module: %w", err)
	}

	return &Module{runtime: rt, compiled: compiled}, nil
}

// Close releases the underlying wazero runtime and every instance
// derived from it.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// Instance is one instantiation of a scope's compiled module. Instances
// are not safe for concurrent calls; Evaluate serializes calls on each
// instance with the instance's own mutex (typical hold time under the
// per-request evaluation budget).
type Instance struct {
	mod api.Module
	mu  sync.Mutex
}

// Instantiate creates a fresh, isolated instance: no filesystem, no
// network, no host syscalls beyond WASI clock/random.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	config := wazero.NewModuleConfig().WithStartFunctions("_initialize")
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, config)
	if err != nil {
		return nil, fmt.Errorf("sandbox: instantiate: %w", err)
	}
	return &Instance{mod: mod}, nil
}

// Close releases this instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// Evaluate serializes input to JSON, writes it into the instance's
// linear memory, invokes the single aggregation entrypoint, and
// deserializes the resulting DecisionSet. Any failure here is an
// "evaluation error" per §7.7: the caller maps it to a fail-closed deny.
func (i *Instance) Evaluate(ctx context.Context, input any) (decision.Set, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	payload, err := json.Marshal(input)
	if err != nil {
		return decision.Set{}, fmt.Errorf("sandbox: marshal input: %w", err)
	}

	malloc := i.mod.ExportedFunction(exportMalloc)
	free := i.mod.ExportedFunction(exportFree)
	eval := i.mod.ExportedFunction(exportEval)
	mem := i.mod.Memory()
	if malloc == nil || eval == nil || mem == nil {
		return decision.Set{}, fmt.Errorf("sandbox: module missing required exports (%s/%s/%s)", exportMalloc, exportEval, exportMemory)
	}

	allocResults, err := malloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return decision.Set{}, fmt.Errorf("sandbox: malloc: %w", err)
	}
	inPtr := uint32(allocResults[0])
	if free != nil {
		defer free.Call(ctx, uint64(inPtr))
	}

	if !mem.Write(inPtr, payload) {
		return decision.Set{}, fmt.Errorf("sandbox: write input to linear memory out of bounds")
	}

	results, err := eval.Call(ctx, uint64(inPtr), uint64(len(payload)))
	if err != nil {
		return decision.Set{}, fmt.Errorf("sandbox: eval: %w", err)
	}
	if len(results) < 2 {
		return decision.Set{}, fmt.Errorf("sandbox: eval returned %d results, want (ptr, len)", len(results))
	}
	outPtr, outLen := uint32(results[0]), uint32(results[1])

	out, ok := mem.Read(outPtr, outLen)
	if !ok {
		return decision.Set{}, fmt.Errorf("sandbox: read output from linear memory out of bounds")
	}
	if free != nil {
		defer free.Call(ctx, uint64(outPtr))
	}

	var set decision.Set
	if err := json.Unmarshal(out, &set); err != nil {
		return decision.Set{}, fmt.Errorf("sandbox: unmarshal DecisionSet: %w", err)
	}
	return set, nil
}
