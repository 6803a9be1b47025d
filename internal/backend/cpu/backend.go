// Package cpu implements the pure-Go kernel table that trace operations
// execute against. Every kernel is broadcast-aware in the NumPy sense and
// promotes mixed float32/float64 operands to float64.
package cpu

import (
	"fmt"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// Backend is the CPU kernel table. The zero value is not usable; New
// returns a table pre-populated with the default kernels.
type Backend struct {
	kernels map[string]tensor.Kernel
}

// New creates a CPU backend with the default kernel set registered.
func New() *Backend {
	b := &Backend{kernels: make(map[string]tensor.Kernel)}
	b.registerDefaults()
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "CPU"
}

// Lookup resolves a kernel by function name.
func (b *Backend) Lookup(name string) (tensor.Kernel, bool) {
	k, ok := b.kernels[name]
	return k, ok
}

// Register installs or replaces a kernel under the given name.
func (b *Backend) Register(name string, k tensor.Kernel) {
	b.kernels[name] = k
}

func (b *Backend) registerDefaults() {
	// Binary element-wise arithmetic.
	b.Register("add", binaryKernel("add", func(x, y float64) float64 { return x + y }))
	b.Register("sub", binaryKernel("sub", func(x, y float64) float64 { return x - y }))
	b.Register("mul", binaryKernel("mul", func(x, y float64) float64 { return x * y }))
	b.Register("div", binaryKernel("div", func(x, y float64) float64 { return x / y }))

	// Unary element-wise math.
	for name, f := range unaryTable {
		b.Register(name, unaryKernel(name, f))
	}

	// Identity passes its argument through untouched (modulo cloning).
	b.Register("identity", identityKernel)

	// Reductions and gradient shape plumbing.
	b.Register("sum", sumKernel)
	b.Register("ones_like", onesLikeKernel)
	b.Register("expand_like", expandLikeKernel)
	b.Register("unbroadcast", unbroadcastKernel)
}

// tensorArg extracts a tensor-valued argument or reports a usable error.
func tensorArg(op string, args []tensor.Value, i int) (*tensor.RawTensor, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%s: missing argument %d", op, i)
	}
	t, ok := args[i].(*tensor.RawTensor)
	if !ok {
		return nil, fmt.Errorf("%s: argument %d is composite, want tensor", op, i)
	}
	return t, nil
}

func identityKernel(args []tensor.Value) (tensor.Value, error) {
	t, err := tensorArg("identity", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("identity: got %d arguments, want 1", len(args))
	}
	return t.Clone(), nil
}
