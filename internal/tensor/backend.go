package tensor

// Kernel computes one named operation over already-materialized values.
// Kernels are broadcast-aware and promote mixed dtypes to the wider type.
type Kernel func(args []Value) (Value, error)

// Backend is the kernel table a trace executes Call operations against.
//
// Implementations:
//   - cpu: pure Go broadcast kernels (internal/backend/cpu)
type Backend interface {
	// Lookup resolves a kernel by function name.
	Lookup(name string) (Kernel, bool)

	// Register installs or replaces a kernel under the given name.
	Register(name string, k Kernel)

	// Name returns the backend name.
	Name() string
}
