package cache

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/born-ml/tracegrad/internal/tensor"
)

// Signature builds the cache key for one call: the function's identity
// paired with each argument's structural signature. Composite arguments
// key on their concrete field structure, tensors on dtype and shape;
// calls sharing a key are assumed structurally interchangeable.
//
// Tensor fields inside composites also include their shapes. That is
// stricter than strictly necessary, but a stricter key only costs an
// extra cache entry, never a structurally wrong replay.
func Signature(fn any, args []tensor.Value) (string, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return "", fmt.Errorf("signature: %T is not a function", fn)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "0x%x", v.Pointer())
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(a.Signature())
	}
	return b.String(), nil
}
