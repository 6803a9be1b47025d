// Package main provides the tracegrad CLI.
package main

import (
	"fmt"
	"os"

	"github.com/born-ml/tracegrad/grad"
	"github.com/born-ml/tracegrad/tensor"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("tracegrad %s\n", version)
		return
	}

	fmt.Println("tracegrad - trace-based reverse-mode differentiation for Go")
	fmt.Printf("Version: %s\n\n", version)

	// Quick demo: d/dx x*x at x=3.
	square := func(tc *grad.Tracer, args []*grad.Var) *grad.Var {
		x := args[0]
		return x.Mul(x)
	}
	value, grads, err := grad.Grad(square, tensor.Scalar(3.0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	dx, err := grads.Float(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	y, err := value.(*tensor.RawTensor).Item()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("f(x) = x*x at x=3: value=%.1f gradient=%.1f\n", y, dx)
}
