package autodiff

import (
	"go.uber.org/zap"

	"github.com/born-ml/tracegrad/internal/tensor"
	"github.com/born-ml/tracegrad/internal/trace"
)

// CheckShapes compares every variable in Derivs against its adjoint and
// logs a warning per shape mismatch. Purely advisory: it never mutates
// the trace and never fails. Pairs where either side is composite are
// skipped; composites carry gradients per field path, not as a whole.
func CheckShapes(tr *trace.Trace, log *zap.Logger) {
	for varID, adjID := range tr.Derivs {
		varVal, err := tr.Value(varID)
		if err != nil {
			continue
		}
		adjVal, err := tr.Value(adjID)
		if err != nil {
			continue
		}

		varShape, ok := tensor.ShapeOf(varVal)
		if !ok {
			continue
		}
		adjShape, ok := tensor.ShapeOf(adjVal)
		if !ok {
			continue
		}

		if !varShape.Equal(adjShape) {
			log.Warn("gradient shape mismatch",
				zap.String("trace", tr.UUID().String()),
				zap.Int("variable", int(varID)),
				zap.String("variable_shape", varShape.String()),
				zap.Int("adjoint", int(adjID)),
				zap.String("adjoint_shape", adjShape.String()))
		}
	}
}
