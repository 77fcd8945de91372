package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is matched by every error raised when a stage receives a
// tensor whose dimensions do not fit its fixed weights.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError names the stage that rejected an input and the shapes involved.
type ShapeError struct {
	Stage string
	Want  Shape
	Got   Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v: want %v, got %v", e.Stage, ErrShapeMismatch, e.Want, e.Got)
}

// Is lets errors.Is(err, ErrShapeMismatch) match a *ShapeError.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}
