// Package errors provides sentinel errors plus the ValidationError and
// OperationError types used for constructor and backend failures.
//
// ValidationError always unwraps to ErrInvalidConfiguration:
//
//	_, err := stage.Paginate("page", 0, 10)
//	if errors.Is(err, gferrors.ErrInvalidConfiguration) {
//		// bad arguments
//	}
package errors
