package log

import (
	"github.com/cockroachdb/errors"
)

// extractStacktrace returns the stack recorded by cockroachdb/errors on the
// outermost layer of err.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// rootCause returns the innermost error message when it differs from the
// outer one.
func rootCause(err error) string {
	root := errors.UnwrapAll(err)
	if root == nil || root.Error() == err.Error() {
		return ""
	}
	return root.Error()
}
