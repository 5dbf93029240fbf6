package metric

import "github.com/lexus2k/pipeline/errors"

// ClassLabel maps err to the class label used on the errors_total metric,
// via the same classification the errors package uses for errors.Is checks.
func ClassLabel(err error) string {
	switch {
	case errors.IsFatal(err):
		return errors.ClassFatal.String()
	case errors.IsInvalid(err):
		return errors.ClassInvalid.String()
	case errors.IsTransient(err):
		return errors.ClassTransient.String()
	default:
		return "unknown"
	}
}
