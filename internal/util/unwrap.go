package util

// Unwrap returns error wrapped by stackerr, or err itself.
func Unwrap(err error) error {
	type hasUnderlying interface {
		Underlying() error
	}
	if eh, ok := err.(hasUnderlying); ok {
		return eh.Underlying()
	}
	return err
}

// IsCause reports whether err or error wrapped by it is target.
func IsCause(err, target error) bool {
	if err == nil {
		return false
	}
	return err == target || Unwrap(err) == target
}
