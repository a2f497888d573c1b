package cmderr

// Wrapper for a pipeline-generated error vs a CLI parsing error.
// Used to determine whether to print usage message on error.
type PastaErr struct {
	Err error
}

func (a PastaErr) Error() string {
	return a.Err.Error()
}

// github.com/pkg/errors causer interface
func (a PastaErr) Cause() error {
	return a.Err
}

// github.com/pkg/errors Unwrap interface
func (a PastaErr) Unwrap() error {
	return a.Err
}
