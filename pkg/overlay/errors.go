package overlay

import "fmt"

// PathSecurityError reports an override path that would resolve outside the
// overlay root. It is returned before any filesystem mutation takes place.
type PathSecurityError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("invalid override path %q: %s", e.Path, e.Reason)
}
