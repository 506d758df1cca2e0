package bundle

import (
	"fmt"
)

// ErrorCode classifies discovery and install failures.
type ErrorCode string

const (
	// ErrorCodePackageNotFound means the bundle location does not exist in the package.
	ErrorCodePackageNotFound ErrorCode = "PACKAGE_NOT_FOUND"
	// ErrorCodePackageUnreadable means the package could not be walked.
	ErrorCodePackageUnreadable ErrorCode = "PACKAGE_UNREADABLE"

	ErrorCodeResolveFailed  ErrorCode = "RESOLVE_FAILED"
	ErrorCodeReadFailed     ErrorCode = "READ_FAILED"
	ErrorCodeInstallRefused ErrorCode = "INSTALL_REFUSED"
)

// DiscoveryError is returned when the packaged bundle location cannot be opened or read.
// It is fatal to startup.
type DiscoveryError struct {
	Code ErrorCode
	Op   string
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("[%s] bundle discovery %s %q: %v", e.Code, e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// InstallError records why a single entry could not be installed. Install errors never
// abort the rest of the run.
type InstallError struct {
	Code     ErrorCode
	Entry    string
	Location string
	Err      error
}

func (e *InstallError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("[%s] install %s (%s): %v", e.Code, e.Entry, e.Location, e.Err)
	}
	return fmt.Sprintf("[%s] install %s: %v", e.Code, e.Entry, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *InstallError) Unwrap() error {
	return e.Err
}
