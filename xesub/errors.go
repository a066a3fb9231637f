package xesub

import (
	"github.com/cockroachdb/errors"
)

// The four failure kinds this core distinguishes. Every error returned by the
// package is marked with exactly one of them, so callers classify with
// errors.Is and decide whether a retry can ever help.
var (
	// ErrSetup covers device open and enumeration failures. Always fatal:
	// the device is unusable.
	ErrSetup = errors.New("device setup failed")

	// ErrResource covers allocation and bind failures. Fatal to the current
	// pipeline; a caller may build a new one with adjusted size or placement.
	ErrResource = errors.New("resource allocation or bind failed")

	// ErrSubmission covers queue creation and exec rejection. Fatal to the
	// pipeline; the queue is not reusable.
	ErrSubmission = errors.New("submission rejected")

	// ErrSync covers fence waits that did not end in normal completion.
	ErrSync = errors.New("fence synchronization failed")

	// ErrTimeout is additionally attached to ErrSync errors caused by an
	// elapsed wait timeout, as opposed to a driver-reported fault. A timeout
	// may be retried; a fault may not.
	ErrTimeout = errors.New("fence wait timed out")

	// ErrVmIndeterminate reports that a bind batch failed and the VM's
	// page-table state can no longer be trusted. The VM must be abandoned.
	ErrVmIndeterminate = errors.New("vm binding state is indeterminate after a failed bind batch")
)

// IsTimeout reports whether err is a retryable wait timeout rather than a
// fault.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
