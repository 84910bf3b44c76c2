//go:build unix && !linux

package process

import "runtime"

// PinThread only locks the goroutine to its thread; CPU affinity is not
// available here.
func PinThread(_ int) (undo func(), err error) {
	runtime.LockOSThread()
	undo = runtime.UnlockOSThread
	return
}
