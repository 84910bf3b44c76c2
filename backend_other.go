//go:build unix && !linux

package ioqueue

import (
	"github.com/brickingsoft/errors"
)

func openDefaultBackend(maxDescriptors int) (backend, error) {
	return openPollBackend(maxDescriptors)
}

func openEPollBackend(_ int) (backend, error) {
	return nil, errors.From(ErrInvalidArgument, errors.WithMeta("backend", string(BackendEPoll)))
}
