package ioqueue

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrPending           = errors.Define("operation is pending")
	ErrInvalidArgument   = errors.Define("invalid argument")
	ErrCreate            = errors.Define("create failed")
	ErrClosed            = errors.Define("queue is closed")
	ErrTooManyKeys       = errors.Define("too many keys")
	ErrDuplicateFd       = errors.Define("descriptor is already registered")
	ErrStaleKey          = errors.Define("stale key")
	ErrTooManyTokens     = errors.Define("too many tokens")
	ErrStaleToken        = errors.Define("stale token")
	ErrTokenBusy         = errors.Define("token has an operation in flight")
	ErrNotPending        = errors.Define("token has no pending operation")
	ErrOperationsPending = errors.Define("key has operations in flight")
	ErrTooManyConnects   = errors.Define("too many pending connections")
	ErrConnectInProgress = errors.Define("connect is already in progress")
	ErrKeysAlive         = errors.Define("queue still has registered keys")
	ErrLockInUse         = errors.Define("lock can not be replaced after registration")
	ErrCancelled         = errors.Define("operation cancelled")
)

// IsPending reports whether err only means the operation went asynchronous.
func IsPending(err error) bool {
	return errors.Is(err, ErrPending)
}

func IsStale(err error) bool {
	return errors.Is(err, ErrStaleKey) || errors.Is(err, ErrStaleToken)
}

func IsTooManyConnects(err error) bool {
	return errors.Is(err, ErrTooManyConnects)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "ioqueue"
)

const (
	errMetaOpKey        = "op"
	errMetaOpCreate     = "create"
	errMetaOpClose      = "close"
	errMetaOpRegister   = "register"
	errMetaOpUnregister = "unregister"
	errMetaOpRecv       = "receive"
	errMetaOpRecvFrom   = "receive_from"
	errMetaOpSend       = "send"
	errMetaOpSendTo     = "send_to"
	errMetaOpAccept     = "accept"
	errMetaOpConnect    = "connect"
	errMetaOpPost       = "post_completion"
	errMetaOpPoll       = "poll"
)

func newOpError(op string, cause error) error {
	return errors.New(
		op+" failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}
