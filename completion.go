package ioqueue

import "net"

// Completion is one of ReadResult, WriteResult, AcceptResult or ConnectResult.
type Completion interface {
	completion()
}

// ReadResult finishes Recv and RecvFrom. N is zero on end of stream.
type ReadResult struct {
	Key   Key
	Token Token
	N     int
	From  net.Addr
	Err   error
}

type WriteResult struct {
	Key   Key
	Token Token
	N     int
	Err   error
}

type AcceptResult struct {
	Key    Key
	Token  Token
	Fd     int
	Local  net.Addr
	Remote net.Addr
	Err    error
}

// ConnectResult carries no token: a key has at most one connect outstanding.
type ConnectResult struct {
	Key Key
	Err error
}

func (ReadResult) completion()    {}
func (WriteResult) completion()   {}
func (AcceptResult) completion()  {}
func (ConnectResult) completion() {}

// Handler receives completions from whichever goroutine ran Poll.
type Handler interface {
	Handle(c Completion)
}

type HandlerFunc func(c Completion)

func (fn HandlerFunc) Handle(c Completion) {
	fn(c)
}

// Callbacks routes each completion kind to its own function. Nil slots drop
// that kind silently.
type Callbacks struct {
	OnReadComplete    func(key Key, tok Token, n int, err error)
	OnWriteComplete   func(key Key, tok Token, n int, err error)
	OnAcceptComplete  func(key Key, tok Token, fd int, err error)
	OnConnectComplete func(key Key, err error)
}

func (cb *Callbacks) Handle(c Completion) {
	switch r := c.(type) {
	case ReadResult:
		if cb.OnReadComplete != nil {
			cb.OnReadComplete(r.Key, r.Token, r.N, r.Err)
		}
		break
	case WriteResult:
		if cb.OnWriteComplete != nil {
			cb.OnWriteComplete(r.Key, r.Token, r.N, r.Err)
		}
		break
	case AcceptResult:
		if cb.OnAcceptComplete != nil {
			cb.OnAcceptComplete(r.Key, r.Token, r.Fd, r.Err)
		}
		break
	case ConnectResult:
		if cb.OnConnectComplete != nil {
			cb.OnConnectComplete(r.Key, r.Err)
		}
		break
	}
}
