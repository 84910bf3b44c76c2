package ioqueue

type postedCompletion struct {
	rec  *keyRecord
	op   *opRecord
	kind int32
	n    int
	err  error
}

// PostCompletion takes the operation pending on tok off the key and makes a
// later Poll deliver it with exactly n and err. The operation itself is not
// stopped in the OS. This is how an operation is cancelled before the key is
// unregistered.
func (k Key) PostCompletion(tok Token, n int, err error) error {
	rec, op, resolveErr := k.resolve(tok)
	if resolveErr != nil {
		return newOpError(errMetaOpPost, resolveErr)
	}
	rec.mu.Lock()
	kind := op.state.Load()
	if kind == opIdle || op.key != rec || op.posted || !rec.unlink(op) {
		rec.mu.Unlock()
		return newOpError(errMetaOpPost, ErrNotPending)
	}
	op.posted = true
	rec.posted++
	rec.mu.Unlock()

	q := k.queue
	q.lock.Lock()
	q.posted.Add(postedCompletion{rec: rec, op: op, kind: kind, n: n, err: err})
	q.postedLen.Store(int32(q.posted.Length()))
	q.lock.Unlock()

	if wakeErr := q.backend.wakeup(); wakeErr != nil {
		q.logger.WithError(wakeErr).Warn("ioqueue: wakeup failed")
	}
	return nil
}

// drainPosted delivers up to MaxEvents posted completions.
func (q *Queue) drainPosted() (n int) {
	if q.postedLen.Load() == 0 {
		return
	}
	q.lock.Lock()
	count := q.posted.Length()
	if count > q.options.MaxEvents {
		count = q.options.MaxEvents
	}
	batch := make([]postedCompletion, count)
	for i := 0; i < count; i++ {
		batch[i] = q.posted.Remove().(postedCompletion)
	}
	q.postedLen.Store(int32(q.posted.Length()))
	q.lock.Unlock()

	for _, p := range batch {
		key := Key{queue: q, handle: p.rec.handle}
		tok := p.op.token(q)
		var c Completion
		switch p.kind {
		case opRecv, opRecvFrom:
			c = ReadResult{Key: key, Token: tok, N: p.n, Err: p.err}
			break
		case opSend, opSendTo:
			c = WriteResult{Key: key, Token: tok, N: p.n, Err: p.err}
			break
		default:
			c = AcceptResult{Key: key, Token: tok, Fd: -1, Err: p.err}
			break
		}
		p.rec.mu.Lock()
		p.op.reset()
		p.rec.posted--
		p.rec.mu.Unlock()
		q.dispatch(p.rec, c)
		n++
	}
	return
}
