package aof

import "github.com/facebookgo/stackerr"

type transaction struct{ *AOF }

func (t *transaction) Write(p []byte) (n int, err error) {
	if t.closed {
		return 0, stackerr.Wrap(ErrClosed)
	}
	n, err = t.writer.Write(p)
	err = stackerr.Wrap(err)
	t.size += int64(n)
	return
}

func (t *transaction) Close() (err error) {
	if t.AOF == nil {
		return
	}
	if t.isSyncEveryTransaction() && !t.closed {
		err = t.sync()
	}
	if t.config.RotateSize > 0 && t.size > t.rotateAt && t.rotateDone == nil && !t.closing {
		t.startRotate()
	}
	t.lock.Unlock()
	t.AOF = nil
	return
}
