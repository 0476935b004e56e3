package model

import (
	"sync"

	"github.com/wippyai/protomodel/wire"
)

const (
	// Pool limits to prevent memory bloat
	poolMaxCap  = 64 << 10 // max retained buffer bytes
	poolInitCap = 256
)

// writer pool for top-level serialization
var writerPool = sync.Pool{
	New: func() any {
		return wire.NewWriter(make([]byte, 0, poolInitCap))
	},
}

func getWriter() *wire.Writer {
	w := writerPool.Get().(*wire.Writer)
	w.Reset()
	return w
}

func putWriter(w *wire.Writer) {
	if w == nil || cap(w.Bytes()) > poolMaxCap {
		return // reject oversized
	}
	w.Reset()
	writerPool.Put(w)
}
