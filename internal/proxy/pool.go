package proxy

import (
	"net/http/httputil"
	"sync"
)

// bufferPool recycles the copy buffers of the forward proxy's ReverseProxy.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) httputil.BufferPool {
	bp := &bufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *bufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

func (p *bufferPool) Put(b []byte) {
	p.pool.Put(&b)
}
