package mock

import (
	"net"

	"github.com/miekg/dns"
)

var (
	defaultLocal  = NewNetAddr("udp", "127.0.0.1:53")
	defaultRemote = NewNetAddr("udp", "127.0.0.2:4053")
)

// ResponseWriter is a dns.ResponseWriter which captures the response message. Local and
// Remote may be set to vary the apparent socket addresses, otherwise loopback defaults
// are used.
type ResponseWriter struct {
	Local  net.Addr
	Remote net.Addr

	m *dns.Msg // Saved by WriteMsg
}

// NewResponseWriter returns a ResponseWriter with the supplied addresses, e.g.
// "10.1.2.3:53" and "10.1.2.99:34000".
func NewResponseWriter(network, local, remote string) *ResponseWriter {
	return &ResponseWriter{Local: NewNetAddr(network, local), Remote: NewNetAddr(network, remote)}
}

func (t *ResponseWriter) Reset() {
	t.m = nil
}

// Get returns the last response, if any then clears the response
func (t *ResponseWriter) Get() *dns.Msg {
	m := t.m
	t.m = nil
	return m
}

func (t *ResponseWriter) LocalAddr() net.Addr {
	if t.Local != nil {
		return t.Local
	}
	return defaultLocal
}

func (t *ResponseWriter) RemoteAddr() net.Addr {
	if t.Remote != nil {
		return t.Remote
	}
	return defaultRemote
}

func (t *ResponseWriter) WriteMsg(m *dns.Msg) (e error) {
	t.m = m

	return
}

func (t *ResponseWriter) Write(b []byte) (l int, e error) {
	panic("Don't expect Write() to be called")
}
func (t *ResponseWriter) Close() (e error) {
	return
}
func (t *ResponseWriter) TsigStatus() (e error) {
	return
}
func (t *ResponseWriter) TsigTimersOnly(bool) {
}
func (t *ResponseWriter) Hijack() {
}
