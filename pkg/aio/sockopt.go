package aio

type sockopt int

const (
	optNoDelay sockopt = iota
	optKeepAlive
	optSndBuf
	optRcvBuf
)

var socketOptions = map[string]sockopt{
	"-nodelay":   optNoDelay,
	"-keepalive": optKeepAlive,
	"-sndbuf":    optSndBuf,
	"-rcvbuf":    optRcvBuf,
}
