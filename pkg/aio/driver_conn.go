package aio

import (
	"context"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"
)

// ConnDriver serves stream channels: dialed TCP clients, accepted
// connections and pipes wrapping any io.ReadWriteCloser.
type ConnDriver struct {
	UnimplementedDriver
	kind    string
	network string
	address string
	dialer  net.Dialer
	rwc     io.ReadWriteCloser
	cancel  context.CancelFunc
	closed  bool
}

// NewTCPDriver returns a client driver; the connection is made by
// Channel.Connect.
func NewTCPDriver(network string, address string, timeout time.Duration) *ConnDriver {
	return &ConnDriver{
		kind:    "tcp",
		network: network,
		address: address,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// NewConnDriver wraps an established connection.
func NewConnDriver(conn net.Conn) *ConnDriver {
	return &ConnDriver{
		kind:    "tcp",
		network: conn.LocalAddr().Network(),
		rwc:     conn,
	}
}

func NewPipeDriver(rwc io.ReadWriteCloser) *ConnDriver {
	return &ConnDriver{
		kind: "pipe",
		rwc:  rwc,
	}
}

func (d *ConnDriver) Kind() string {
	return d.kind
}

func (d *ConnDriver) Read(ch *Channel, buf *Buffer) error {
	rwc := d.rwc
	if rwc == nil || d.closed {
		return ErrClosed
	}
	p := buf.data.Free()
	return ch.subsystem.Submit(buf, func() (int, error) {
		return rwc.Read(p)
	})
}

func (d *ConnDriver) Write(ch *Channel, buf *Buffer) error {
	rwc := d.rwc
	if rwc == nil || d.closed {
		return ErrClosed
	}
	p := buf.data.Bytes()
	return ch.subsystem.Submit(buf, func() (int, error) {
		return rwc.Write(p)
	})
}

func (d *ConnDriver) Connect(ch *Channel, buf *Buffer) error {
	if d.address == "" {
		return ErrUnsupported
	}
	if d.rwc != nil {
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ch.subsystem.Context())
	dialer, network, address := d.dialer, d.network, d.address
	if err := ch.subsystem.Submit(buf, func() (int, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		buf.conn = conn
		return 0, err
	}); err != nil {
		cancel()
		return err
	}
	d.cancel = cancel
	return nil
}

func (d *ConnDriver) Completed(_ *Channel, buf *Buffer, _ int) {
	if buf.op != OpConnect {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if buf.err != nil || buf.conn == nil {
		return
	}
	if d.closed {
		_ = buf.conn.Close()
		return
	}
	d.rwc = buf.conn
}

func (d *ConnDriver) Shutdown(_ *Channel) error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.cancel != nil {
		d.cancel()
	}
	if d.rwc != nil {
		return d.rwc.Close()
	}
	return nil
}

func (d *ConnDriver) Finalize(ch *Channel) {
	_ = d.Shutdown(ch)
}

func (d *ConnDriver) conn() (net.Conn, error) {
	conn, ok := d.rwc.(net.Conn)
	if !ok || d.closed {
		return nil, ErrUnsupported
	}
	return conn, nil
}

func (d *ConnDriver) SetOption(_ *Channel, name string, value string) error {
	conn, err := d.conn()
	if err != nil {
		return invalidOption(name, value)
	}
	tcp, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return invalidOption(name, value)
	}
	switch name {
	case "-nodelay", "-keepalive":
		on, ok := ParseBool(value)
		if !ok {
			return invalidOption(name, value)
		}
		if name == "-nodelay" {
			err = tcp.SetNoDelay(on)
		} else {
			err = tcp.SetKeepAlive(on)
		}
	case "-sndbuf", "-rcvbuf":
		size, atoiErr := strconv.Atoi(value)
		if atoiErr != nil || size <= 0 {
			return invalidOption(name, value)
		}
		if name == "-sndbuf" {
			err = tcp.SetWriteBuffer(size)
		} else {
			err = tcp.SetReadBuffer(size)
		}
	default:
		return invalidOption(name, value)
	}
	if err != nil {
		return newOpError("set option "+name+" failed", errMetaOpOption, err)
	}
	return nil
}

func (d *ConnDriver) GetOption(_ *Channel, name string) (string, error) {
	conn, err := d.conn()
	if err != nil {
		return "", invalidOption(name, "")
	}
	switch name {
	case "-peername":
		return formatAddr(conn.RemoteAddr()), nil
	case "-sockname":
		return formatAddr(conn.LocalAddr()), nil
	}
	opt, known := socketOptions[name]
	if !known {
		return "", invalidOption(name, "")
	}
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return "", invalidOption(name, "")
	}
	v, err := getsockopt(sc, opt)
	if err != nil {
		return "", newOpError("get option "+name+" failed", errMetaOpOption, err)
	}
	if opt == optNoDelay || opt == optKeepAlive {
		return FormatBool(v != 0), nil
	}
	return strconv.Itoa(v), nil
}

func formatAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host + " " + port
}
