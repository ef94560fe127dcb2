package aio

import (
	"net"
)

// ListenerDriver serves tcp-server channels. Accepted connections become
// channels offered to the accept callback.
type ListenerDriver struct {
	UnimplementedDriver
	network string
	address string
	ln      net.Listener
	closed  bool
}

func NewListenerDriver(network string, address string) *ListenerDriver {
	return &ListenerDriver{
		network: network,
		address: address,
	}
}

func (d *ListenerDriver) Kind() string {
	return "tcp-server"
}

func (d *ListenerDriver) AllocationSize() int {
	return 0
}

// Addr is the bound address, valid once the channel exists.
func (d *ListenerDriver) Addr() net.Addr {
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

func (d *ListenerDriver) Initialize(_ *Channel) error {
	ln, err := net.Listen(d.network, d.address)
	if err != nil {
		return newOpError("listen failed", errMetaOpListen, err)
	}
	d.ln = ln
	return nil
}

func (d *ListenerDriver) Accept(ch *Channel, buf *Buffer) error {
	if d.closed {
		return ErrClosed
	}
	ln := d.ln
	return ch.subsystem.Submit(buf, func() (int, error) {
		conn, err := ln.Accept()
		buf.conn = conn
		return 0, err
	})
}

func (d *ListenerDriver) Completed(ch *Channel, buf *Buffer, _ int) {
	if buf.op != OpAccept || buf.err != nil || buf.conn == nil {
		return
	}
	if d.closed {
		_ = buf.conn.Close()
		return
	}
	child, err := NewChannel(ch.subsystem, NewConnDriver(buf.conn), ChannelOptions{
		Blocking:   ch.blocking,
		BufferSize: ch.bufferSize,
		Logger:     ch.logger,
	})
	if err != nil {
		_ = buf.conn.Close()
		ch.logger.Warning().Uint64("channel", ch.id).Err(err).Log("accepted connection dropped")
		return
	}
	ch.Offer(child)
}

func (d *ListenerDriver) Shutdown(_ *Channel) error {
	if d.closed || d.ln == nil {
		return nil
	}
	d.closed = true
	return d.ln.Close()
}

func (d *ListenerDriver) Finalize(ch *Channel) {
	_ = d.Shutdown(ch)
}

func (d *ListenerDriver) GetOption(_ *Channel, name string) (string, error) {
	if name == "-sockname" && d.ln != nil {
		return formatAddr(d.ln.Addr()), nil
	}
	return "", invalidOption(name, "")
}
