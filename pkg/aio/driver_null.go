package aio

// NullDriver performs no I/O. Every submitted buffer is handed out through
// Submitted and stays in flight until someone posts its completion with
// Subsystem.Post. Shutdown cancels whatever is still in flight.
type NullDriver struct {
	UnimplementedDriver
	submitted chan *Buffer
}

func NewNullDriver(backlog int) *NullDriver {
	if backlog < 1 {
		backlog = 1
	}
	return &NullDriver{
		submitted: make(chan *Buffer, backlog),
	}
}

func (d *NullDriver) Kind() string {
	return "null"
}

func (d *NullDriver) Submitted() <-chan *Buffer {
	return d.submitted
}

func (d *NullDriver) park(buf *Buffer) error {
	select {
	case d.submitted <- buf:
		return nil
	default:
		return ErrBusy
	}
}

func (d *NullDriver) Read(_ *Channel, buf *Buffer) error {
	return d.park(buf)
}

func (d *NullDriver) Write(_ *Channel, buf *Buffer) error {
	return d.park(buf)
}

func (d *NullDriver) Connect(_ *Channel, buf *Buffer) error {
	return d.park(buf)
}

func (d *NullDriver) Accept(_ *Channel, buf *Buffer) error {
	return d.park(buf)
}

func (d *NullDriver) Shutdown(ch *Channel) error {
	for _, buf := range ch.Outstanding() {
		if err := ch.subsystem.Post(buf, 0, ErrCanceled); err != nil {
			return err
		}
	}
	return nil
}
