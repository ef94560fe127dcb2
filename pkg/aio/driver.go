package aio

// Driver supplies the kind-specific behavior of a Channel.
//
// Read, Write, Connect and Accept are called with the channel locked and
// must not block: they hand the operation to the subsystem with
// Subsystem.Submit and return. Shutdown must make every in-flight
// operation complete, successfully or not.
type Driver interface {
	Kind() string
	AllocationSize() int
	Initialize(ch *Channel) error
	Finalize(ch *Channel)
	Read(ch *Channel, buf *Buffer) error
	Write(ch *Channel, buf *Buffer) error
	Connect(ch *Channel, buf *Buffer) error
	Accept(ch *Channel, buf *Buffer) error
	Shutdown(ch *Channel) error
	SetOption(ch *Channel, name string, value string) error
	GetOption(ch *Channel, name string) (string, error)
}

// Completer is implemented by drivers that keep state about finished
// operations. Completed runs on the dispatcher with the channel locked.
type Completer interface {
	Completed(ch *Channel, buf *Buffer, qty int)
}

// UnimplementedDriver rejects every capability. Embed it to implement only
// part of Driver.
type UnimplementedDriver struct{}

func (UnimplementedDriver) Kind() string { return "unknown" }

func (UnimplementedDriver) AllocationSize() int { return DefaultBufferSize }

func (UnimplementedDriver) Initialize(*Channel) error { return nil }

func (UnimplementedDriver) Finalize(*Channel) {}

func (UnimplementedDriver) Read(*Channel, *Buffer) error { return ErrUnsupported }

func (UnimplementedDriver) Write(*Channel, *Buffer) error { return ErrUnsupported }

func (UnimplementedDriver) Connect(*Channel, *Buffer) error { return ErrUnsupported }

func (UnimplementedDriver) Accept(*Channel, *Buffer) error { return ErrUnsupported }

func (UnimplementedDriver) Shutdown(*Channel) error { return nil }

func (UnimplementedDriver) SetOption(_ *Channel, name string, value string) error {
	return invalidOption(name, value)
}

func (UnimplementedDriver) GetOption(_ *Channel, name string) (string, error) {
	return "", invalidOption(name, "")
}
