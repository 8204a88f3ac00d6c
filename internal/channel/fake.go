package channel

import "sync"

// Fake is an in-memory Channel for tests and for pairing two
// in-process devices. Published state is recorded and, when paired,
// delivered synchronously to the peer's handlers.
type Fake struct {
	mu        sync.Mutex
	peer      *Fake
	onStates  func(batch []StateMessage)
	onCommand func(cmd Command)

	Published []StateMessage
	Commands  []Command

	// FailPublish makes PublishState return an error without
	// delivering, to exercise the fire-and-forget failure path.
	FailPublish error
}

// NewFake returns an unpaired fake channel.
func NewFake() *Fake {
	return &Fake{}
}

// Pair links two fakes so each delivers to the other.
func Pair(a, b *Fake) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (f *Fake) PublishState(msg StateMessage) error {
	f.mu.Lock()
	if f.FailPublish != nil {
		err := f.FailPublish
		f.mu.Unlock()
		return err
	}
	f.Published = append(f.Published, msg)
	peer := f.peer
	f.mu.Unlock()

	if peer != nil {
		peer.DeliverStates([]StateMessage{msg})
	}
	return nil
}

func (f *Fake) SendCommand(path string, payload []byte) error {
	f.mu.Lock()
	f.Commands = append(f.Commands, Command{Path: path, Payload: payload})
	peer := f.peer
	f.mu.Unlock()

	if peer != nil {
		peer.DeliverCommand(Command{Path: path, Payload: payload})
	}
	return nil
}

func (f *Fake) Subscribe(onStates func(batch []StateMessage), onCommand func(cmd Command)) error {
	f.mu.Lock()
	f.onStates = onStates
	f.onCommand = onCommand
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error { return nil }

// DeliverStates injects a batch as if it arrived from the transport.
func (f *Fake) DeliverStates(batch []StateMessage) {
	f.mu.Lock()
	h := f.onStates
	f.mu.Unlock()
	if h != nil {
		h(batch)
	}
}

// DeliverCommand injects a command as if it arrived from the transport.
func (f *Fake) DeliverCommand(cmd Command) {
	f.mu.Lock()
	h := f.onCommand
	f.mu.Unlock()
	if h != nil {
		h(cmd)
	}
}
