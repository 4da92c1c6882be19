package store

// Notifier is a coalescing wake signal: any number of Signal calls before a
// receive collapse into one wake-up.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

func (n *Notifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *Notifier) C() <-chan struct{} { return n.ch }
