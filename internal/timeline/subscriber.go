package timeline

import "sync"

// subscriber delivers states in order without ever blocking the consumer
// loop: pushes queue up and a pump goroutine drains them into out.
type subscriber[T any] struct {
	out  chan State[T]
	wake chan struct{}
	stop chan struct{}

	mu     sync.Mutex
	queue  []State[T]
	closed bool
	once   sync.Once
}

func newSubscriber[T any]() *subscriber[T] {
	s := &subscriber[T]{
		out:  make(chan State[T]),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber[T]) push(st State[T]) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, st)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close stops delivery; undelivered states are dropped and out is closed.
func (s *subscriber[T]) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *subscriber[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = State[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.stop:
			return
		}
	}
}
