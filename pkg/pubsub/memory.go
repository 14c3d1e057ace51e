package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process broker. Each subscriber owns a buffered channel; when it is full the message is
// dropped for that subscriber so a slow reader never stalls publishers.
type Memory struct {
	bufferSize int

	lock     sync.RWMutex
	subs     map[uint64]chan *Message
	nextID   uint64
	dropped  uint64
	closed   bool
	closedCh chan struct{}
}

var _ PubSub = (*Memory)(nil)

func NewMemory(bufferSize int) *Memory {
	if bufferSize < 1 {
		bufferSize = 64
	}

	return &Memory{
		bufferSize: bufferSize,
		subs:       make(map[uint64]chan *Message),
		closedCh:   make(chan struct{}),
	}
}

func (m *Memory) Publish(_ context.Context, msg *Message) error {
	if msg == nil {
		return nil
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.closed {
		return ErrShutdown
	}

	for _, ch := range m.subs {
		select {
		case ch <- msg:
		default:
			atomic.AddUint64(&m.dropped, 1)
		}
	}

	return nil
}

func (m *Memory) Subscribe(ctx context.Context, handler SubscribeHandler) error {
	ch, id, err := m.register()
	if err != nil {
		return err
	}

	defer m.unregister(id)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.closedCh:
			return nil

		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Memory) Subscribers() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber buffer was full.
func (m *Memory) Dropped() uint64 {
	return atomic.LoadUint64(&m.dropped)
}

func (m *Memory) Shutdown(_ context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.closedCh)
	return nil
}

func (m *Memory) register() (chan *Message, uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return nil, 0, ErrShutdown
	}

	m.nextID++
	ch := make(chan *Message, m.bufferSize)
	m.subs[m.nextID] = ch
	return ch, m.nextID, nil
}

func (m *Memory) unregister(id uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.subs, id)
}
