package nostrrelay_test

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/mock"
)

type mockedConn struct {
	mock.Mock
}

func (m *mockedConn) Publish(ctx context.Context, event nostr.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockedConn) Subscribe(
	ctx context.Context, filters nostr.Filters,
) (<-chan *nostr.Event, error) {
	args := m.Called(ctx, filters)

	var res <-chan *nostr.Event
	if a := args.Get(0); a != nil {
		res = a.(<-chan *nostr.Event)
	}
	return res, args.Error(1)
}

func (m *mockedConn) Done() <-chan struct{} {
	args := m.Called()

	var res <-chan struct{}
	if a := args.Get(0); a != nil {
		res = a.(<-chan struct{})
	}
	return res
}

func (m *mockedConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newMockedConn(done chan struct{}) *mockedConn {
	conn := &mockedConn{}
	conn.On("Done").Return((<-chan struct{})(done))
	conn.On("Close").Return(nil).Maybe()
	return conn
}
