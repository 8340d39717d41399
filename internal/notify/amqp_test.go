package notify

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	closed     bool
	publishErr error
	declared   []string
	published  []string
	notify     chan *amqp.Error
	connClosed bool
}

func (c *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.notify = receiver
	return receiver
}

func (c *fakeChannel) IsClosed() bool { return c.closed }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

// scriptedDialer hands out queued channels in order and fails while the queue is empty.
type scriptedDialer struct {
	channels []*fakeChannel
	dials    int
}

func (d *scriptedDialer) dial(string) (amqpChannel, func() error, error) {
	d.dials++
	if len(d.channels) == 0 {
		return nil, nil, errors.New("connection refused")
	}
	ch := d.channels[0]
	d.channels = d.channels[1:]
	return ch, func() error {
		ch.connClosed = true
		return nil
	}, nil
}

func TestRabbitPublisher_RedialsAfterErrClosed(t *testing.T) {
	first := &fakeChannel{publishErr: amqp.ErrClosed}
	second := &fakeChannel{}
	d := &scriptedDialer{channels: []*fakeChannel{first, second}}

	pub, err := newRabbitPublisher("amqp://broker", "condo.events", d.dial, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "ticket.created", map[string]string{"id": "t-1"}))

	assert.Equal(t, 2, d.dials)
	assert.True(t, first.connClosed)
	assert.Empty(t, first.published)
	assert.Equal(t, []string{"condo.events"}, second.declared)
	assert.Equal(t, []string{"ticket.created"}, second.published)
}

func TestRabbitPublisher_RedialsAfterCloseNotification(t *testing.T) {
	first := &fakeChannel{}
	second := &fakeChannel{}
	d := &scriptedDialer{channels: []*fakeChannel{first, second}}

	pub, err := newRabbitPublisher("amqp://broker", "condo.events", d.dial, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "ticket.created", "a"))

	first.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"}
	close(first.notify)

	require.NoError(t, pub.Publish(context.Background(), "ticket.rated", "b"))
	assert.Equal(t, []string{"ticket.created"}, first.published)
	assert.Equal(t, []string{"ticket.rated"}, second.published)
	assert.Equal(t, 2, d.dials)
}

func TestRabbitPublisher_FailedRedialRetriesOnNextPublish(t *testing.T) {
	first := &fakeChannel{}
	d := &scriptedDialer{channels: []*fakeChannel{first}}

	pub, err := newRabbitPublisher("amqp://broker", "condo.events", d.dial, zap.NewNop())
	require.NoError(t, err)
	first.closed = true

	err = pub.Publish(context.Background(), "ticket.created", "a")
	assert.ErrorContains(t, err, "amqp redial")

	replacement := &fakeChannel{}
	d.channels = append(d.channels, replacement)
	require.NoError(t, pub.Publish(context.Background(), "ticket.created", "b"))
	assert.Equal(t, []string{"ticket.created"}, replacement.published)
	assert.Equal(t, 3, d.dials)
}

func TestRabbitPublisher_CloseReleasesConnection(t *testing.T) {
	first := &fakeChannel{}
	d := &scriptedDialer{channels: []*fakeChannel{first}}

	pub, err := newRabbitPublisher("amqp://broker", "condo.events", d.dial, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	assert.True(t, first.closed)
	assert.True(t, first.connClosed)
	require.NoError(t, pub.Close())
}
