package api

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// outboxSize bounds the messages queued for one client. A client that falls
// this far behind is disconnected.
const outboxSize = 256

var (
	errSlowClient   = errors.New("client outbox full")
	errClientClosed = errors.New("client closed")
)

// client is a connected control client. Messages queue in an outbox drained
// by a single writer goroutine, so a client that stops reading never stalls
// the broadcaster or the event bus behind it.
type client struct {
	name       string
	write      func(Message) error
	disconnect func()
	log        *zap.SugaredLogger

	out  chan Message
	quit chan struct{}
	once sync.Once
}

// newClient starts the writer. disconnect, when set, tears down the
// transport so a blocked reader or writer returns.
func newClient(name string, write func(Message) error, disconnect func(), log *zap.SugaredLogger) *client {
	c := &client{
		name:       name,
		write:      write,
		disconnect: disconnect,
		log:        log,
		out:        make(chan Message, outboxSize),
		quit:       make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				c.log.Debugf("%s client write: %v", c.name, err)
				c.close()
				return
			}
		}
	}
}

// send queues msg without blocking. A full outbox closes the client.
func (c *client) send(msg Message) error {
	select {
	case <-c.quit:
		return errClientClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.log.Warnf("%s client is not reading, disconnecting", c.name)
		c.close()
		return errSlowClient
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.quit)
		if c.disconnect != nil {
			c.disconnect()
		}
	})
}

// closed is done once the client has been closed for any reason.
func (c *client) closed() <-chan struct{} {
	return c.quit
}
