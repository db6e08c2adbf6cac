package client

import (
	"context"

	"github.com/bhoriuchi/graphql-go-client/auth"
	"github.com/bhoriuchi/graphql-go-client/ws/transport"
)

// New generates a client and binds it to the identity provider of the
// backend. A token change reconnects an open subscription connection so the
// new token is sent in the connection params. A sign in or sign out closes
// and reopens it, and a sign out also resets the store. Nothing is bound when
// an explicit GraphQL url is used.
func New(opts ...Option) (*Client, error) {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	c, err := Generate(o)
	if err != nil {
		return nil, err
	}

	if c.explicitURL || c.provider == nil || c.ws == nil {
		return c, nil
	}

	unToken := c.provider.OnTokenChanged(func(session *auth.Session) {
		if c.ws.Status() == transport.StatusOpen {
			c.log.Debugf("token changed, reconnecting subscription transport")
			c.ws.TryReconnect()
		}
	})

	unState := c.provider.OnAuthStateChanged(func(event auth.AuthEvent, session *auth.Session) {
		// close first so the reconnect does not race the open connection
		if c.ws.Status() == transport.StatusOpen {
			c.log.Debugf("auth state changed to %s, restarting subscription transport", event)
			c.ws.Close()
			c.ws.TryReconnect()
		}

		// the reset refetches watches over the network, run it outside of
		// the provider's notification
		if event == auth.SignedOut {
			c.mx.Lock()
			if c.closed {
				c.mx.Unlock()
				return
			}
			c.resets.Add(1)
			c.mx.Unlock()

			go func() {
				defer c.resets.Done()
				if err := c.ResetStore(context.Background()); err != nil && err != ErrClosed {
					c.log.WithError(err).Errorf("error resetting client cache")
				}
			}()
		}
	})

	c.mx.Lock()
	c.unbind = append(c.unbind, unToken, unState)
	c.mx.Unlock()

	return c, nil
}
