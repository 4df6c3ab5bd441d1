package srt

import (
	"context"
	"fmt"
	"time"
)

// dial - caller side: induction (get cookie), then conclusion (get peer socket)
func (c *conn) dial(ctx context.Context) error {
	req := c.newHandshake(hsInduction, 0)

	return c.handshakeLoop(ctx, func() error {
		return c.writeHandshake(req, 0)
	}, func(hs *handshake) (bool, error) {
		switch {
		case hs.Type.IsReject():
			return false, fmt.Errorf("%w: %s", ErrConnectionRefused, hs.Type)
		case hs.Type == hsInduction && req.Type == hsInduction:
			req = c.newHandshake(hsConclusion, hs.Cookie)
			return false, c.writeHandshake(req, 0)
		case hs.Type == hsConclusion && req.Type == hsConclusion:
			c.establish(hs)
			return true, nil
		}
		return false, nil
	})
}

// rendezvous - both sides wave to each other, then exchange conclusion
// and agreement. Any side may start first.
func (c *conn) rendezvous(ctx context.Context) error {
	req := c.newHandshake(hsWaveAHand, 0)
	var dest uint32

	return c.handshakeLoop(ctx, func() error {
		return c.writeHandshake(req, dest)
	}, func(hs *handshake) (bool, error) {
		if hs.Type.IsReject() {
			return false, fmt.Errorf("%w: %s", ErrConnectionRefused, hs.Type)
		}

		if hs.Version != hsVersion {
			_ = c.writeHandshake(c.newHandshake(rejectVersion, 0), hs.SocketID)
			return false, fmt.Errorf("%w: %s", ErrConnectionRefused, rejectVersion)
		}

		if hs.MessageAPI() != c.opts.MessageAPI {
			_ = c.writeHandshake(c.newHandshake(rejectMessageAPI, 0), hs.SocketID)
			return false, fmt.Errorf("%w: %s", ErrConnectionRefused, rejectMessageAPI)
		}

		switch hs.Type {
		case hsWaveAHand:
			if req.Type == hsWaveAHand {
				req = c.newHandshake(hsConclusion, 0)
				dest = hs.SocketID
				return false, c.writeHandshake(req, dest)
			}

		case hsConclusion:
			reply := &packet{
				Control: true, Type: ControlHandshake, Dest: hs.SocketID,
				Payload: c.newHandshake(hsAgreement, 0).Marshal(),
			}

			c.mu.Lock()
			c.hsReply = reply
			c.mu.Unlock()

			c.establish(hs)
			return true, c.write(reply)

		case hsAgreement:
			if req.Type == hsConclusion {
				c.establish(hs)
				return true, nil
			}
		}

		return false, nil
	})
}

// handshakeLoop repeats request until handle reports done or connect timeout
func (c *conn) handshakeLoop(
	ctx context.Context, request func() error, handle func(hs *handshake) (bool, error),
) error {
	timer := time.NewTimer(c.opts.ConnectTimeout)
	defer timer.Stop()

	retry := time.NewTicker(c.opts.retransmit())
	defer retry.Stop()

	if err := request(); err != nil {
		return err
	}

	for {
		select {
		case hs := <-c.hsCh:
			if done, err := handle(hs); done || err != nil {
				return err
			}
		case <-retry.C:
			if err := request(); err != nil {
				return err
			}
		case <-timer.C:
			return ErrConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-c.mux.done:
			return wrapTransport(c.mux.err)
		case <-c.down:
			return c.downErr
		}
	}
}
