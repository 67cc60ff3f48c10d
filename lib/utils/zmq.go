package utils

import (
	"context"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
)

const openSockTimeoutSec = 5

// OpenSocket dials a SUB socket. The socket lives until ctx is cancelled or it is closed
func OpenSocket(ctx context.Context, uri string, timeoutSec int) (zmq4.Socket, error) {
	socket := zmq4.NewSub(ctx, zmq4.WithDialerTimeout(time.Duration(timeoutSec)*time.Second))
	if err := socket.Dial(uri); err != nil {
		socket.Close()
		return nil, errors.Wrapf(err, "dial %v", uri)
	}
	return socket, nil
}

func OpenSocketAndSubscribe(ctx context.Context, uri string, topics []string) (zmq4.Socket, error) {
	socket, err := OpenSocket(ctx, uri, openSockTimeoutSec)
	if err != nil {
		return nil, err
	}
	for _, t := range topics {
		if err = socket.SetOption(zmq4.OptionSubscribe, t); err != nil {
			socket.Close()
			return nil, errors.Wrapf(err, "subscribe '%v' at %v", t, uri)
		}
	}
	return socket, nil
}
