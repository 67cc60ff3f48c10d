package wallet_update

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"nanomsg.org/go-mangos"
	"nanomsg.org/go-mangos/protocol/sub"
	"nanomsg.org/go-mangos/transport/tcp"
)

// uri must be like "tcp://my.host:3200"

func NewUpdateChan(uri string) (chan *WalletUpdate, error) {
	var sock mangos.Socket
	var err error

	if sock, err = sub.NewSocket(); err != nil {
		return nil, errors.Wrap(err, "can't create new sub socket")
	}
	sock.AddTransport(tcp.NewTransport())
	if err = sock.Dial(uri); err != nil {
		return nil, errors.Wrapf(err, "can't dial sub socket at %v", uri)
	}
	err = sock.SetOption(mangos.OptionSubscribe, []byte(""))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to all topics at %v", uri)
	}
	chOut := make(chan *WalletUpdate)

	go func() {
		defer sock.Close()
		for {
			msg, err := sock.Recv()
			if err != nil {
				continue
			}
			upd := &WalletUpdate{}
			if err = json.Unmarshal(msg, upd); err != nil {
				fmt.Printf("Error while unmarshaling wallet update from %v: %v\n", uri, err)
				time.Sleep(5 * time.Second)
				continue
			}
			chOut <- upd
		}
	}()
	return chOut, nil
}
