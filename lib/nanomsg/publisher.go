package nanomsg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"nanomsg.org/go-mangos"
	"nanomsg.org/go-mangos/protocol/pub"
	"nanomsg.org/go-mangos/transport/tcp"
)

const publishTimeout = 5 * time.Second

// Publisher sends wallet updates to subscribers over a nanomsg PUB socket
type Publisher struct {
	chIn chan []byte
	done chan struct{}
	sock mangos.Socket
	url  string
	log  *logging.Logger
}

func (p *Publisher) errorf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Errorf(format, args...)
	}
}

func (p *Publisher) infof(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Infof(format, args...)
	}
}

// NewPublisher starts listening on the port. Port 0 means a tcp port chosen by the system
func NewPublisher(port int, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	return NewPublisherAt(fmt.Sprintf("tcp://:%v", port), bufflen, localLog)
}

func NewPublisherAt(url string, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	ret := &Publisher{
		log:  localLog,
		url:  url,
		chIn: make(chan []byte, bufflen),
		done: make(chan struct{}),
	}
	var err error
	if ret.sock, err = pub.NewSocket(); err != nil {
		return nil, errors.Wrap(err, "can't get new pub socket")
	}
	ret.sock.AddTransport(tcp.NewTransport())
	if err = ret.sock.Listen(ret.url); err != nil {
		ret.sock.Close()
		return nil, errors.Wrapf(err, "can't listen new pub socket at %v", ret.url)
	}
	ret.infof("Publisher: PUB socket listening on %v", ret.url)
	go func() {
		ret.loop()
		ret.sock.Close()
		close(ret.done)
	}()
	return ret, nil
}

func (p *Publisher) URL() string {
	return p.url
}

func (p *Publisher) loop() {
	for data := range p.chIn {
		if err := p.sock.Send(data); err != nil {
			p.errorf("Nanomsg publisher of %v: %v", p.url, err)
		}
	}
}

func (p *Publisher) PublishData(data []byte) error {
	select {
	case p.chIn <- data:
	case <-time.After(publishTimeout):
		return errors.Errorf("timeout %v on sending to publish channel at %v", publishTimeout, p.url)
	}
	return nil
}

func (p *Publisher) PublishAsJSON(obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		p.errorf("Publisher: marshal error %v", err)
		return err
	}
	return p.PublishData(data)
}

// Close flushes buffered messages and closes the socket
func (p *Publisher) Close() {
	close(p.chIn)
	<-p.done
}
