package zmqfeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/unioproject/tanglewallet/lib/utils"
)

const (
	addressLen      = 81
	reconnectPeriod = 10 * time.Second
)

var topics = []string{"tx", "sn"}

// Feed listens to node events and reports accounts whose addresses were touched
type Feed struct {
	uri       string
	log       *logging.Logger
	mutex     sync.RWMutex
	watched   map[string]string
	chTrigger chan string
	txCount   uint64
	snCount   uint64
}

type FeedStats struct {
	Uri     string
	TxCount uint64
	SnCount uint64
}

func NewFeed(uri string, bufLen int, log *logging.Logger) *Feed {
	return &Feed{
		uri:       uri,
		log:       log,
		watched:   make(map[string]string),
		chTrigger: make(chan string, bufLen),
	}
}

func (f *Feed) debugf(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Debugf(format, args...)
	}
}

func (f *Feed) errorf(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Errorf(format, args...)
	}
}

func (f *Feed) infof(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Infof(format, args...)
	}
}

// Watch registers addresses of the account. Checksums are ignored
func (f *Feed) Watch(account string, addresses []string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, a := range addresses {
		if len(a) > addressLen {
			a = a[:addressLen]
		}
		f.watched[a] = account
	}
}

// Triggers returns the stream of account names to be synced
func (f *Feed) Triggers() <-chan string {
	return f.chTrigger
}

func (f *Feed) Stats() FeedStats {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return FeedStats{Uri: f.uri, TxCount: f.txCount, SnCount: f.snCount}
}

// ParseMessage returns topic and address of 'tx' and 'sn' messages
func ParseMessage(msg string) (string, string, bool) {
	msgSplit := strings.Split(msg, " ")
	var idx int
	switch msgSplit[0] {
	case "tx":
		idx = 2
	case "sn":
		idx = 3
	default:
		return "", "", false
	}
	if len(msgSplit) <= idx || len(msgSplit[idx]) != addressLen {
		return "", "", false
	}
	return msgSplit[0], msgSplit[idx], true
}

// Dispatch accounts the message and triggers the owner account if any.
// Triggers are dropped when nobody reads them
func (f *Feed) Dispatch(msg string) (string, bool) {
	topic, addr, ok := ParseMessage(msg)
	if !ok {
		return "", false
	}
	f.mutex.Lock()
	switch topic {
	case "tx":
		f.txCount++
	case "sn":
		f.snCount++
	}
	account, watched := f.watched[addr]
	f.mutex.Unlock()
	if !watched {
		return "", false
	}
	select {
	case f.chTrigger <- account:
		f.debugf("ZMQ: '%v' message for address %v triggered account '%v'", topic, addr, account)
	default:
	}
	return account, true
}

// Run reads the socket until ctx is cancelled, reconnecting after errors
func (f *Feed) Run(ctx context.Context) {
	for {
		if err := f.readSocket(ctx); err != nil {
			f.errorf("ZMQ: reading %v: %v", f.uri, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectPeriod):
		}
	}
}

func (f *Feed) readSocket(ctx context.Context) error {
	socket, err := utils.OpenSocketAndSubscribe(ctx, f.uri, topics)
	if err != nil {
		return err
	}
	defer func() {
		go func() {
			_ = socket.Close() // better leak than block
		}()
	}()
	f.infof("ZMQ: listening to %v", f.uri)
	for {
		msg, err := socket.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(msg.Frames) == 0 {
			continue
		}
		f.Dispatch(string(msg.Frames[0]))
	}
}
