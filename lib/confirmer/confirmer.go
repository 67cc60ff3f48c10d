package confirmer

import (
	"context"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/stopwatch"
	"github.com/unioproject/tanglewallet/lib/transfers"
)

type UpdateType int

const (
	UPD_NO_ACTION UpdateType = 0
	UPD_REATTACH  UpdateType = 1
	UPD_PROMOTE   UpdateType = 2
	UPD_CONFIRM   UpdateType = 3
	UPD_FAILED    UpdateType = 4
)

const DefaultPromotionsAttemptsLimit = 50

type ConfirmerParams struct {
	Ledger transfers.Ledger
	// number of promotion attempts over all tails of the bundle. 0 means default
	AttemptsLimit int
	// pause after each successful promotion
	PromoteEverySec uint64
	// clock, time.Now if nil
	Now func() time.Time
	Log *logging.Logger
}

type Confirmer struct {
	ConfirmerParams
	mutex   sync.Mutex
	running map[string]struct{}
}

type ConfirmerUpdate struct {
	BundleHash      string
	NumAttaches     uint64
	NumPromotions   uint64
	Attempt         int
	UpdateTime      time.Time
	UpdateType      UpdateType
	PromoteTailHash string
	// time since the task started, set on confirmation
	DurationMsec uint64
	Err          error
}

func (ut UpdateType) ToString() string {
	var r string
	switch ut {
	case UPD_NO_ACTION:
		r = "no action"
	case UPD_REATTACH:
		r = "reattach"
	case UPD_PROMOTE:
		r = "promote"
	case UPD_CONFIRM:
		r = "confirm"
	case UPD_FAILED:
		r = "failed"
	default:
		r = "???"
	}
	return r
}

func NewConfirmer(params ConfirmerParams) *Confirmer {
	if params.AttemptsLimit <= 0 {
		params.AttemptsLimit = DefaultPromotionsAttemptsLimit
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Confirmer{
		ConfirmerParams: params,
		running:         make(map[string]struct{}),
	}
}

func (conf *Confirmer) debugf(f string, p ...interface{}) {
	if conf.Log != nil {
		conf.Log.Debugf(f, p...)
	}
}

func (conf *Confirmer) errorf(f string, p ...interface{}) {
	if conf.Log != nil {
		conf.Log.Errorf(f, p...)
	}
}

func (conf *Confirmer) warningf(f string, p ...interface{}) {
	if conf.Log != nil {
		conf.Log.Warningf(f, p...)
	}
}

func (conf *Confirmer) IsConfirming(bundleHash string) bool {
	conf.mutex.Lock()
	defer conf.mutex.Unlock()
	_, ok := conf.running[bundleHash]
	return ok
}

// StartConfirmerTask runs promotion of the bundle in the background.
// Updates are streamed over the returned channel, the last one is UPD_CONFIRM or UPD_FAILED,
// then the channel is closed. The returned function cancels the task.
// Only one task per bundle hash may run at a time.
func (conf *Confirmer) StartConfirmerTask(ctx context.Context, bundleHash string, tails []transfers.TailTransaction) (chan *ConfirmerUpdate, func(), error) {
	if len(tails) == 0 {
		return nil, nil, errors.Errorf("no tail transactions for bundle %v", bundleHash)
	}
	conf.mutex.Lock()
	if _, ok := conf.running[bundleHash]; ok {
		conf.mutex.Unlock()
		return nil, nil, errors.Errorf("confirmer task for %v is already running", bundleHash)
	}
	conf.running[bundleHash] = struct{}{}
	conf.mutex.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	chanUpdate := make(chan *ConfirmerUpdate, 1)
	stopwatch.Start(bundleHash)

	send := func(upd *ConfirmerUpdate) {
		upd.BundleHash = bundleHash
		if upd.UpdateType == UPD_CONFIRM {
			upd.DurationMsec, _ = stopwatch.DurationMs(bundleHash)
		}
		select {
		case chanUpdate <- upd:
		case <-ctx.Done():
		}
	}
	go func() {
		defer func() {
			conf.mutex.Lock()
			delete(conf.running, bundleHash)
			conf.mutex.Unlock()
			close(chanUpdate)
			cancel()
		}()
		conf.debugf("CONFIRMER: started task for bundle %v with %d tail(s)", bundleHash, len(tails))

		_, err := conf.promoteTilConfirmed(ctx, tails, send)
		stopwatch.Get(bundleHash)
		if err != nil {
			conf.errorf("CONFIRMER: task for bundle %v failed: %v", bundleHash, err)
			return
		}
		conf.debugf("CONFIRMER: task for bundle %v has ended", bundleHash)
	}()
	return chanUpdate, cancel, nil
}
