package confirmer

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/transfers"
)

// MaxDepthWindow is the age up to which a transaction can be promoted without reattaching
const MaxDepthWindow = 11 * time.Minute

// IsAboveMaxDepth tells whether attachment timestamp (ms) is in the past but within MaxDepthWindow
func IsAboveMaxDepth(attachmentTimestamp int64, now time.Time) bool {
	nowMs := now.UnixNano() / int64(time.Millisecond)
	return attachmentTimestamp < nowMs && nowMs-attachmentTimestamp < int64(MaxDepthWindow/time.Millisecond)
}

// FindPromotableTail returns the most recently attached tail which is above max depth
// and promotable according to the ledger. Ledger errors mean no tail is promotable.
func (conf *Confirmer) FindPromotableTail(ctx context.Context, tails []transfers.TailTransaction) (transfers.TailTransaction, bool) {
	candidates := make([]transfers.TailTransaction, 0, len(tails))
	for _, t := range tails {
		if IsAboveMaxDepth(t.AttachmentTimestamp, conf.Now()) {
			candidates = append(candidates, t)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AttachmentTimestamp > candidates[j].AttachmentTimestamp
	})
	for _, t := range candidates {
		promotable, err := conf.Ledger.IsPromotable(ctx, t.Hash)
		if err != nil {
			conf.warningf("CONFIRMER: isPromotable(%v) returned: %v", t.Hash, err)
			return transfers.TailTransaction{}, false
		}
		if promotable && IsAboveMaxDepth(t.AttachmentTimestamp, conf.Now()) {
			return t, true
		}
	}
	return transfers.TailTransaction{}, false
}

type promotionState int

const (
	stateEvaluating promotionState = iota
	statePromoting
	stateReattaching
	stateConfirmed
	stateFailed
)

// promotion is the whole state of one run, every step returns a new value
type promotion struct {
	state         promotionState
	attempt       int
	tails         []transfers.TailTransaction
	current       transfers.TailTransaction
	numPromotions uint64
	numAttaches   uint64
	result        transfers.TailTransaction
	err           error
}

func (p promotion) withTails(tails []transfers.TailTransaction) promotion {
	p.tails = make([]transfers.TailTransaction, len(tails))
	copy(p.tails, tails)
	return p
}

// PromoteTransactionTilConfirmed promotes the bundle until one of its tails is confirmed.
// Promotion switches to reattachment when the promoted tail is inconsistent and too old.
// After AttemptsLimit promotion attempts it fails with ErrPromotionsLimitReached.
// Errors other than inconsistency are returned as they are.
func (conf *Confirmer) PromoteTransactionTilConfirmed(ctx context.Context, tails []transfers.TailTransaction) (*transfers.TailTransaction, error) {
	return conf.promoteTilConfirmed(ctx, tails, nil)
}

func (conf *Confirmer) promoteTilConfirmed(ctx context.Context, tails []transfers.TailTransaction, notify func(*ConfirmerUpdate)) (*transfers.TailTransaction, error) {
	if conf.Ledger == nil {
		return nil, transfers.ErrLedgerUndefined
	}
	if len(tails) == 0 {
		return nil, errors.New("no tail transactions to promote")
	}
	p := promotion{state: stateEvaluating}.withTails(tails)
	for p.state != stateConfirmed && p.state != stateFailed {
		if err := ctx.Err(); err != nil {
			p.state, p.err = stateFailed, err
			break
		}
		prev := p.state
		p = conf.step(ctx, p)
		conf.report(p, prev, notify)
	}
	if p.state == stateFailed {
		return nil, p.err
	}
	ret := p.result
	return &ret, nil
}

func (conf *Confirmer) step(ctx context.Context, p promotion) promotion {
	switch p.state {
	case stateEvaluating:
		return conf.evaluate(ctx, p)
	case statePromoting:
		return conf.promote(ctx, p)
	case stateReattaching:
		return conf.reattach(ctx, p)
	}
	p.state, p.err = stateFailed, errors.Errorf("wrong promotion state %d", p.state)
	return p
}

func (conf *Confirmer) evaluate(ctx context.Context, p promotion) promotion {
	if tail, ok := conf.FindPromotableTail(ctx, p.tails); ok {
		p.current = tail
		p.state = statePromoting
		return p
	}
	conf.debugf("CONFIRMER: no promotable tail among %d, reattaching", len(p.tails))
	p.state = stateReattaching
	return p
}

func (conf *Confirmer) promote(ctx context.Context, p promotion) promotion {
	p.attempt++
	p.err = nil
	if p.attempt > conf.AttemptsLimit {
		p.state, p.err = stateFailed, transfers.ErrPromotionsLimitReached
		return p
	}
	hashes := make([]string, len(p.tails))
	for i := range p.tails {
		hashes[i] = p.tails[i].Hash
	}
	states, err := conf.Ledger.GetLatestInclusion(ctx, hashes)
	if err != nil {
		p.state, p.err = stateFailed, err
		return p
	}
	if len(states) != len(hashes) {
		p.state, p.err = stateFailed, transfers.ErrInclusionStatesSizeMismatch
		return p
	}
	for i, included := range states {
		if included {
			p.result = p.tails[i]
			p.state = stateConfirmed
			return p
		}
	}
	err = conf.Ledger.PromoteTransaction(ctx, p.current.Hash)
	switch {
	case err == nil:
		p.numPromotions++
		conf.debugf("CONFIRMER: promoted tail %v, attempt %d", p.current.Hash, p.attempt)
		if conf.PromoteEverySec > 0 {
			select {
			case <-time.After(time.Duration(conf.PromoteEverySec) * time.Second):
			case <-ctx.Done():
			}
		}
	case transfers.IsTransactionInconsistent(err):
		p.err = err
		if !IsAboveMaxDepth(p.current.AttachmentTimestamp, conf.Now()) {
			p.state = stateReattaching
		}
	default:
		p.state, p.err = stateFailed, err
	}
	return p
}

func (conf *Confirmer) reattach(ctx context.Context, p promotion) promotion {
	txs, err := conf.Ledger.ReplayBundle(ctx, p.tails[0].Hash)
	if err != nil {
		p.state, p.err = stateFailed, err
		return p
	}
	var newTail *transfers.Transaction
	for i := range txs {
		if txs[i].IsTail() {
			newTail = &txs[i]
			break
		}
	}
	if newTail == nil {
		p.state, p.err = stateFailed, errors.Errorf("replay of %v returned no tail transaction", p.tails[0].Hash)
		return p
	}
	p.current = transfers.TailTransaction{
		Hash:                newTail.Hash,
		AttachmentTimestamp: newTail.AttachmentTimestamp,
		Bundle:              newTail.Bundle,
	}
	tails := make([]transfers.TailTransaction, len(p.tails), len(p.tails)+1)
	copy(tails, p.tails)
	p.tails = append(tails, p.current)
	p.numAttaches++
	p.err = nil
	p.state = statePromoting
	conf.debugf("CONFIRMER: reattached, new tail %v", newTail.Hash)
	return p
}

func (conf *Confirmer) report(p promotion, prev promotionState, notify func(*ConfirmerUpdate)) {
	if notify == nil {
		return
	}
	upd := &ConfirmerUpdate{
		NumAttaches:     p.numAttaches,
		NumPromotions:   p.numPromotions,
		Attempt:         p.attempt,
		UpdateTime:      conf.Now(),
		PromoteTailHash: p.current.Hash,
		Err:             p.err,
	}
	switch {
	case p.state == stateConfirmed:
		upd.UpdateType = UPD_CONFIRM
		upd.PromoteTailHash = p.result.Hash
	case p.state == stateFailed:
		upd.UpdateType = UPD_FAILED
	case prev == stateReattaching:
		upd.UpdateType = UPD_REATTACH
	case prev == statePromoting && p.err == nil:
		upd.UpdateType = UPD_PROMOTE
	case prev == statePromoting:
		upd.UpdateType = UPD_NO_ACTION
	default:
		return
	}
	notify(upd)
}
