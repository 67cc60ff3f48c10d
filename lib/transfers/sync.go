package transfers

import (
	"context"

	"github.com/pkg/errors"
)

// SyncTransactions merges the transactions behind diff into the existing pool and
// refreshes inclusion states of every unconfirmed bundle. Only bundles built from
// transactions not yet in the pool are validated. Confirmed bundles come first in the result.
// The call is idempotent for the same diff and pool.
func (e *Engine) SyncTransactions(ctx context.Context, diff []string, existing []Transaction) ([]Transaction, error) {
	if e.Ledger == nil {
		return nil, ErrLedgerUndefined
	}
	var fresh []Transaction
	if len(diff) > 0 {
		var err error
		if fresh, err = e.pullNewTransactions(ctx, diff, existing); err != nil {
			return nil, err
		}
	}
	merged := make([]Transaction, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	merged = append(merged, fresh...)

	var confirmed, unconfirmed []Bundle
	for _, b := range ConstructBundlesFromTransactions(merged) {
		if anyPersistent(b) {
			confirmed = append(confirmed, b)
		} else {
			unconfirmed = append(unconfirmed, b)
		}
	}
	updated, err := e.AssignInclusionStatesToBundles(ctx, unconfirmed)
	if err != nil {
		return nil, err
	}
	ret := make([]Transaction, 0, len(merged))
	for _, b := range confirmed {
		ret = append(ret, b...)
	}
	for _, b := range updated {
		ret = append(ret, b...)
	}
	e.debugf("sync: %d hashes in diff, %d new transactions, %d confirmed and %d unconfirmed bundles",
		len(diff), len(fresh), len(confirmed), len(updated))
	return ret, nil
}

func (e *Engine) pullNewTransactions(ctx context.Context, diff []string, existing []Transaction) ([]Transaction, error) {
	txs, err := e.Ledger.GetTransactionsObjects(ctx, diff)
	if err != nil {
		return nil, errors.Wrap(err, "getTransactionsObjects")
	}
	emptyHash := ""
	if e.Codec != nil {
		emptyHash = e.Codec.EmptyHash()
	}
	bundleHashes := make([]string, 0, len(txs))
	seenBundle := make(map[string]struct{})
	for _, tx := range txs {
		if tx.Bundle == emptyHash {
			continue
		}
		if _, ok := seenBundle[tx.Bundle]; !ok {
			seenBundle[tx.Bundle] = struct{}{}
			bundleHashes = append(bundleHashes, tx.Bundle)
		}
	}
	if len(bundleHashes) == 0 {
		return nil, nil
	}
	all, err := e.Ledger.FindTransactionObjects(ctx, bundleHashes)
	if err != nil {
		return nil, errors.Wrap(err, "findTransactionObjects")
	}
	known := make(map[string]struct{}, len(existing)+len(all))
	for i := range existing {
		known[existing[i].Hash] = struct{}{}
	}
	newTxs := make([]Transaction, 0, len(all))
	for _, tx := range all {
		if _, ok := known[tx.Hash]; ok {
			continue
		}
		known[tx.Hash] = struct{}{}
		tx.Broadcasted = true
		tx.Persistence = false
		newTxs = append(newTxs, tx)
	}
	ret := make([]Transaction, 0, len(newTxs))
	for _, b := range e.FilterInvalidBundles(ConstructBundlesFromTransactions(newTxs)) {
		ret = append(ret, b...)
	}
	return ret, nil
}

func anyPersistent(b Bundle) bool {
	for i := range b {
		if b[i].Persistence {
			return true
		}
	}
	return false
}

// AssignInclusionStatesToBundles returns copies of the bundles with persistence
// set on every transaction to the ledger's inclusion state of the bundle's tail
func (e *Engine) AssignInclusionStatesToBundles(ctx context.Context, bundles []Bundle) ([]Bundle, error) {
	if len(bundles) == 0 {
		return []Bundle{}, nil
	}
	if e.Ledger == nil {
		return nil, ErrLedgerUndefined
	}
	tailHashes := make([]string, len(bundles))
	for i, b := range bundles {
		tail, ok := b.Tail()
		if !ok {
			return nil, errors.Wrapf(ErrInvalidBundlesProvided, "bundle %v has no tail transaction", b.Hash())
		}
		tailHashes[i] = tail.Hash
	}
	states, err := e.Ledger.GetLatestInclusion(ctx, tailHashes)
	if err != nil {
		return nil, errors.Wrap(err, "getLatestInclusion")
	}
	if len(states) != len(tailHashes) {
		return nil, ErrInclusionStatesSizeMismatch
	}
	ret := make([]Bundle, len(bundles))
	for i, b := range bundles {
		nb := b.clone()
		for j := range nb {
			nb[j].Persistence = states[i]
		}
		ret[i] = nb
	}
	return ret, nil
}

// CategoriseInclusionStatesByBundleHash folds tail inclusion states by bundle:
// a bundle is included when any of its tails is
func CategoriseInclusionStatesByBundleHash(tails []Transaction, states []bool) (map[string]bool, error) {
	if len(tails) != len(states) {
		return nil, ErrInclusionStatesSizeMismatch
	}
	ret := make(map[string]bool, len(tails))
	for i, tail := range tails {
		ret[tail.Bundle] = ret[tail.Bundle] || states[i]
	}
	return ret, nil
}
