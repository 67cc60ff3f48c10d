package transfers

import (
	"sort"
)

type hashIndex map[string]*Transaction

// first occurrence of a hash wins
func indexByHash(pool []Transaction) hashIndex {
	ret := make(hashIndex, len(pool))
	for i := range pool {
		if _, ok := ret[pool[i].Hash]; !ok {
			ret[pool[i].Hash] = &pool[i]
		}
	}
	return ret
}

// ConstructBundle follows trunk references from the tail through the pool.
// The walk stops at the last transaction, at a missing or foreign link,
// or after lastIndex+1 steps, so cyclic references terminate.
// A partial chain is returned as is.
func ConstructBundle(tail Transaction, pool []Transaction) Bundle {
	return constructBundle(tail, indexByHash(pool))
}

func constructBundle(tail Transaction, index hashIndex) Bundle {
	ret := Bundle{tail}
	if tail.CurrentIndex == tail.LastIndex {
		return ret
	}
	nextTrunk := tail.TrunkTransaction
	for steps := uint64(0); steps <= tail.LastIndex; steps++ {
		next, ok := index[nextTrunk]
		if !ok || next.Bundle != tail.Bundle {
			break
		}
		ret = append(ret, *next)
		if next.CurrentIndex == next.LastIndex {
			break
		}
		nextTrunk = next.TrunkTransaction
	}
	return ret
}

// ConstructBundlesFromTransactions builds one bundle per tail found in the pool.
// Broadcasted tails are followed through trunk references. Tails which never made it
// to the network have no valid references, their bundle is every pool transaction with the same bundle hash.
func ConstructBundlesFromTransactions(txs []Transaction) []Bundle {
	if len(txs) == 0 {
		return []Bundle{}
	}
	var broadcasted, failed []Transaction
	for _, tx := range txs {
		if !tx.IsTail() {
			continue
		}
		if tx.Broadcasted {
			broadcasted = append(broadcasted, tx)
		} else {
			failed = append(failed, tx)
		}
	}
	ret := make([]Bundle, 0, len(broadcasted)+len(failed))
	index := indexByHash(txs)
	for _, tail := range broadcasted {
		ret = append(ret, constructBundle(tail, index))
	}
	for _, tail := range failed {
		b := make(Bundle, 0, tail.LastIndex+1)
		for _, tx := range txs {
			if tx.Bundle == tail.Bundle {
				b = append(b, tx)
			}
		}
		ret = append(ret, b)
	}
	return ret
}

// SortTransactionsByIndex returns a copy ordered by currentIndex, ascending or descending
func SortTransactionsByIndex(txs []Transaction, ascending bool) []Transaction {
	ret := make([]Transaction, len(txs))
	copy(ret, txs)
	sort.SliceStable(ret, func(i, j int) bool {
		if ascending {
			return ret[i].CurrentIndex < ret[j].CurrentIndex
		}
		return ret[i].CurrentIndex > ret[j].CurrentIndex
	})
	return ret
}

// IsBundleTraversable checks that the bundle was attached on top of the given tips:
// the highest index approves trunk and branch, every following transaction approves
// its predecessor by trunk and the trunk tip by branch.
func IsBundleTraversable(bundle Bundle, trunk, branch string) bool {
	if len(bundle) == 0 {
		return false
	}
	ordered := SortTransactionsByIndex(bundle, false)
	for i, tx := range ordered {
		if i == 0 {
			if tx.TrunkTransaction != trunk || tx.BranchTransaction != branch {
				return false
			}
			continue
		}
		if tx.TrunkTransaction != ordered[i-1].Hash || tx.BranchTransaction != trunk {
			return false
		}
	}
	return true
}

// IsBundle runs the validator on the bundle ordered by ascending index.
// A validator panic counts as an invalid bundle.
func (e *Engine) IsBundle(bundle Bundle) (ret bool) {
	if e.Validator == nil || len(bundle) == 0 {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			e.errorf("bundle validator panicked on %v: %v", bundle.Hash(), r)
			ret = false
		}
	}()
	return e.Validator.ValidBundle(SortTransactionsByIndex(bundle, true))
}

func (e *Engine) FilterInvalidBundles(bundles []Bundle) []Bundle {
	ret := make([]Bundle, 0, len(bundles))
	for _, b := range bundles {
		if e.IsBundle(b) {
			ret = append(ret, b)
		}
	}
	return ret
}
