package transfers

import (
	"context"

	"github.com/pkg/errors"
)

// IsFundedBundle checks that current balances of the spending addresses cover the spent value
func (e *Engine) IsFundedBundle(ctx context.Context, bundle Bundle, withQuorum bool) (bool, error) {
	if len(bundle) == 0 {
		return false, ErrEmptyBundleProvided
	}
	if e.Ledger == nil {
		return false, ErrLedgerUndefined
	}
	addresses := make([]string, 0)
	var required uint64
	for i := range bundle {
		if bundle[i].Value < 0 {
			addresses = append(addresses, bundle[i].Address)
			required += uint64(-bundle[i].Value)
		}
	}
	if len(addresses) == 0 {
		return true, nil
	}
	balances, err := e.Ledger.GetBalances(ctx, addresses, withQuorum)
	if err != nil {
		return false, errors.Wrap(err, "getBalances")
	}
	var available uint64
	for _, b := range balances {
		available += b
	}
	return required <= available, nil
}

// FilterZeroValueBundles keeps bundles which spend anything
func FilterZeroValueBundles(bundles []Bundle) []Bundle {
	ret := make([]Bundle, 0, len(bundles))
	for _, b := range bundles {
		for i := range b {
			if b[i].Value < 0 {
				ret = append(ret, b)
				break
			}
		}
	}
	return ret
}

// FilterNonFundedBundles keeps value bundles which are still funded.
// Bundles are checked one by one.
func (e *Engine) FilterNonFundedBundles(ctx context.Context, bundles []Bundle, withQuorum bool) ([]Bundle, error) {
	if len(bundles) == 0 {
		return nil, ErrEmptyBundlesProvided
	}
	ret := make([]Bundle, 0, len(bundles))
	for _, b := range FilterZeroValueBundles(bundles) {
		funded, err := e.IsFundedBundle(ctx, b, withQuorum)
		if err != nil {
			return nil, err
		}
		if funded {
			ret = append(ret, b)
		} else {
			e.debugf("bundle %v is no longer funded", b.Hash())
		}
	}
	return ret, nil
}
