package iotacodec

import (
	"context"

	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/pow"
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/transfers"
)

// ValidBundle checks structure and signatures of the bundle.
// Transactions which can't be encoded to trytes make the bundle invalid.
func ValidBundle(b transfers.Bundle) (ret bool) {
	if len(b) == 0 {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ret = false
		}
	}()
	ib := make(bundle.Bundle, len(b))
	for i := range b {
		ib[i] = ToIOTA(&b[i])
		if _, err := transaction.TransactionToTrytes(&ib[i]); err != nil {
			return false
		}
	}
	return bundle.ValidBundle(ib) == nil
}

var Validator = transfers.BundleValidatorFunc(ValidBundle)

// LocalPoW returns the fastest proof of work implementation available on the platform
func LocalPoW() (string, transfers.PowFunc) {
	name, powFun := pow.GetFastestProofOfWorkImpl()
	return name, func(ctx context.Context, payload string, mwm int) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		nonce, err := powFun(Trytes(payload), mwm)
		if err != nil {
			return "", errors.Wrapf(err, "%s", name)
		}
		return string(nonce), nil
	}
}

// Digest computes the transaction hash of trytes with nonce
func Digest(_ context.Context, payload string) (string, error) {
	tx, err := transaction.AsTransactionObject(Trytes(payload))
	if err != nil {
		return "", err
	}
	return string(tx.Hash), nil
}

// NewProofOfWork returns local sequential PoW together with the given batched attach function
func NewProofOfWork(batched transfers.BatchedPowFunc) (string, *transfers.ProofOfWork) {
	name, single := LocalPoW()
	return name, &transfers.ProofOfWork{
		Batched: batched,
		Single:  single,
		Digest:  Digest,
	}
}
