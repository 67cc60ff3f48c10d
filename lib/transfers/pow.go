package transfers

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMinWeightMagnitude = 14
	// (3^27-1)/2
	MaxTimestampValue int64 = 3812798742493
)

// PowFunc returns the nonce for a single transaction payload
type PowFunc func(ctx context.Context, payload string, mwm int) (string, error)

// BatchedPowFunc attaches the whole bundle at once
type BatchedPowFunc func(ctx context.Context, payloads []string, trunk, branch string, mwm int) (*AttachResult, error)

// DigestFunc returns the transaction hash of a payload with nonce
type DigestFunc func(ctx context.Context, payload string) (string, error)

type ProofOfWork struct {
	Batched BatchedPowFunc
	Single  PowFunc
	Digest  DigestFunc
	// Now stamps attachment timestamps, time.Now if nil
	Now func() time.Time
}

func (pow *ProofOfWork) now() time.Time {
	if pow.Now != nil {
		return pow.Now()
	}
	return time.Now()
}

// PerformPow attaches the payloads on top of trunk and branch, either in one batched call
// or transaction by transaction
func PerformPow(ctx context.Context, pow *ProofOfWork, codec Codec, payloads []string, trunk, branch string, mwm int, batched bool) (*AttachResult, error) {
	if pow == nil || (batched && pow.Batched == nil) || (!batched && pow.Single == nil) {
		return nil, ErrPowFunctionUndefined
	}
	if pow.Digest == nil {
		return nil, ErrDigestFunctionUndefined
	}
	if mwm <= 0 {
		mwm = DefaultMinWeightMagnitude
	}
	if batched {
		return pow.Batched(ctx, payloads, trunk, branch, mwm)
	}
	return PerformSequentialPow(ctx, pow, codec, payloads, trunk, branch, mwm)
}

// PerformSequentialPow proves transactions one at a time starting from the remainder.
// The remainder approves trunk and branch, every next transaction approves the
// previously proved one by trunk and the trunk tip by branch.
// The result is ordered by ascending index.
func PerformSequentialPow(ctx context.Context, pow *ProofOfWork, codec Codec, payloads []string, trunk, branch string, mwm int) (*AttachResult, error) {
	if pow == nil || pow.Single == nil {
		return nil, ErrPowFunctionUndefined
	}
	if pow.Digest == nil {
		return nil, ErrDigestFunctionUndefined
	}
	if codec == nil {
		return nil, ErrCodecUndefined
	}
	txs := make([]Transaction, 0, len(payloads))
	for _, p := range payloads {
		tx, err := codec.AsTransaction(p, "")
		if err != nil {
			return nil, errors.Wrap(ErrInvalidTransactionsProvided, err.Error())
		}
		txs = append(txs, *tx)
	}
	ordered := SortTransactionsByIndex(txs, false)

	n := len(ordered)
	retPayloads := make([]string, n)
	retTxs := make([]Transaction, n)
	var prevHash string
	for i, tx := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx.AttachmentTimestamp = pow.now().UnixNano() / int64(time.Millisecond)
		tx.AttachmentTimestampLowerBound = 0
		tx.AttachmentTimestampUpperBound = MaxTimestampValue
		if i == 0 {
			tx.TrunkTransaction = trunk
			tx.BranchTransaction = branch
		} else {
			tx.TrunkTransaction = prevHash
			tx.BranchTransaction = trunk
		}
		payload, err := codec.AsPayload(&tx)
		if err != nil {
			return nil, err
		}
		nonce, err := pow.Single(ctx, payload, mwm)
		if err != nil {
			return nil, errors.Wrap(err, "proof of work")
		}
		if len(nonce) > len(payload) {
			return nil, errors.Errorf("nonce of length %d is longer than payload", len(nonce))
		}
		withNonce := payload[:len(payload)-len(nonce)] + nonce
		hash, err := pow.Digest(ctx, withNonce)
		if err != nil {
			return nil, errors.Wrap(err, "digest")
		}
		proved, err := codec.AsTransaction(withNonce, hash)
		if err != nil {
			return nil, err
		}
		prevHash = hash
		// filled from the end to get ascending order
		retPayloads[n-1-i] = withNonce
		retTxs[n-1-i] = *proved
	}
	return &AttachResult{Payloads: retPayloads, Transactions: retTxs}, nil
}

// ConstructBundleFromAttachedPayloads decodes attached payloads in reverse order,
// hashing each with the digest function
func ConstructBundleFromAttachedPayloads(ctx context.Context, codec Codec, digest DigestFunc, payloads []string) (Bundle, error) {
	if digest == nil {
		return nil, ErrDigestFunctionUndefined
	}
	if codec == nil {
		return nil, ErrCodecUndefined
	}
	ret := make(Bundle, len(payloads))
	for i, p := range payloads {
		hash, err := digest(ctx, p)
		if err != nil {
			return nil, errors.Wrap(err, "digest")
		}
		tx, err := codec.AsTransaction(p, hash)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidTransactionsProvided, err.Error())
		}
		ret[len(payloads)-1-i] = *tx
	}
	return ret, nil
}

// RetryFailedTransaction broadcasts transactions which were stored locally but never reached
// the network. Transactions without a valid hash were never proved, they are attached
// again on top of fresh tips first.
func (e *Engine) RetryFailedTransaction(ctx context.Context, txs []Transaction) (*AttachResult, error) {
	if e.Ledger == nil {
		return nil, ErrLedgerUndefined
	}
	if e.Codec == nil {
		return nil, ErrCodecUndefined
	}
	ret := &AttachResult{
		Payloads:     make([]string, len(txs)),
		Transactions: make([]Transaction, len(txs)),
	}
	copy(ret.Transactions, txs)
	needsPow := false
	for i := range txs {
		p, err := e.Codec.AsPayload(&txs[i])
		if err != nil {
			return nil, err
		}
		ret.Payloads[i] = p
		if txs[i].Hash == e.Codec.EmptyHash() || !e.Codec.IsValidHash(txs[i].Hash) {
			needsPow = true
		}
	}
	if needsPow {
		tips, err := e.Ledger.GetTransactionsToApprove(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "getTransactionsToApprove")
		}
		attached, err := e.Ledger.AttachToTangle(ctx, tips.TrunkTransaction, tips.BranchTransaction, ret.Payloads)
		if err != nil {
			return nil, errors.Wrap(err, "attachToTangle")
		}
		ret = attached
	}
	if err := e.Ledger.StoreAndBroadcast(ctx, ret.Payloads); err != nil {
		return nil, errors.Wrap(err, "storeAndBroadcast")
	}
	return ret, nil
}
