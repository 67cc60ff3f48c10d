package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testNonce = "NONCEABC"

func payloadsOf(t *testing.T, b Bundle) []string {
	ret := make([]string, len(b))
	for i := range b {
		p, err := fakeCodec{}.AsPayload(&b[i])
		require.NoError(t, err)
		ret[i] = p
	}
	return ret
}

func TestPerformSequentialPow(t *testing.T) {
	ctx := context.Background()
	b := buildBundle("B1", []string{"THEM", "MINE", "REM"}, []int64{5, -10, 5})
	now := time.Unix(1700000000, 0)

	var order []uint64
	pow := &ProofOfWork{
		Single: func(_ context.Context, payload string, mwm int) (string, error) {
			require.Equal(t, 9, mwm)
			tx, err := fakeCodec{}.AsTransaction(payload, "")
			require.NoError(t, err)
			order = append(order, tx.CurrentIndex)
			return testNonce, nil
		},
		Digest: testDigest,
		Now:    func() time.Time { return now },
	}
	res, err := PerformSequentialPow(ctx, pow, fakeCodec{}, payloadsOf(t, b), trunkTip, branchTip, 9)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1, 0}, order)

	txs := res.Transactions
	require.Len(t, txs, 3)
	require.Len(t, res.Payloads, 3)
	for i := range txs {
		require.EqualValues(t, i, txs[i].CurrentIndex)
		require.Equal(t, testNonce, txs[i].Nonce)
		require.Equal(t, now.UnixNano()/int64(time.Millisecond), txs[i].AttachmentTimestamp)
		require.Equal(t, MaxTimestampValue, txs[i].AttachmentTimestampUpperBound)
		hash, err := testDigest(ctx, res.Payloads[i])
		require.NoError(t, err)
		require.Equal(t, hash, txs[i].Hash)
	}
	require.Equal(t, trunkTip, txs[2].TrunkTransaction)
	require.Equal(t, branchTip, txs[2].BranchTransaction)
	require.Equal(t, txs[2].Hash, txs[1].TrunkTransaction)
	require.Equal(t, txs[1].Hash, txs[0].TrunkTransaction)
	require.Equal(t, trunkTip, txs[0].BranchTransaction)
	require.Equal(t, trunkTip, txs[1].BranchTransaction)
	require.True(t, IsBundleTraversable(txs, trunkTip, branchTip))
}

func TestPerformPow(t *testing.T) {
	ctx := context.Background()
	b := buildBundle("B1", []string{"THEM", "MINE"}, []int64{5, -5})
	payloads := payloadsOf(t, b)

	_, err := PerformPow(ctx, nil, fakeCodec{}, payloads, trunkTip, branchTip, 0, false)
	require.True(t, errors.Is(err, ErrPowFunctionUndefined))

	single := func(context.Context, string, int) (string, error) { return testNonce, nil }
	_, err = PerformPow(ctx, &ProofOfWork{Single: single}, fakeCodec{}, payloads, trunkTip, branchTip, 0, false)
	require.True(t, errors.Is(err, ErrDigestFunctionUndefined))

	_, err = PerformPow(ctx, &ProofOfWork{Single: single, Digest: testDigest}, fakeCodec{}, payloads, trunkTip, branchTip, 0, true)
	require.True(t, errors.Is(err, ErrPowFunctionUndefined))

	var gotMwm int
	batched := func(_ context.Context, p []string, trunk, branch string, mwm int) (*AttachResult, error) {
		gotMwm = mwm
		require.Equal(t, trunkTip, trunk)
		require.Equal(t, branchTip, branch)
		return &AttachResult{Payloads: p}, nil
	}
	res, err := PerformPow(ctx, &ProofOfWork{Batched: batched, Digest: testDigest}, fakeCodec{}, payloads, trunkTip, branchTip, 0, true)
	require.NoError(t, err)
	require.Equal(t, payloads, res.Payloads)
	require.Equal(t, DefaultMinWeightMagnitude, gotMwm)

	res, err = PerformPow(ctx, &ProofOfWork{Single: single, Digest: testDigest}, fakeCodec{}, payloads, trunkTip, branchTip, 0, false)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
}

func TestConstructBundleFromAttachedPayloads(t *testing.T) {
	ctx := context.Background()
	b := buildBundle("B1", []string{"THEM", "MINE"}, []int64{5, -5})
	payloads := payloadsOf(t, Bundle{b[1], b[0]})

	_, err := ConstructBundleFromAttachedPayloads(ctx, fakeCodec{}, nil, payloads)
	require.True(t, errors.Is(err, ErrDigestFunctionUndefined))

	got, err := ConstructBundleFromAttachedPayloads(ctx, fakeCodec{}, testDigest, payloads)
	require.NoError(t, err)
	require.EqualValues(t, 0, got[0].CurrentIndex)
	require.EqualValues(t, 1, got[1].CurrentIndex)

	_, err = ConstructBundleFromAttachedPayloads(ctx, fakeCodec{}, testDigest, []string{"garbage"})
	require.True(t, errors.Is(err, ErrInvalidTransactionsProvided))
}

func TestRetryFailedTransaction(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	e := newTestEngine(ledger)

	b := buildBundle("B1", []string{"THEM", "MINE"}, []int64{5, -5})
	res, err := e.RetryFailedTransaction(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 0, ledger.attachCalls)
	require.Len(t, ledger.broadcastCalls, 1)
	require.Equal(t, []Transaction(b), res.Transactions)

	unproved := b.clone()
	unproved[1].Hash = testEmptyHash
	attached := &AttachResult{Payloads: []string{"P0", "P1"}}
	ledger.attachResult = attached
	res, err = e.RetryFailedTransaction(ctx, unproved)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.attachCalls)
	require.Equal(t, attached, res)
	require.Equal(t, []string{"P0", "P1"}, ledger.broadcastCalls[1])
}
