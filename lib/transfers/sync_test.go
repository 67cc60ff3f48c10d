package transfers

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func persistenceByHash(txs []Transaction) map[string]bool {
	ret := make(map[string]bool)
	for _, tx := range txs {
		ret[tx.Hash] = tx.Persistence
	}
	return ret
}

func TestSyncTransactions(t *testing.T) {
	ctx := context.Background()
	confirmed := buildBundle("A", []string{"MINE", "THEM"}, []int64{-1, 1})
	for i := range confirmed {
		confirmed[i].Persistence = true
	}
	incoming := buildBundle("B", []string{"THEM", "MINE", "THEM"}, []int64{-7, 7, 0})
	reattached := buildBundle("B", []string{"THEM", "MINE", "THEM"}, []int64{-7, 7, 0})
	for i := range reattached {
		reattached[i].Hash = "R" + reattached[i].Hash
	}
	reattached[0].TrunkTransaction = reattached[1].Hash
	reattached[1].TrunkTransaction = reattached[2].Hash
	// one transaction of C never reaches the node
	broken := buildBundle("C", []string{"MINE", "THEM", "THEM"}, []int64{0, 0, 0})

	ledger := newFakeLedger(confirmed, incoming, reattached, Bundle{broken[0], broken[2]})
	ledger.network = append(ledger.network, Transaction{Hash: "Z", Bundle: testEmptyHash, Broadcasted: true})
	ledger.included[incoming[0].Hash] = true
	e := newTestEngine(ledger)

	diff := []string{incoming[1].Hash, broken[0].Hash, "Z"}
	existing := []Transaction(confirmed)

	got, err := e.SyncTransactions(ctx, diff, existing)
	require.NoError(t, err)
	require.ElementsMatch(t,
		append(append(hashesOf(confirmed), hashesOf(incoming)...), hashesOf(reattached)...),
		hashesOf(got))
	require.Equal(t, hashesOf(confirmed), hashesOf(got[:2]))

	states := persistenceByHash(got)
	for _, tx := range incoming {
		require.True(t, states[tx.Hash])
	}
	for _, tx := range reattached {
		require.False(t, states[tx.Hash])
	}
	for _, tx := range got {
		require.True(t, tx.Broadcasted)
	}
	// stored transactions are never touched
	require.False(t, ledger.network[3].Persistence)

	again, err := e.SyncTransactions(ctx, diff, existing)
	require.NoError(t, err)
	require.Equal(t, got, again)

	// feeding the result back changes nothing
	next, err := e.SyncTransactions(ctx, diff, got)
	require.NoError(t, err)
	require.Equal(t, got, next)
}

func TestSyncTransactionsEmptyDiff(t *testing.T) {
	ledger := newFakeLedger()
	e := newTestEngine(ledger)
	b := buildBundle("A", []string{"MINE"}, []int64{0})
	ledger.included[b[0].Hash] = true

	got, err := e.SyncTransactions(context.Background(), nil, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Persistence)
	require.False(t, b[0].Persistence)
}

func TestAssignInclusionStatesToBundles(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	e := newTestEngine(ledger)

	got, err := e.AssignInclusionStatesToBundles(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, got)

	b1 := buildBundle("B1", []string{"A1", "A2"}, []int64{0, 0})
	b2 := buildBundle("B2", []string{"A1"}, []int64{0})
	ledger.included[b2[0].Hash] = true

	got, err = e.AssignInclusionStatesToBundles(ctx, []Bundle{b1, b2})
	require.NoError(t, err)
	require.False(t, got[0][0].Persistence)
	require.False(t, got[0][1].Persistence)
	require.True(t, got[1][0].Persistence)
	require.Equal(t, []string{b1[0].Hash, b2[0].Hash}, ledger.inclusionCalls[0])

	_, err = e.AssignInclusionStatesToBundles(ctx, []Bundle{b1[1:]})
	require.True(t, errors.Is(err, ErrInvalidBundlesProvided))

	ledger.dropOneState = true
	_, err = e.AssignInclusionStatesToBundles(ctx, []Bundle{b1, b2})
	require.True(t, errors.Is(err, ErrInclusionStatesSizeMismatch))
}

func TestCategoriseInclusionStatesByBundleHash(t *testing.T) {
	tails := []Transaction{
		{Hash: "T1", Bundle: "B1"},
		{Hash: "T2", Bundle: "B1"},
		{Hash: "T3", Bundle: "B2"},
	}
	_, err := CategoriseInclusionStatesByBundleHash(tails, []bool{true})
	require.True(t, errors.Is(err, ErrInclusionStatesSizeMismatch))

	got, err := CategoriseInclusionStatesByBundleHash(tails, []bool{false, true, false})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"B1": true, "B2": false}, got)
}
