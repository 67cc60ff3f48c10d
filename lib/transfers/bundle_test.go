package transfers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructBundle(t *testing.T) {
	b := buildBundle("B1", []string{"A1", "A2", "A3", "A4"}, []int64{-10, 4, 0, 6})
	noise := buildBundle("B2", []string{"X1", "X2"}, []int64{5, 0})

	// shuffled pool with a foreign bundle around
	pool := []Transaction{noise[1], b[3], b[1], noise[0], b[2], b[0]}
	got := ConstructBundle(b[0], pool)
	require.Equal(t, b, got)
}

func TestConstructBundleSingle(t *testing.T) {
	b := buildBundle("B1", []string{"A1"}, []int64{0})
	require.Equal(t, b, ConstructBundle(b[0], nil))
}

func TestConstructBundlePartial(t *testing.T) {
	b := buildBundle("B1", []string{"A1", "A2", "A3"}, []int64{-10, 4, 6})
	got := ConstructBundle(b[0], []Transaction{b[0], b[2]})
	require.Equal(t, Bundle{b[0]}, got)

	got = ConstructBundle(b[0], []Transaction{b[0], b[1]})
	require.Equal(t, Bundle{b[0], b[1]}, got)
}

func TestConstructBundleStopsAtForeignBundle(t *testing.T) {
	b := buildBundle("B1", []string{"A1", "A2"}, []int64{-1, 1})
	other := b[1]
	other.Bundle = "OTHER"
	got := ConstructBundle(b[0], []Transaction{b[0], other})
	require.Len(t, got, 1)
}

func TestConstructBundleCyclicReferencesTerminate(t *testing.T) {
	b := buildBundle("B1", []string{"A1", "A2", "A3", "A4"}, []int64{0, 0, 0, 0})
	// index 2 points back to index 1, the last transaction is never reached
	b[2].TrunkTransaction = b[1].Hash
	got := ConstructBundle(b[0], b)
	require.LessOrEqual(t, len(got), int(b[0].LastIndex)+2)
}

func TestConstructBundlesFromTransactions(t *testing.T) {
	require.Empty(t, ConstructBundlesFromTransactions(nil))

	sent := buildBundle("B1", []string{"A1", "A2"}, []int64{-3, 3})
	failed := buildBundle("B2", []string{"A1", "A2", "A3"}, []int64{-5, 2, 3})
	for i := range failed {
		failed[i].Broadcasted = false
		// references of transactions that were never attached are meaningless
		failed[i].TrunkTransaction = testEmptyHash
	}
	pool := append(append([]Transaction{}, failed...), sent...)

	bundles := ConstructBundlesFromTransactions(pool)
	require.Len(t, bundles, 2)
	require.Equal(t, sent, bundles[0])
	require.Equal(t, failed, bundles[1])
}

func TestIsBundleTraversable(t *testing.T) {
	b := buildBundle("B1", []string{"A1", "A2", "A3"}, []int64{-10, 4, 6})
	require.True(t, IsBundleTraversable(b, trunkTip, branchTip))
	require.False(t, IsBundleTraversable(b, branchTip, trunkTip))
	require.False(t, IsBundleTraversable(nil, trunkTip, branchTip))

	broken := b.clone()
	broken[0].TrunkTransaction = "SOMETHINGELSE"
	require.False(t, IsBundleTraversable(broken, trunkTip, branchTip))

	wrongBranch := b.clone()
	wrongBranch[1].BranchTransaction = branchTip
	require.False(t, IsBundleTraversable(wrongBranch, trunkTip, branchTip))
}

func TestIsBundle(t *testing.T) {
	e := newTestEngine(nil)
	b := buildBundle("B1", []string{"A1", "A2", "A3"}, []int64{-10, 4, 6})
	reversed := Bundle{b[2], b[1], b[0]}
	require.True(t, e.IsBundle(reversed))
	require.False(t, e.IsBundle(b[:2]))
	require.False(t, e.IsBundle(nil))

	panicking := NewEngine(EngineParams{Validator: BundleValidatorFunc(func(Bundle) bool {
		panic("boom")
	})})
	require.False(t, panicking.IsBundle(b))
}

func TestFilterInvalidBundles(t *testing.T) {
	e := newTestEngine(nil)
	good := buildBundle("B1", []string{"A1", "A2"}, []int64{-1, 1})
	bad := buildBundle("B2", []string{"A1", "A2", "A3"}, []int64{-1, 1, 0})[:2]
	require.Equal(t, []Bundle{good}, e.FilterInvalidBundles([]Bundle{bad, good}))
}
