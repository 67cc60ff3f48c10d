package transfers

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIsFundedBundle(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	e := newTestEngine(ledger)

	_, err := e.IsFundedBundle(ctx, nil, false)
	require.True(t, errors.Is(err, ErrEmptyBundleProvided))

	b := buildBundle("B1", []string{"THEM", "a1", "a1"}, []int64{100, -100, 0})
	ledger.balances["a1"] = 50
	funded, err := e.IsFundedBundle(ctx, b, false)
	require.NoError(t, err)
	require.False(t, funded)
	require.Equal(t, []string{"a1"}, ledger.balanceQueries[0])

	ledger.balances["a1"] = 100
	funded, err = e.IsFundedBundle(ctx, b, true)
	require.NoError(t, err)
	require.True(t, funded)

	split := buildBundle("B2", []string{"THEM", "a1", "a2", "REM"}, []int64{100, -60, -50, 10})
	ledger.balances["a1"] = 60
	ledger.balances["a2"] = 40
	funded, err = e.IsFundedBundle(ctx, split, false)
	require.NoError(t, err)
	require.False(t, funded)

	zero := buildBundle("B3", []string{"THEM"}, []int64{0})
	funded, err = e.IsFundedBundle(ctx, zero, false)
	require.NoError(t, err)
	require.True(t, funded)
}

func TestFilterZeroValueBundles(t *testing.T) {
	value := buildBundle("B1", []string{"THEM", "a1"}, []int64{1, -1})
	zero := buildBundle("B2", []string{"THEM"}, []int64{0})
	require.Equal(t, []Bundle{value}, FilterZeroValueBundles([]Bundle{zero, value}))
}

func TestFilterNonFundedBundles(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	e := newTestEngine(ledger)

	_, err := e.FilterNonFundedBundles(ctx, nil, false)
	require.True(t, errors.Is(err, ErrEmptyBundlesProvided))

	funded := buildBundle("B1", []string{"THEM", "a1", "a1"}, []int64{10, -10, 0})
	notFunded := buildBundle("B2", []string{"THEM", "a2", "a2"}, []int64{10, -10, 0})
	zero := buildBundle("B3", []string{"THEM"}, []int64{0})
	ledger.balances["a1"] = 10

	got, err := e.FilterNonFundedBundles(ctx, []Bundle{notFunded, zero, funded}, true)
	require.NoError(t, err)
	require.Equal(t, []Bundle{funded}, got)
	require.Len(t, ledger.balanceQueries, 2)
}
