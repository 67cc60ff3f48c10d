package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/unioproject/tanglewallet/lib/transfers"
	"github.com/unioproject/tanglewallet/tbwallet/wallet_update"
)

var (
	ownAddress   = strings.Repeat("A", 81)
	otherAddress = strings.Repeat("B", 81)
)

type fakeLedger struct {
	mutex      sync.Mutex
	txs        []transfers.Transaction
	addressTxs []string
	included   bool
	balance    uint64
	promotions int
	findErr    error
}

func (f *fakeLedger) FindTransactionHashes(context.Context, []string) ([]string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.addressTxs, f.findErr
}

func (f *fakeLedger) GetTransactionsObjects(_ context.Context, hashes []string) ([]transfers.Transaction, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ret := make([]transfers.Transaction, 0)
	for _, h := range hashes {
		for _, tx := range f.txs {
			if tx.Hash == h {
				ret = append(ret, tx)
			}
		}
	}
	return ret, nil
}

func (f *fakeLedger) FindTransactionObjects(_ context.Context, bundles []string) ([]transfers.Transaction, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ret := make([]transfers.Transaction, 0)
	for _, b := range bundles {
		for _, tx := range f.txs {
			if tx.Bundle == b {
				ret = append(ret, tx)
			}
		}
	}
	return ret, nil
}

func (f *fakeLedger) GetLatestInclusion(_ context.Context, hashes []string) ([]bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ret := make([]bool, len(hashes))
	for i := range ret {
		ret[i] = f.included
	}
	return ret, nil
}

func (f *fakeLedger) GetBalances(_ context.Context, addresses []string, _ bool) ([]uint64, error) {
	ret := make([]uint64, len(addresses))
	for i := range ret {
		ret[i] = f.balance
	}
	return ret, nil
}

func (f *fakeLedger) GetTransactionsToApprove(context.Context) (*transfers.TransactionsToApprove, error) {
	return &transfers.TransactionsToApprove{TrunkTransaction: "TRUNK", BranchTransaction: "BRANCH"}, nil
}

func (f *fakeLedger) AttachToTangle(context.Context, string, string, []string) (*transfers.AttachResult, error) {
	return nil, errors.New("not supported")
}

func (f *fakeLedger) StoreAndBroadcast(context.Context, []string) error {
	return nil
}

func (f *fakeLedger) IsPromotable(context.Context, string) (bool, error) {
	return true, nil
}

func (f *fakeLedger) PromoteTransaction(context.Context, string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.promotions++
	f.included = true
	return nil
}

func (f *fakeLedger) ReplayBundle(context.Context, string) ([]transfers.Transaction, error) {
	return nil, errors.New("not supported")
}

type memStore struct {
	mutex sync.Mutex
	pools map[string][]transfers.Transaction
}

func (s *memStore) Load(_ context.Context, account string) ([]transfers.Transaction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]transfers.Transaction{}, s.pools[account]...), nil
}

func (s *memStore) Replace(_ context.Context, account string, txs []transfers.Transaction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pools[account] = append([]transfers.Transaction{}, txs...)
	return nil
}

type updateSink struct {
	mutex   sync.Mutex
	updates []*wallet_update.WalletUpdate
}

func (s *updateSink) publish(upd *wallet_update.WalletUpdate) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.updates = append(s.updates, upd)
}

func (s *updateSink) ofType(t wallet_update.WalletUpdateType) []*wallet_update.WalletUpdate {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ret := make([]*wallet_update.WalletUpdate, 0)
	for _, upd := range s.updates {
		if upd.UpdType == t {
			ret = append(ret, upd)
		}
	}
	return ret
}

func valueBundle() []transfers.Transaction {
	ts := time.Now().Add(-time.Minute).UnixNano() / int64(time.Millisecond)
	return []transfers.Transaction{
		{Hash: "T0", Address: ownAddress, Value: -10, CurrentIndex: 0, LastIndex: 1, Bundle: "B1",
			TrunkTransaction: "T1", AttachmentTimestamp: ts},
		{Hash: "T1", Address: otherAddress, Value: 10, CurrentIndex: 1, LastIndex: 1, Bundle: "B1",
			TrunkTransaction: "TRUNK", AttachmentTimestamp: ts},
	}
}

func newTestAccount(t *testing.T, params *accountParamsYAML, ledger *fakeLedger, store *memStore) (*Account, *updateSink) {
	if len(params.Addresses) == 0 {
		params.Addresses = []string{ownAddress}
	}
	sink := &updateSink{}
	acc := newAccount("test", params, ledger, store, logging.MustGetLogger("test"), sink.publish)
	acc.engine.Validator = transfers.BundleValidatorFunc(func(transfers.Bundle) bool { return true })
	require.Len(t, acc.uid, UID_LEN)
	return acc, sink
}

func TestAccountSyncAndPromote(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{txs: valueBundle(), addressTxs: []string{"T0"}, balance: 10}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{}, ledger, store)

	require.NoError(t, acc.syncOnce(ctx))
	syncs := sink.ofType(wallet_update.WALLET_UPD_SYNC)
	require.Len(t, syncs, 1)
	require.Equal(t, 2, syncs[0].NumTransactions)
	require.Equal(t, 2, syncs[0].NumNewTransactions)
	require.Equal(t, 1, syncs[0].NumBundles)
	require.Equal(t, 1, syncs[0].NumPending)
	require.Len(t, syncs[0].Recent, 1)
	require.Len(t, store.pools[acc.uid], 2)

	require.Eventually(t, func() bool {
		return len(sink.ofType(wallet_update.WALLET_UPD_CONFIRM)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	acc.wg.Wait()
	require.Len(t, sink.ofType(wallet_update.WALLET_UPD_PROMOTE), 1)
	require.Equal(t, 1, ledger.promotions)
	confirm := sink.ofType(wallet_update.WALLET_UPD_CONFIRM)[0]
	require.Equal(t, "B1", confirm.Bundle)
	require.Equal(t, "T0", confirm.PromoTail)
	// confirmation requests another sync
	require.Len(t, acc.chTrigger, 1)

	require.NoError(t, acc.syncOnce(ctx))
	syncs = sink.ofType(wallet_update.WALLET_UPD_SYNC)
	require.Len(t, syncs, 2)
	require.Equal(t, 0, syncs[1].NumNewTransactions)
	require.Equal(t, 0, syncs[1].NumPending)
	for _, tx := range store.pools[acc.uid] {
		require.True(t, tx.Persistence)
	}
	acc.wg.Wait()
	require.Equal(t, 1, ledger.promotions)
}

func TestAccountSkipsNotFundedBundle(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{txs: valueBundle(), addressTxs: []string{"T0"}, balance: 5}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{}, ledger, store)

	require.NoError(t, acc.syncOnce(ctx))
	acc.wg.Wait()
	require.True(t, acc.isSkipped("B1"))
	require.Equal(t, 0, ledger.promotions)
	require.Empty(t, sink.ofType(wallet_update.WALLET_UPD_PROMOTE))

	ledger.balance = 10
	require.NoError(t, acc.syncOnce(ctx))
	acc.wg.Wait()
	require.Equal(t, 0, ledger.promotions)
}

func TestAccountPromoteDisabled(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{txs: valueBundle(), addressTxs: []string{"T0"}, balance: 10}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{PromoteDisable: true}, ledger, store)

	require.NoError(t, acc.syncOnce(ctx))
	acc.wg.Wait()
	require.Equal(t, 0, ledger.promotions)
	require.Len(t, sink.updates, 1)
	require.False(t, acc.confirmer.IsConfirming("B1"))
}

func TestAccountLoadsStoredPool(t *testing.T) {
	ctx := context.Background()
	stored := valueBundle()
	for i := range stored {
		stored[i].Broadcasted = true
		stored[i].Persistence = true
	}
	ledger := &fakeLedger{txs: valueBundle(), addressTxs: []string{"T0"}}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{}, ledger, store)
	store.pools[acc.uid] = stored

	require.NoError(t, acc.syncOnce(ctx))
	syncs := sink.ofType(wallet_update.WALLET_UPD_SYNC)
	require.Len(t, syncs, 1)
	require.Equal(t, 2, syncs[0].NumTransactions)
	require.Equal(t, 0, syncs[0].NumNewTransactions)
	require.Equal(t, 0, syncs[0].NumPending)
}

func TestAccountSyncError(t *testing.T) {
	ledger := &fakeLedger{findErr: errors.New("node down")}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{}, ledger, store)

	require.Error(t, acc.syncOnce(context.Background()))
	require.Empty(t, sink.updates)
}

func TestAccountRunStopsOnCancel(t *testing.T) {
	ledger := &fakeLedger{}
	store := &memStore{pools: make(map[string][]transfers.Transaction)}
	acc, sink := newTestAccount(t, &accountParamsYAML{SyncEverySec: 3600}, ledger, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		acc.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(sink.ofType(wallet_update.WALLET_UPD_SYNC)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	acc.Trigger()
	require.Eventually(t, func() bool {
		return len(sink.ofType(wallet_update.WALLET_UPD_SYNC)) == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("account didn't stop")
	}
}
