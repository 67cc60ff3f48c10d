package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	. "github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/confirmer"
	"github.com/unioproject/tanglewallet/lib/iotacodec"
	"github.com/unioproject/tanglewallet/lib/multiapi"
	"github.com/unioproject/tanglewallet/lib/transfers"
	"github.com/unioproject/tanglewallet/lib/utils"
	"github.com/unioproject/tanglewallet/tbwallet/wallet_update"
)

// walletLedger is the ledger as seen by the account: the engine's needs plus address scan
type walletLedger interface {
	transfers.Ledger
	FindTransactionHashes(ctx context.Context, addresses []string) ([]string, error)
}

type walletStore interface {
	Load(ctx context.Context, account string) ([]transfers.Transaction, error)
	Replace(ctx context.Context, account string, txs []transfers.Transaction) error
}

const syncDurationsWindow = 10

type Account struct {
	name          string
	uid           string
	params        *accountParamsYAML
	log           *logging.Logger
	ledger        walletLedger
	engine        *transfers.Engine
	confirmer     *confirmer.Confirmer
	store         walletStore
	addressData   []transfers.AddressData
	addresses     []string
	chTrigger     chan struct{}
	syncDurations *utils.RingArray
	publish       func(*wallet_update.WalletUpdate)
	wg            sync.WaitGroup

	// owned by the sync loop
	txs    []transfers.Transaction
	loaded bool

	mutex sync.Mutex
	skip  map[string]error
}

func NewAccount(name string, store walletStore) (*Account, error) {
	params, err := getAccountParams(name)
	if err != nil {
		return nil, err
	}
	var logger *logging.Logger
	if Config.Logging.LogConsoleOnly || !Config.Logging.LogAccountsSeparately {
		logger = log
		log.Infof("Separate logger for the account won't be created")
	} else {
		logger, err = createChildLogger(name, &masterLoggingBackend)
		if err != nil {
			return nil, err
		}
	}
	ledger, err := createLedger(params)
	if err != nil {
		return nil, err
	}
	ret := newAccount(name, params, ledger, store, logger, publishUpdate)
	ret.log.Infof("Created account %v with %d addresses. Promo tag: %v Promo address: %v, auto promotion: %v, PoW: %v",
		ret.GetLongName(), len(ret.addresses), ledger.PromoteTag, ledger.PromoteAddress, !params.PromoteDisable, ledger.PoWName())
	return ret, nil
}

func createLedger(params *accountParamsYAML) (*multiapi.Ledger, error) {
	iotaMultiAPI, err := multiapi.New(params.IOTANode, params.TimeoutAPI)
	if err != nil {
		return nil, err
	}
	iotaMultiAPIgTTA, err := multiapi.New(params.IOTANodeTipsel, params.TimeoutTipsel)
	if err != nil {
		return nil, err
	}
	iotaMultiAPIaTT, err := multiapi.New(params.IOTANodePoW, params.TimeoutPoW)
	if err != nil {
		return nil, err
	}
	return multiapi.NewLedger(multiapi.LedgerParams{
		API:             iotaMultiAPI,
		APIgTTA:         iotaMultiAPIgTTA,
		APIaTT:          iotaMultiAPIaTT,
		Depth:           params.Depth,
		MWM:             params.MWM,
		PromoteAddress:  Hash(params.AddressPromote),
		PromoteTag:      Trytes(params.TxTagPromote),
		InclusionQuorum: params.QuorumInclusion,
		AEC:             AEC,
		LocalPoW:        params.LocalPoW,
	})
}

func newAccount(name string, params *accountParamsYAML, ledger walletLedger, store walletStore,
	logger *logging.Logger, publish func(*wallet_update.WalletUpdate)) *Account {
	addressData := make([]transfers.AddressData, len(params.Addresses))
	addresses := make([]string, len(params.Addresses))
	for i, a := range params.Addresses {
		if len(a) > HashTrytesSize {
			a = a[:HashTrytesSize]
		}
		addresses[i] = a
		addressData[i] = transfers.AddressData{Address: a, Index: params.Index0 + uint64(i)}
	}
	return &Account{
		name:   name,
		uid:    params.GetUID(),
		params: params,
		log:    logger,
		ledger: ledger,
		engine: transfers.NewEngine(transfers.EngineParams{
			Ledger:           ledger,
			Validator:        iotacodec.Validator,
			Codec:            iotacodec.Codec{},
			OutputsThreshold: params.OutputsThreshold,
			Log:              logger,
		}),
		confirmer: confirmer.NewConfirmer(confirmer.ConfirmerParams{
			Ledger:          ledger,
			AttemptsLimit:   params.PromotionsLimit,
			PromoteEverySec: params.PromoteEverySec,
			Log:             logger,
		}),
		store:         store,
		addressData:   addressData,
		addresses:     addresses,
		chTrigger:     make(chan struct{}, 1),
		syncDurations: utils.NewRingArray(syncDurationsWindow),
		publish:       publish,
		skip:          make(map[string]error),
	}
}

func (acc *Account) GetLongName() string {
	return fmt.Sprintf("%v(%v)", acc.uid, acc.name)
}

func (acc *Account) Addresses() []string {
	return acc.addresses
}

// Trigger requests a sync cycle. Requests coming while one is pending are merged
func (acc *Account) Trigger() {
	select {
	case acc.chTrigger <- struct{}{}:
	default:
	}
}

// Run syncs the account until ctx is cancelled. Cycles never overlap
func (acc *Account) Run(ctx context.Context) {
	acc.log.Infof("Start running account %v. Sync every %v sec", acc.GetLongName(), acc.params.SyncEverySec)
	defer acc.wg.Wait()
	for {
		if err := acc.syncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			acc.log.Errorf("%v: sync failed: %v", acc.GetLongName(), err)
		}
		select {
		case <-ctx.Done():
		case <-acc.chTrigger:
			acc.log.Debugf("%v: sync triggered", acc.GetLongName())
			continue
		case <-time.After(time.Duration(acc.params.SyncEverySec) * time.Second):
			continue
		}
		break
	}
	acc.log.Infof("Stopped account %v", acc.GetLongName())
}

func (acc *Account) newUpdate(updType wallet_update.WalletUpdateType) *wallet_update.WalletUpdate {
	return &wallet_update.WalletUpdate{
		Version:     Version,
		AccountUID:  acc.uid,
		AccountName: acc.name,
		UpdType:     updType,
		UpdateTs:    utils.UnixMsNow(),
	}
}

func (acc *Account) ownHashes() []string {
	own := make(map[string]struct{}, len(acc.addresses))
	for _, a := range acc.addresses {
		own[a] = struct{}{}
	}
	ret := make([]string, 0, len(acc.txs))
	for i := range acc.txs {
		if _, ok := own[acc.txs[i].Address]; ok {
			ret = append(ret, acc.txs[i].Hash)
		}
	}
	return ret
}

func (acc *Account) syncOnce(ctx context.Context) error {
	started := utils.UnixMsNow()
	if !acc.loaded {
		txs, err := acc.store.Load(ctx, acc.uid)
		if err != nil {
			return errors.Wrap(err, "load stored transactions")
		}
		acc.txs = txs
		acc.loaded = true
		acc.log.Infof("%v: loaded %d stored transactions", acc.GetLongName(), len(txs))
	}
	acc.retryNotBroadcasted(ctx)

	remote, err := acc.ledger.FindTransactionHashes(ctx, acc.addresses)
	if err != nil {
		return errors.Wrap(err, "findTransactions")
	}
	diff := transfers.GetTransactionsDiff(acc.ownHashes(), remote)
	txs, err := acc.engine.SyncTransactions(ctx, diff, acc.txs)
	if err != nil {
		return errors.Wrap(err, "syncTransactions")
	}
	if err = acc.store.Replace(ctx, acc.uid, txs); err != nil {
		return err
	}
	numNew := utils.Max(0, len(txs)-len(acc.txs))
	acc.txs = txs

	normalised := acc.engine.MapNormalisedTransactions(txs, acc.addressData)
	sorted := make([]transfers.NormalisedBundle, 0, len(normalised))
	numPending := 0
	for _, nb := range normalised {
		sorted = append(sorted, nb)
		if !nb.Persistence {
			numPending++
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AttachmentTimestamp > sorted[j].AttachmentTimestamp
	})
	dur := utils.SinceUnixMs(started)
	acc.syncDurations.Push(dur)

	upd := acc.newUpdate(wallet_update.WALLET_UPD_SYNC)
	upd.NumTransactions = len(txs)
	upd.NumNewTransactions = numNew
	upd.NumBundles = len(normalised)
	upd.NumPending = numPending
	upd.SyncMsec = dur
	upd.Recent = transfers.FormatRelevantRecentTransactions(sorted, acc.addresses)
	acc.publish(upd)
	acc.log.Infof("%v: synced in %v msec (avg %v, max %v). Diff: %d, new tx: %d, bundles: %d, pending: %d",
		acc.GetLongName(), dur, acc.syncDurations.Avg(), acc.syncDurations.Max(), len(diff), numNew, len(normalised), numPending)

	if acc.params.PromoteDisable {
		return nil
	}
	return acc.confirmPending(ctx, normalised)
}

// retryNotBroadcasted pushes to the network bundles of the pool which never reached it
func (acc *Account) retryNotBroadcasted(ctx context.Context) {
	pending := make(map[string][]transfers.Transaction)
	rest := make([]transfers.Transaction, 0, len(acc.txs))
	for _, tx := range acc.txs {
		if tx.Broadcasted {
			rest = append(rest, tx)
			continue
		}
		pending[tx.Bundle] = append(pending[tx.Bundle], tx)
	}
	if len(pending) == 0 {
		return
	}
	for bundleHash, txs := range pending {
		res, err := acc.engine.RetryFailedTransaction(ctx, transfers.SortTransactionsByIndex(txs, true))
		if err != nil {
			acc.log.Errorf("%v: retry of bundle %v failed: %v", acc.GetLongName(), bundleHash, err)
			rest = append(rest, txs...)
			continue
		}
		for _, tx := range res.Transactions {
			tx.Broadcasted = true
			rest = append(rest, tx)
		}
		upd := acc.newUpdate(wallet_update.WALLET_UPD_RETRY)
		upd.Bundle = bundleHash
		acc.publish(upd)
		acc.log.Infof("%v: bundle %v broadcasted after retry", acc.GetLongName(), bundleHash)
	}
	acc.txs = rest
}

func (acc *Account) skipBundle(bundleHash string, err error) {
	acc.mutex.Lock()
	defer acc.mutex.Unlock()
	acc.skip[bundleHash] = err
}

func (acc *Account) isSkipped(bundleHash string) bool {
	acc.mutex.Lock()
	defer acc.mutex.Unlock()
	_, ok := acc.skip[bundleHash]
	return ok
}

// pendingBundles are broadcasted and not yet confirmed, one instance per bundle hash
func (acc *Account) pendingBundles() []transfers.Bundle {
	seen := make(map[string]struct{})
	ret := make([]transfers.Bundle, 0)
	for _, b := range transfers.ConstructBundlesFromTransactions(acc.txs) {
		if len(b) == 0 || b[0].Persistence || !b[0].Broadcasted {
			continue
		}
		h := b.Hash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if acc.isSkipped(h) || acc.confirmer.IsConfirming(h) {
			continue
		}
		ret = append(ret, b)
	}
	return ret
}

func (acc *Account) confirmPending(ctx context.Context, normalised map[string]transfers.NormalisedBundle) error {
	candidates := transfers.FilterZeroValueBundles(acc.engine.FilterInvalidBundles(acc.pendingBundles()))
	if len(candidates) == 0 {
		return nil
	}
	funded, err := acc.engine.FilterNonFundedBundles(ctx, candidates, acc.params.QuorumBalances)
	if err != nil {
		return errors.Wrap(err, "filterNonFundedBundles")
	}
	fundedHashes := make(map[string]struct{}, len(funded))
	for _, b := range funded {
		fundedHashes[b.Hash()] = struct{}{}
	}
	for _, b := range candidates {
		if _, ok := fundedHashes[b.Hash()]; !ok {
			acc.log.Warningf("%v: bundle %v is no longer funded. Skipped", acc.GetLongName(), b.Hash())
			acc.skipBundle(b.Hash(), transfers.ErrBundleNoLongerFunded)
		}
	}
	for _, b := range funded {
		nb, ok := normalised[b.Hash()]
		if !ok || len(nb.TailTransactions) == 0 {
			continue
		}
		acc.startConfirmer(ctx, b.Hash(), nb.TailTransactions)
	}
	return nil
}

func (acc *Account) startConfirmer(ctx context.Context, bundleHash string, tails []transfers.TailTransaction) {
	chUpdates, cancel, err := acc.confirmer.StartConfirmerTask(ctx, bundleHash, tails)
	if err != nil {
		acc.log.Errorf("%v: can't start confirmer for %v: %v", acc.GetLongName(), bundleHash, err)
		return
	}
	acc.log.Infof("%v: started confirmer for bundle %v with %d tail(s)", acc.GetLongName(), bundleHash, len(tails))
	acc.wg.Add(1)
	go func() {
		defer acc.wg.Done()
		defer cancel()
		for upd := range chUpdates {
			acc.processConfirmerUpdate(upd)
		}
	}()
}

var confirmerUpdateTypes = map[confirmer.UpdateType]wallet_update.WalletUpdateType{
	confirmer.UPD_NO_ACTION: wallet_update.WALLET_UPD_NO_ACTION,
	confirmer.UPD_REATTACH:  wallet_update.WALLET_UPD_REATTACH,
	confirmer.UPD_PROMOTE:   wallet_update.WALLET_UPD_PROMOTE,
	confirmer.UPD_CONFIRM:   wallet_update.WALLET_UPD_CONFIRM,
	confirmer.UPD_FAILED:    wallet_update.WALLET_UPD_FAILED,
}

func (acc *Account) processConfirmerUpdate(cupd *confirmer.ConfirmerUpdate) {
	updType, ok := confirmerUpdateTypes[cupd.UpdateType]
	if !ok {
		updType = wallet_update.WALLET_UPD_UNDEF
	}
	upd := acc.newUpdate(updType)
	upd.UpdateTs = utils.UnixMs(cupd.UpdateTime)
	upd.Bundle = cupd.BundleHash
	upd.PromoTail = cupd.PromoteTailHash
	upd.NumAttaches = cupd.NumAttaches
	upd.NumPromotions = cupd.NumPromotions
	upd.Attempt = cupd.Attempt
	upd.DurationMsec = cupd.DurationMsec
	if cupd.Err != nil {
		upd.Err = cupd.Err.Error()
	}
	acc.publish(upd)

	switch cupd.UpdateType {
	case confirmer.UPD_CONFIRM:
		acc.log.Infof("%v: bundle %v confirmed in %v msec. Promotions: %d, reattachments: %d",
			acc.GetLongName(), cupd.BundleHash, cupd.DurationMsec, cupd.NumPromotions, cupd.NumAttaches)
		acc.Trigger()
	case confirmer.UPD_FAILED:
		if transfers.IsFatalTransactionError(cupd.Err) {
			acc.log.Errorf("%v: bundle %v skipped for the rest of the run: %v", acc.GetLongName(), cupd.BundleHash, cupd.Err)
			acc.skipBundle(cupd.BundleHash, cupd.Err)
		} else {
			acc.log.Errorf("%v: confirmer for bundle %v failed: %v", acc.GetLongName(), cupd.BundleHash, cupd.Err)
		}
	case confirmer.UPD_REATTACH:
		acc.log.Infof("%v: bundle %v reattached, new tail %v", acc.GetLongName(), cupd.BundleHash, cupd.PromoteTailHash)
		acc.Trigger()
	default:
		acc.log.Debugf("%v: '%v' for bundle %v, attempt %d", acc.GetLongName(),
			cupd.UpdateType.ToString(), cupd.BundleHash, cupd.Attempt)
	}
}
