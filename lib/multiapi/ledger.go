package multiapi

import (
	"context"
	"strings"
	"time"

	. "github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/checksum"
	"github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/iotacodec"
	"github.com/unioproject/tanglewallet/lib/transfers"
	"github.com/unioproject/tanglewallet/lib/utils"
)

const (
	maxTxHashesForGetTrytes = 50  // max number of hashes in one call to GetTrytes
	maxTxHashesForGLI       = 100 // max number of hashes in one call to GetLatestInclusion
	DefaultGTTADepth        = 3
	DefaultPromoteTag       = "TANGLEWALLET"
)

var all9 = Trytes(strings.Repeat("9", consts.HashTrytesSize))

type LedgerParams struct {
	API MultiAPI
	// separate endpoints for getTransactionsToApprove and attachToTangle. API is used if empty
	APIgTTA MultiAPI
	APIaTT  MultiAPI
	Depth   uint64
	MWM     uint64
	// address and tag of promotion transactions
	PromoteAddress Hash
	PromoteTag     Trytes
	// inclusion states are confirmed by majority of endpoints
	InclusionQuorum bool
	AEC             utils.ErrorCounter
	// proof of work is done locally transaction by transaction instead of by APIaTT
	LocalPoW bool
}

// Ledger implements transfers.Ledger over the multi endpoint node API
type Ledger struct {
	LedgerParams
	codec   iotacodec.Codec
	pow     *transfers.ProofOfWork
	powName string
}

var _ transfers.Ledger = &Ledger{}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if len(params.API) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	if len(params.APIgTTA) == 0 {
		params.APIgTTA = params.API
	}
	if len(params.APIaTT) == 0 {
		params.APIaTT = params.API
	}
	if params.Depth == 0 {
		params.Depth = DefaultGTTADepth
	}
	if params.MWM == 0 {
		params.MWM = transfers.DefaultMinWeightMagnitude
	}
	if params.PromoteAddress == "" {
		params.PromoteAddress = all9
	}
	if len(params.PromoteAddress) == consts.HashTrytesSize {
		withChecksum, err := checksum.AddChecksum(params.PromoteAddress, true, consts.AddressChecksumTrytesSize)
		if err != nil {
			return nil, errors.Wrapf(err, "promote address %v", params.PromoteAddress)
		}
		params.PromoteAddress = withChecksum
	}
	if params.PromoteTag == "" {
		params.PromoteTag = DefaultPromoteTag
	}
	if params.AEC == nil {
		params.AEC = &utils.DummyAEC{}
	}
	ret := &Ledger{LedgerParams: params}
	ret.powName, ret.pow = iotacodec.NewProofOfWork(ret.attachRemote)
	if !params.LocalPoW {
		ret.powName = "remote"
	}
	return ret, nil
}

// PoWName is the name of the local PoW implementation or "remote"
func (l *Ledger) PoWName() string {
	return l.powName
}

// ledgerError maps node messages to errors known to the engine
func ledgerError(err error) error {
	if err == nil {
		return nil
	}
	if transfers.IsTransactionInconsistent(err) && !errors.Is(err, transfers.ErrTransactionIsInconsistent) {
		return errors.Wrap(transfers.ErrTransactionIsInconsistent, err.Error())
	}
	return err
}

func (l *Ledger) check(apiret *MultiCallRet, err error) error {
	if l.AEC.CheckError(apiret.Endpoint, err) {
		return ledgerError(err)
	}
	return nil
}

func toHashes(s []string) Hashes {
	ret := make(Hashes, len(s))
	for i := range s {
		ret[i] = Hash(s[i])
	}
	return ret
}

func toTrytes(s []string) []Trytes {
	ret := make([]Trytes, len(s))
	for i := range s {
		ret[i] = Trytes(s[i])
	}
	return ret
}

func fromTrytes(t []Trytes) []string {
	ret := make([]string, len(t))
	for i := range t {
		ret[i] = string(t[i])
	}
	return ret
}

func chunks(n, size int, fun func(from, to int) error) error {
	for i := 0; i < n; i += size {
		upper := i + size
		if upper > n {
			upper = n
		}
		if err := fun(i, upper); err != nil {
			return err
		}
	}
	return nil
}

// GetTransactionsObjects loads trytes in pieces and parses them. Unknown hashes are skipped
func (l *Ledger) GetTransactionsObjects(ctx context.Context, hashes []string) ([]transfers.Transaction, error) {
	ret := make([]transfers.Transaction, 0, len(hashes))
	err := chunks(len(hashes), maxTxHashesForGetTrytes, func(from, to int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var apiret MultiCallRet
		rawTrytes, err := l.API.GetTrytes(toHashes(hashes[from:to]), &apiret)
		if err = l.check(&apiret, err); err != nil {
			return err
		}
		if len(rawTrytes) != to-from {
			return errors.Errorf("getTrytes returned %d trytes for %d hashes", len(rawTrytes), to-from)
		}
		for i := range rawTrytes {
			if iotacodec.IsNotFound(string(rawTrytes[i])) {
				continue
			}
			tx, err := l.codec.AsTransaction(string(rawTrytes[i]), hashes[from+i])
			if err != nil {
				return errors.Wrap(transfers.ErrInvalidTransactionsProvided, err.Error())
			}
			ret = append(ret, *tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (l *Ledger) findTransactions(ctx context.Context, query FindTransactionsQuery) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var apiret MultiCallRet
	hashes, err := l.API.FindTransactions(query, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return nil, err
	}
	return fromTrytes(hashes), nil
}

func (l *Ledger) FindTransactionObjects(ctx context.Context, bundles []string) ([]transfers.Transaction, error) {
	if len(bundles) == 0 {
		return nil, nil
	}
	hashes, err := l.findTransactions(ctx, FindTransactionsQuery{Bundles: toHashes(bundles)})
	if err != nil {
		return nil, err
	}
	return l.GetTransactionsObjects(ctx, hashes)
}

// FindTransactionHashes returns hashes of all transactions touching the addresses
func (l *Ledger) FindTransactionHashes(ctx context.Context, addresses []string) ([]string, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	return l.findTransactions(ctx, FindTransactionsQuery{Addresses: toHashes(addresses)})
}

func (l *Ledger) GetLatestInclusion(ctx context.Context, hashes []string) ([]bool, error) {
	ret := make([]bool, 0, len(hashes))
	err := chunks(len(hashes), maxTxHashesForGLI, func(from, to int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var apiret MultiCallRet
		var states []bool
		var err error
		if l.InclusionQuorum {
			states, err = l.API.GetLatestInclusionQuorum(ctx, toHashes(hashes[from:to]), &apiret)
		} else {
			states, err = l.API.GetLatestInclusion(toHashes(hashes[from:to]), &apiret)
		}
		if err = l.check(&apiret, err); err != nil {
			return err
		}
		ret = append(ret, states...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (l *Ledger) GetBalances(ctx context.Context, addresses []string, withQuorum bool) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var apiret MultiCallRet
	var balances []uint64
	var err error
	if withQuorum {
		balances, err = l.API.GetBalancesQuorum(ctx, toHashes(addresses), &apiret)
	} else {
		balances, err = l.API.GetBalances(toHashes(addresses), &apiret)
	}
	if err = l.check(&apiret, err); err != nil {
		return nil, err
	}
	return balances, nil
}

func (l *Ledger) GetTransactionsToApprove(ctx context.Context) (*transfers.TransactionsToApprove, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var apiret MultiCallRet
	gttaResp, err := l.APIgTTA.GetTransactionsToApprove(l.Depth, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return nil, err
	}
	return &transfers.TransactionsToApprove{
		TrunkTransaction:  string(gttaResp.TrunkTransaction),
		BranchTransaction: string(gttaResp.BranchTransaction),
	}, nil
}

// AttachToTangle proves the payloads on top of trunk and branch.
// The result is ordered by ascending index
func (l *Ledger) AttachToTangle(ctx context.Context, trunk, branch string, payloads []string) (*transfers.AttachResult, error) {
	return transfers.PerformPow(ctx, l.pow, l.codec, payloads, trunk, branch, int(l.MWM), !l.LocalPoW)
}

// attachRemote sends the payloads to the node starting from the last index
func (l *Ledger) attachRemote(ctx context.Context, payloads []string, trunk, branch string, mwm int) (*transfers.AttachResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txs := make([]transfers.Transaction, len(payloads))
	for i, p := range payloads {
		tx, err := l.codec.AsTransaction(p, "")
		if err != nil {
			return nil, errors.Wrap(transfers.ErrInvalidTransactionsProvided, err.Error())
		}
		txs[i] = *tx
	}
	ordered := transfers.SortTransactionsByIndex(txs, false)
	trytes := make([]Trytes, len(ordered))
	for i := range ordered {
		p, err := l.codec.AsPayload(&ordered[i])
		if err != nil {
			return nil, err
		}
		trytes[i] = Trytes(p)
	}
	var apiret MultiCallRet
	attached, err := l.APIaTT.AttachToTangle(Hash(trunk), Hash(branch), uint64(mwm), trytes, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return nil, err
	}
	parsed, err := iotacodec.ParseTrytes(attached)
	if err != nil {
		return nil, err
	}
	ret := &transfers.AttachResult{
		Transactions: transfers.SortTransactionsByIndex(parsed, true),
	}
	ret.Payloads = make([]string, len(ret.Transactions))
	for i := range ret.Transactions {
		if ret.Payloads[i], err = l.codec.AsPayload(&ret.Transactions[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (l *Ledger) StoreAndBroadcast(ctx context.Context, payloads []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var apiret MultiCallRet
	err := l.API.StoreAndBroadcast(toTrytes(payloads), &apiret)
	return l.check(&apiret, err)
}

func (l *Ledger) IsPromotable(ctx context.Context, tail string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var apiret MultiCallRet
	promotable, err := l.API.IsPromotable(Hash(tail), &apiret)
	if err = l.check(&apiret, err); err != nil {
		return false, err
	}
	return promotable, nil
}

// checkConsistency treats a tail which is not solid yet as consistent
func (l *Ledger) checkConsistency(tail Hash) (bool, string, error) {
	var apiret MultiCallRet
	consistent, info, err := l.API.CheckConsistency(tail, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return false, "", err
	}
	if !consistent && strings.Contains(info, "not solid") {
		consistent = true
	}
	if !consistent {
		debugf("LEDGER: inconsistent tail %v. Reason: %v", tail, info)
	}
	return consistent, info, nil
}

// PromoteTransaction attaches a zero value promotion transaction referencing the tail by trunk
func (l *Ledger) PromoteTransaction(ctx context.Context, tail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	consistent, info, err := l.checkConsistency(Hash(tail))
	if err != nil {
		return err
	}
	if !consistent {
		return errors.Wrapf(transfers.ErrTransactionIsInconsistent, "tail %v: %v", tail, info)
	}
	spam := bundle.Transfers{{
		Address: l.PromoteAddress,
		Value:   0,
		Tag:     l.PromoteTag,
	}}
	ts := uint64(time.Now().Unix())
	var apiret MultiCallRet
	bundleTrytesPrep, err := l.API.PrepareTransfers(all9, spam, PrepareTransfersOptions{Timestamp: &ts}, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return err
	}
	gttaResp, err := l.APIgTTA.GetTransactionsToApprove(l.Depth, &apiret)
	if err = l.check(&apiret, err); err != nil {
		return err
	}
	var promo []string
	if l.LocalPoW {
		attached, err := l.AttachToTangle(ctx, tail, string(gttaResp.BranchTransaction), fromTrytes(bundleTrytesPrep))
		if err != nil {
			return err
		}
		promo = attached.Payloads
	} else {
		btrytes, err := l.APIaTT.AttachToTangle(Hash(tail), gttaResp.BranchTransaction, l.MWM, bundleTrytesPrep, &apiret)
		if err = l.check(&apiret, err); err != nil {
			return err
		}
		promo = fromTrytes(btrytes)
	}
	if err = l.StoreAndBroadcast(ctx, promo); err != nil {
		return err
	}
	debugf("LEDGER: promoted tail %v, PoW: %v", tail, l.powName)
	return nil
}

// ReplayBundle reattaches the bundle of the tail on top of fresh tips and broadcasts it
func (l *Ledger) ReplayBundle(ctx context.Context, tail string) ([]transfers.Transaction, error) {
	tailTxs, err := l.GetTransactionsObjects(ctx, []string{tail})
	if err != nil {
		return nil, err
	}
	if len(tailTxs) == 0 || !tailTxs[0].IsTail() {
		return nil, errors.Errorf("tail transaction %v not found", tail)
	}
	pool, err := l.FindTransactionObjects(ctx, []string{tailTxs[0].Bundle})
	if err != nil {
		return nil, err
	}
	b := transfers.ConstructBundle(tailTxs[0], pool)
	if uint64(len(b)) != tailTxs[0].LastIndex+1 {
		return nil, errors.Wrapf(transfers.ErrInvalidBundlesProvided, "bundle %v is incomplete", tailTxs[0].Bundle)
	}
	payloads := make([]string, len(b))
	for i := range b {
		if payloads[i], err = l.codec.AsPayload(&b[i]); err != nil {
			return nil, err
		}
	}
	tips, err := l.GetTransactionsToApprove(ctx)
	if err != nil {
		return nil, err
	}
	attached, err := l.AttachToTangle(ctx, tips.TrunkTransaction, tips.BranchTransaction, payloads)
	if err != nil {
		return nil, err
	}
	if err = l.StoreAndBroadcast(ctx, attached.Payloads); err != nil {
		return nil, err
	}
	if len(attached.Transactions) > 0 {
		debugf("LEDGER: reattached bundle %v. New tail %v", tailTxs[0].Bundle, attached.Transactions[0].Hash)
	} else {
		errorf("LEDGER: reattachment of bundle %v returned no transactions", tailTxs[0].Bundle)
	}
	return attached.Transactions, nil
}
