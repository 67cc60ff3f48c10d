package multiapi

import (
	"context"

	. "github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
)

func (mapi MultiAPI) FindTransactions(query FindTransactionsQuery, ret ...*MultiCallRet) (Hashes, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "FindTransactions", callRet, func(n Node) (Hashes, error) {
		return n.FindTransactions(query)
	})
}

func (mapi MultiAPI) GetTrytes(hashes Hashes, ret ...*MultiCallRet) ([]Trytes, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "GetTrytes", callRet, func(n Node) ([]Trytes, error) {
		return n.GetTrytes(hashes)
	})
}

func (mapi MultiAPI) GetLatestInclusion(transactions Hashes, ret ...*MultiCallRet) ([]bool, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "GetLatestInclusion", callRet, func(n Node) ([]bool, error) {
		return n.GetLatestInclusion(transactions)
	})
}

func (mapi MultiAPI) GetLatestInclusionQuorum(ctx context.Context, transactions Hashes, ret ...*MultiCallRet) ([]bool, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return quorumCall(ctx, mapi, "GetLatestInclusion", callRet, func(n Node) ([]bool, error) {
		return n.GetLatestInclusion(transactions)
	})
}

func (mapi MultiAPI) GetBalances(addresses Hashes, ret ...*MultiCallRet) ([]uint64, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "GetBalances", callRet, func(n Node) ([]uint64, error) {
		return n.GetBalances(addresses)
	})
}

func (mapi MultiAPI) GetBalancesQuorum(ctx context.Context, addresses Hashes, ret ...*MultiCallRet) ([]uint64, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return quorumCall(ctx, mapi, "GetBalances", callRet, func(n Node) ([]uint64, error) {
		return n.GetBalances(addresses)
	})
}

func (mapi MultiAPI) GetTransactionsToApprove(depth uint64, ret ...*MultiCallRet) (*TransactionsToApprove, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "GetTransactionsToApprove", callRet, func(n Node) (*TransactionsToApprove, error) {
		return n.GetTransactionsToApprove(depth)
	})
}

func (mapi MultiAPI) AttachToTangle(trunk, branch Hash, mwm uint64, trytes []Trytes, ret ...*MultiCallRet) ([]Trytes, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	return multiCall(mapi, "AttachToTangle", callRet, func(n Node) ([]Trytes, error) {
		return n.AttachToTangle(trunk, branch, mwm, trytes)
	})
}

func (mapi MultiAPI) StoreAndBroadcast(trytes []Trytes, ret ...*MultiCallRet) error {
	callRet, err := callRetArg(ret)
	if err != nil {
		return err
	}
	_, err = multiCall(mapi, "StoreAndBroadcast", callRet, func(n Node) (struct{}, error) {
		return struct{}{}, n.StoreAndBroadcast(trytes)
	})
	return err
}

type consistency struct {
	consistent bool
	info       string
}

func (mapi MultiAPI) CheckConsistency(tail Hash, ret ...*MultiCallRet) (bool, string, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return false, "", err
	}
	res, err := multiCall(mapi, "CheckConsistency", callRet, func(n Node) (consistency, error) {
		c, info, err := n.CheckConsistency(tail)
		return consistency{consistent: c, info: info}, err
	})
	if callRet != nil {
		callRet.Info = res.info
	}
	return res.consistent, res.info, err
}

func (mapi MultiAPI) IsPromotable(tail Hash, ret ...*MultiCallRet) (bool, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return false, err
	}
	return multiCall(mapi, "IsPromotable", callRet, func(n Node) (bool, error) {
		return n.IsPromotable(tail)
	})
}

// PrepareTransfers is local for zero value transfers, the first endpoint is used
func (mapi MultiAPI) PrepareTransfers(seed Trytes, transfers bundle.Transfers, opts PrepareTransfersOptions, ret ...*MultiCallRet) ([]Trytes, error) {
	callRet, err := callRetArg(ret)
	if err != nil {
		return nil, err
	}
	if len(mapi) == 0 {
		return nil, errors.New("empty MultiAPI")
	}
	var apiret MultiCallRet
	res, err := callFirst(mapi, "PrepareTransfers", &apiret, func(n Node) ([]Trytes, error) {
		return n.PrepareTransfers(seed, transfers, opts)
	})
	if callRet != nil {
		*callRet = apiret
	}
	return res, err
}
