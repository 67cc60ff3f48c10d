package multiapi

import (
	"net/http"
	"time"

	. "github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
)

// Node is the part of the node API the wallet uses
type Node interface {
	FindTransactions(query FindTransactionsQuery) (Hashes, error)
	GetTrytes(hashes Hashes) ([]Trytes, error)
	GetLatestInclusion(hashes Hashes) ([]bool, error)
	GetBalances(addresses Hashes) ([]uint64, error)
	GetTransactionsToApprove(depth uint64) (*TransactionsToApprove, error)
	AttachToTangle(trunk, branch Hash, mwm uint64, trytes []Trytes) ([]Trytes, error)
	StoreAndBroadcast(trytes []Trytes) error
	CheckConsistency(tail Hash) (bool, string, error)
	IsPromotable(tail Hash) (bool, error)
	PrepareTransfers(seed Trytes, transfers bundle.Transfers, opts PrepareTransfersOptions) ([]Trytes, error)
}

type endpointEntry struct {
	node     Node
	endpoint string
}

type MultiAPI []endpointEntry

type MultiCallRet struct {
	Endpoint string
	Duration time.Duration
	Info     string // used by CheckConsistency
}

// iotaNode adapts iota.go API to Node
type iotaNode struct {
	api *API
}

func (n iotaNode) FindTransactions(query FindTransactionsQuery) (Hashes, error) {
	return n.api.FindTransactions(query)
}

func (n iotaNode) GetTrytes(hashes Hashes) ([]Trytes, error) {
	return n.api.GetTrytes(hashes...)
}

func (n iotaNode) GetLatestInclusion(hashes Hashes) ([]bool, error) {
	return n.api.GetLatestInclusion(hashes)
}

func (n iotaNode) GetBalances(addresses Hashes) ([]uint64, error) {
	resp, err := n.api.GetBalances(addresses, 100)
	if err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

func (n iotaNode) GetTransactionsToApprove(depth uint64) (*TransactionsToApprove, error) {
	return n.api.GetTransactionsToApprove(depth)
}

func (n iotaNode) AttachToTangle(trunk, branch Hash, mwm uint64, trytes []Trytes) ([]Trytes, error) {
	return n.api.AttachToTangle(trunk, branch, mwm, trytes)
}

func (n iotaNode) StoreAndBroadcast(trytes []Trytes) error {
	_, err := n.api.StoreAndBroadcast(trytes)
	return err
}

func (n iotaNode) CheckConsistency(tail Hash) (bool, string, error) {
	return n.api.CheckConsistency(tail)
}

func (n iotaNode) IsPromotable(tail Hash) (bool, error) {
	return n.api.IsPromotable(tail)
}

func (n iotaNode) PrepareTransfers(seed Trytes, transfers bundle.Transfers, opts PrepareTransfersOptions) ([]Trytes, error) {
	return n.api.PrepareTransfers(seed, transfers, opts)
}

func NewFromAPI(api *API, endpoint string) (MultiAPI, error) {
	if api == nil {
		return nil, errors.New("API is nil")
	}
	return MultiAPI{endpointEntry{
		node:     iotaNode{api: api},
		endpoint: endpoint,
	}}, nil
}

// NewFromNodes builds MultiAPI from endpoint name -> node pairs given in order
func NewFromNodes(endpoints []string, nodes []Node) (MultiAPI, error) {
	if len(endpoints) == 0 || len(endpoints) != len(nodes) {
		return nil, errors.New("must be at least 1 endpoint, one node per endpoint")
	}
	ret := make(MultiAPI, len(nodes))
	for i := range nodes {
		ret[i] = endpointEntry{node: nodes[i], endpoint: endpoints[i]}
	}
	return ret, nil
}

func New(endpoints []string, timeout uint64) (MultiAPI, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("must be at least 1 endpoint")
	}
	if timeout == 0 {
		return nil, errors.New("timeout must be > 0")
	}
	ret := make(MultiAPI, 0, len(endpoints))

	for _, ep := range endpoints {
		api, err := ComposeAPI(
			HTTPClientSettings{
				URI: ep,
				Client: &http.Client{
					Timeout: time.Duration(timeout) * time.Second,
				},
			},
		)
		if err != nil {
			return nil, errors.Wrapf(err, "endpoint %v", ep)
		}
		ret = append(ret, endpointEntry{node: iotaNode{api: api}, endpoint: ep})
	}
	return ret, nil
}

func (mapi MultiAPI) GetAPIEndpoint() string {
	if len(mapi) == 0 {
		return "???"
	}
	return mapi[0].endpoint
}

func (mapi MultiAPI) Endpoints() []string {
	ret := make([]string, len(mapi))
	for i := range mapi {
		ret[i] = mapi[i].endpoint
	}
	return ret
}
