package transfers

import (
	"context"

	"github.com/op/go-logging"
)

// Ledger is the set of remote node capabilities the engine depends on
type Ledger interface {
	GetTransactionsObjects(ctx context.Context, hashes []string) ([]Transaction, error)
	FindTransactionObjects(ctx context.Context, bundles []string) ([]Transaction, error)
	GetLatestInclusion(ctx context.Context, hashes []string) ([]bool, error)
	GetBalances(ctx context.Context, addresses []string, withQuorum bool) ([]uint64, error)
	GetTransactionsToApprove(ctx context.Context) (*TransactionsToApprove, error)
	AttachToTangle(ctx context.Context, trunk, branch string, payloads []string) (*AttachResult, error)
	StoreAndBroadcast(ctx context.Context, payloads []string) error
	IsPromotable(ctx context.Context, tail string) (bool, error)
	PromoteTransaction(ctx context.Context, tail string) error
	ReplayBundle(ctx context.Context, tail string) ([]Transaction, error)
}

// BundleValidator checks the structure and signatures of a bundle ordered by ascending index
type BundleValidator interface {
	ValidBundle(bundle Bundle) bool
}

type BundleValidatorFunc func(bundle Bundle) bool

func (f BundleValidatorFunc) ValidBundle(bundle Bundle) bool {
	return f(bundle)
}

// Codec covers the ledger's encoding rules
type Codec interface {
	// AddressChecksum returns the checksum suffix of the address
	AddressChecksum(address string) string
	// DecodeMessage returns the text carried by the fragment, false if it carries none
	DecodeMessage(fragment string) (string, bool)
	EncodeMessage(message string) string
	EmptyHash() string
	IsValidHash(hash string) bool
	AsPayload(tx *Transaction) (string, error)
	AsTransaction(payload string, hash string) (*Transaction, error)
}

const DefaultOutputsThreshold = 50

type EngineParams struct {
	Ledger           Ledger
	Validator        BundleValidator
	Codec            Codec
	OutputsThreshold int
	Log              *logging.Logger
}

type Engine struct {
	EngineParams
}

func NewEngine(params EngineParams) *Engine {
	if params.OutputsThreshold <= 0 {
		params.OutputsThreshold = DefaultOutputsThreshold
	}
	return &Engine{EngineParams: params}
}

func (e *Engine) debugf(f string, p ...interface{}) {
	if e.Log != nil {
		e.Log.Debugf(f, p...)
	}
}

func (e *Engine) errorf(f string, p ...interface{}) {
	if e.Log != nil {
		e.Log.Errorf(f, p...)
	}
}

func (e *Engine) checksumFunc() func(string) string {
	if e.Codec == nil {
		return func(string) string { return "" }
	}
	return e.Codec.AddressChecksum
}
