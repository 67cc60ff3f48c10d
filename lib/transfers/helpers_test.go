package transfers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	trunkTip      = "TRUNKTIP"
	branchTip     = "BRANCHTIP"
	testEmptyHash = "999"
	testNonceLen  = 8
)

// buildBundle chains transactions the way the ledger does: every transaction approves
// the next index by trunk, the last one approves the tips
func buildBundle(bundleHash string, addresses []string, values []int64) Bundle {
	n := len(values)
	b := make(Bundle, n)
	for i := 0; i < n; i++ {
		b[i] = Transaction{
			Hash:                fmt.Sprintf("%s_TX%d", bundleHash, i),
			Bundle:              bundleHash,
			Address:             addresses[i],
			Value:               values[i],
			CurrentIndex:        uint64(i),
			LastIndex:           uint64(n - 1),
			Timestamp:           1000,
			AttachmentTimestamp: 2000,
			Broadcasted:         true,
		}
	}
	for i := 0; i < n; i++ {
		if i == n-1 {
			b[i].TrunkTransaction = trunkTip
			b[i].BranchTransaction = branchTip
		} else {
			b[i].TrunkTransaction = b[i+1].Hash
			b[i].BranchTransaction = trunkTip
		}
	}
	return b
}

func hashesOf(txs []Transaction) []string {
	ret := make([]string, len(txs))
	for i := range txs {
		ret[i] = txs[i].Hash
	}
	return ret
}

type fakeCodec struct{}

func (fakeCodec) AddressChecksum(address string) string {
	return "CHK"
}

func (fakeCodec) DecodeMessage(fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}
	return fragment, true
}

func (fakeCodec) EncodeMessage(message string) string {
	return "ENC:" + message
}

func (fakeCodec) EmptyHash() string {
	return testEmptyHash
}

func (fakeCodec) IsValidHash(hash string) bool {
	return hash != "" && !strings.HasPrefix(hash, "INVALID")
}

// payload is the JSON of the transaction followed by a fixed width nonce slot
func (fakeCodec) AsPayload(tx *Transaction) (string, error) {
	t := *tx
	nonce := t.Nonce
	t.Nonce = ""
	data, err := json.Marshal(&t)
	if err != nil {
		return "", err
	}
	if len(nonce) < testNonceLen {
		nonce += strings.Repeat("9", testNonceLen-len(nonce))
	}
	return string(data) + "|" + nonce[:testNonceLen], nil
}

func (fakeCodec) AsTransaction(payload string, hash string) (*Transaction, error) {
	idx := strings.LastIndex(payload, "|")
	if idx < 0 {
		return nil, errors.New("malformed payload")
	}
	var tx Transaction
	if err := json.Unmarshal([]byte(payload[:idx]), &tx); err != nil {
		return nil, err
	}
	tx.Nonce = payload[idx+1:]
	if hash != "" {
		tx.Hash = hash
	}
	return &tx, nil
}

func testDigest(_ context.Context, payload string) (string, error) {
	sum := sha256.Sum256([]byte(payload))
	return "H" + hex.EncodeToString(sum[:])[:16], nil
}

// complete bundles with contiguous indices are valid
var structuralValidator = BundleValidatorFunc(func(b Bundle) bool {
	if len(b) == 0 || uint64(len(b)) != b[0].LastIndex+1 {
		return false
	}
	for i := range b {
		if b[i].CurrentIndex != uint64(i) || b[i].Bundle != b[0].Bundle {
			return false
		}
	}
	return true
})

type fakeLedger struct {
	mu             sync.Mutex
	network        []Transaction
	included       map[string]bool
	balances       map[string]uint64
	dropOneState   bool
	attachResult   *AttachResult
	attachCalls    int
	broadcastCalls [][]string
	balanceQueries [][]string
	inclusionCalls [][]string
}

func newFakeLedger(network ...Bundle) *fakeLedger {
	ret := &fakeLedger{
		included: make(map[string]bool),
		balances: make(map[string]uint64),
	}
	for _, b := range network {
		ret.network = append(ret.network, b...)
	}
	return ret
}

func (l *fakeLedger) GetTransactionsObjects(_ context.Context, hashes []string) ([]Transaction, error) {
	want := ownedAddressSet(hashes)
	ret := make([]Transaction, 0)
	for _, tx := range l.network {
		if _, ok := want[tx.Hash]; ok {
			ret = append(ret, tx)
		}
	}
	return ret, nil
}

func (l *fakeLedger) FindTransactionObjects(_ context.Context, bundles []string) ([]Transaction, error) {
	want := ownedAddressSet(bundles)
	ret := make([]Transaction, 0)
	for _, tx := range l.network {
		if _, ok := want[tx.Bundle]; ok {
			ret = append(ret, tx)
		}
	}
	return ret, nil
}

func (l *fakeLedger) GetLatestInclusion(_ context.Context, hashes []string) ([]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inclusionCalls = append(l.inclusionCalls, hashes)
	ret := make([]bool, len(hashes))
	for i, h := range hashes {
		ret[i] = l.included[h]
	}
	if l.dropOneState && len(ret) > 0 {
		ret = ret[:len(ret)-1]
	}
	return ret, nil
}

func (l *fakeLedger) GetBalances(_ context.Context, addresses []string, _ bool) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceQueries = append(l.balanceQueries, addresses)
	ret := make([]uint64, len(addresses))
	for i, a := range addresses {
		ret[i] = l.balances[a]
	}
	return ret, nil
}

func (l *fakeLedger) GetTransactionsToApprove(_ context.Context) (*TransactionsToApprove, error) {
	return &TransactionsToApprove{TrunkTransaction: trunkTip, BranchTransaction: branchTip}, nil
}

func (l *fakeLedger) AttachToTangle(_ context.Context, trunk, branch string, payloads []string) (*AttachResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attachCalls++
	if l.attachResult != nil {
		return l.attachResult, nil
	}
	return &AttachResult{Payloads: payloads}, nil
}

func (l *fakeLedger) StoreAndBroadcast(_ context.Context, payloads []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastCalls = append(l.broadcastCalls, payloads)
	return nil
}

func (l *fakeLedger) IsPromotable(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (l *fakeLedger) PromoteTransaction(_ context.Context, _ string) error {
	return errors.New("not supported")
}

func (l *fakeLedger) ReplayBundle(_ context.Context, _ string) ([]Transaction, error) {
	return nil, errors.New("not supported")
}

func newTestEngine(ledger Ledger) *Engine {
	return NewEngine(EngineParams{
		Ledger:    ledger,
		Validator: structuralValidator,
		Codec:     fakeCodec{},
	})
}
