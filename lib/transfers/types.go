package transfers

// Transaction is a single ledger entry as seen by an account.
// Broadcasted and Persistence are local flags, the rest is ledger data.
type Transaction struct {
	Hash                          string `json:"hash"`
	SignatureMessageFragment      string `json:"signatureMessageFragment"`
	Address                       string `json:"address"`
	Value                         int64  `json:"value"`
	ObsoleteTag                   string `json:"obsoleteTag"`
	Timestamp                     uint64 `json:"timestamp"`
	CurrentIndex                  uint64 `json:"currentIndex"`
	LastIndex                     uint64 `json:"lastIndex"`
	Bundle                        string `json:"bundle"`
	TrunkTransaction              string `json:"trunkTransaction"`
	BranchTransaction             string `json:"branchTransaction"`
	Tag                           string `json:"tag"`
	AttachmentTimestamp           int64  `json:"attachmentTimestamp"`
	AttachmentTimestampLowerBound int64  `json:"attachmentTimestampLowerBound"`
	AttachmentTimestampUpperBound int64  `json:"attachmentTimestampUpperBound"`
	Nonce                         string `json:"nonce"`
	Broadcasted                   bool   `json:"broadcasted"`
	Persistence                   bool   `json:"persistence"`
}

// IsTail is true for the first transaction of a bundle instance
func (tx *Transaction) IsTail() bool {
	return tx.CurrentIndex == 0
}

// IsRemainder is true for the last transaction of a multi-transaction bundle
func (tx *Transaction) IsRemainder() bool {
	return tx.CurrentIndex == tx.LastIndex && tx.LastIndex != 0
}

// Bundle is an ordered group of transactions sharing one bundle hash
type Bundle []Transaction

func (b Bundle) Hash() string {
	if len(b) == 0 {
		return ""
	}
	return b[0].Bundle
}

func (b Bundle) Tail() (*Transaction, bool) {
	for i := range b {
		if b[i].IsTail() {
			return &b[i], true
		}
	}
	return nil, false
}

func (b Bundle) clone() Bundle {
	ret := make(Bundle, len(b))
	copy(ret, b)
	return ret
}

// TransferEntry is an input or output of a normalised bundle
type TransferEntry struct {
	Address      string `json:"address"`
	Value        int64  `json:"value"`
	Hash         string `json:"hash"`
	CurrentIndex uint64 `json:"currentIndex"`
	LastIndex    uint64 `json:"lastIndex"`
	Checksum     string `json:"checksum"`
}

// TailTransaction identifies one attached instance of a bundle
type TailTransaction struct {
	Hash                string `json:"hash"`
	AttachmentTimestamp int64  `json:"attachmentTimestamp"`
	Bundle              string `json:"bundle,omitempty"`
}

// NormalisedBundle is the display-ready summary of one bundle
type NormalisedBundle struct {
	Bundle              string            `json:"bundle"`
	Timestamp           uint64            `json:"timestamp"`
	AttachmentTimestamp int64             `json:"attachmentTimestamp"`
	Inputs              []TransferEntry   `json:"inputs"`
	Outputs             []TransferEntry   `json:"outputs"`
	IncomingTransfer    bool              `json:"incoming"`
	TransferValue       int64             `json:"transferValue"`
	Message             string            `json:"message"`
	TailTransactions    []TailTransaction `json:"tailTransactions"`
	Persistence         bool              `json:"persistence"`
	Broadcasted         bool              `json:"broadcasted"`
}

// AddressData is an address owned by the account together with its key index
type AddressData struct {
	Address string `json:"address"`
	Index   uint64 `json:"index"`
}

// Transfer is a requested value movement, used when preparing bundles
type Transfer struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

type TransactionsToApprove struct {
	TrunkTransaction  string
	BranchTransaction string
}

// AttachResult holds attached payloads and their decoded transactions, ordered by ascending index
type AttachResult struct {
	Payloads     []string
	Transactions []Transaction
}

func ownedAddressSet(addresses []string) map[string]struct{} {
	ret := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		ret[a] = struct{}{}
	}
	return ret
}
