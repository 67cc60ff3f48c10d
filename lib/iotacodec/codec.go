package iotacodec

import (
	"strings"

	"github.com/iotaledger/iota.go/checksum"
	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/converter"
	"github.com/iotaledger/iota.go/guards"
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/transfers"
)

var nullHash = strings.Repeat("9", consts.HashTrytesSize)

// Codec implements transfers.Codec with the IOTA tryte encoding
type Codec struct{}

var _ transfers.Codec = Codec{}

func (Codec) AddressChecksum(address string) string {
	if len(address) == consts.AddressWithChecksumTrytesSize {
		return address[consts.HashTrytesSize:]
	}
	withChecksum, err := checksum.AddChecksum(Trytes(address), true, consts.AddressChecksumTrytesSize)
	if err != nil {
		return ""
	}
	return string(withChecksum[len(withChecksum)-consts.AddressChecksumTrytesSize:])
}

// DecodeMessage converts the fragment to ASCII. Trailing 9s are padding
func (Codec) DecodeMessage(fragment string) (string, bool) {
	trimmed := strings.TrimRight(fragment, "9")
	if trimmed == "" {
		return "", false
	}
	if len(trimmed)%2 != 0 {
		trimmed += "9"
	}
	msg, err := converter.TrytesToASCII(Trytes(trimmed))
	if err != nil {
		return "", false
	}
	msg = strings.TrimRight(msg, "\x00")
	for _, c := range msg {
		if c < 0x20 && c != '\n' && c != '\t' && c != '\r' {
			return "", false
		}
	}
	if msg == "" {
		return "", false
	}
	return msg, true
}

func (Codec) EncodeMessage(message string) string {
	ret, err := converter.ASCIIToTrytes(message)
	if err != nil {
		return ""
	}
	return string(ret)
}

func (Codec) EmptyHash() string {
	return nullHash
}

func (Codec) IsValidHash(hash string) bool {
	return hash != "" && guards.IsHash(Trytes(hash))
}

func (Codec) AsPayload(tx *transfers.Transaction) (string, error) {
	itx := ToIOTA(tx)
	ret, err := transaction.TransactionToTrytes(&itx)
	if err != nil {
		return "", errors.Wrapf(err, "transaction %v", tx.Hash)
	}
	return string(ret), nil
}

// AsTransaction parses transaction trytes. The hash is computed when not provided
func (Codec) AsTransaction(payload string, hash string) (*transfers.Transaction, error) {
	var itx *transaction.Transaction
	var err error
	if hash == "" {
		itx, err = transaction.AsTransactionObject(Trytes(payload))
	} else {
		itx, err = transaction.AsTransactionObject(Trytes(payload), Hash(hash))
	}
	if err != nil {
		return nil, err
	}
	ret := FromIOTA(itx)
	return &ret, nil
}

// IsNotFound tells if the node returned null trytes for an unknown hash
func IsNotFound(trytes string) bool {
	return strings.Trim(trytes, "9") == ""
}

func FromIOTA(tx *transaction.Transaction) transfers.Transaction {
	ret := transfers.Transaction{
		Hash:                          string(tx.Hash),
		SignatureMessageFragment:      string(tx.SignatureMessageFragment),
		Address:                       string(tx.Address),
		Value:                         tx.Value,
		ObsoleteTag:                   string(tx.ObsoleteTag),
		Timestamp:                     tx.Timestamp,
		CurrentIndex:                  tx.CurrentIndex,
		LastIndex:                     tx.LastIndex,
		Bundle:                        string(tx.Bundle),
		TrunkTransaction:              string(tx.TrunkTransaction),
		BranchTransaction:             string(tx.BranchTransaction),
		Tag:                           string(tx.Tag),
		AttachmentTimestamp:           tx.AttachmentTimestamp,
		AttachmentTimestampLowerBound: tx.AttachmentTimestampLowerBound,
		AttachmentTimestampUpperBound: tx.AttachmentTimestampUpperBound,
		Nonce:                         string(tx.Nonce),
	}
	if tx.Persistence != nil {
		ret.Persistence = *tx.Persistence
	}
	return ret
}

func ToIOTA(tx *transfers.Transaction) transaction.Transaction {
	persistence := tx.Persistence
	return transaction.Transaction{
		Hash:                          Hash(tx.Hash),
		SignatureMessageFragment:      Trytes(tx.SignatureMessageFragment),
		Address:                       Hash(tx.Address),
		Value:                         tx.Value,
		ObsoleteTag:                   Trytes(tx.ObsoleteTag),
		Timestamp:                     tx.Timestamp,
		CurrentIndex:                  tx.CurrentIndex,
		LastIndex:                     tx.LastIndex,
		Bundle:                        Hash(tx.Bundle),
		TrunkTransaction:              Hash(tx.TrunkTransaction),
		BranchTransaction:             Hash(tx.BranchTransaction),
		Tag:                           Trytes(tx.Tag),
		AttachmentTimestamp:           tx.AttachmentTimestamp,
		AttachmentTimestampLowerBound: tx.AttachmentTimestampLowerBound,
		AttachmentTimestampUpperBound: tx.AttachmentTimestampUpperBound,
		Nonce:                         Trytes(tx.Nonce),
		Persistence:                   &persistence,
	}
}

// ParseTrytes parses node output, skipping null trytes of unknown transactions
func ParseTrytes(trytes []Trytes) ([]transfers.Transaction, error) {
	ret := make([]transfers.Transaction, 0, len(trytes))
	for _, t := range trytes {
		if IsNotFound(string(t)) {
			continue
		}
		tx, err := Codec{}.AsTransaction(string(t), "")
		if err != nil {
			return nil, errors.Wrap(transfers.ErrInvalidTransactionsProvided, err.Error())
		}
		ret = append(ret, *tx)
	}
	return ret, nil
}
