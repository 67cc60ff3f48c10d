package transfers

import (
	"regexp"
)

const (
	EmptyTransactionMessage = "Empty"
	DefaultTag              = "TANGLEWALLET"
	addressLength           = 81
)

// CategoriseBundleByInputsOutputs splits the bundle into negative value inputs and other outputs.
// The remainder is an output whatever its value. Bundles with more than outputsThreshold
// outputs keep only outputs at the given addresses and the remainder.
func CategoriseBundleByInputsOutputs(bundle Bundle, addresses []string, outputsThreshold int, checksum func(string) string) ([]TransferEntry, []TransferEntry) {
	inputs := make([]TransferEntry, 0)
	outputs := make([]TransferEntry, 0, len(bundle))
	for i := range bundle {
		tx := &bundle[i]
		entry := TransferEntry{
			Address:      tx.Address,
			Value:        tx.Value,
			Hash:         tx.Hash,
			CurrentIndex: tx.CurrentIndex,
			LastIndex:    tx.LastIndex,
		}
		if checksum != nil {
			entry.Checksum = checksum(tx.Address)
		}
		if tx.Value < 0 && !tx.IsRemainder() {
			inputs = append(inputs, entry)
		} else {
			outputs = append(outputs, entry)
		}
	}
	if len(outputs) <= outputsThreshold {
		return inputs, outputs
	}
	own := ownedAddressSet(addresses)
	pruned := make([]TransferEntry, 0)
	for _, out := range outputs {
		if _, ok := own[out.Address]; ok || isRemainderEntry(&out) {
			pruned = append(pruned, out)
		}
	}
	return inputs, pruned
}

func isRemainderEntry(e *TransferEntry) bool {
	return e.CurrentIndex == e.LastIndex && e.LastIndex != 0
}

func (e *Engine) CategoriseBundleByInputsOutputs(bundle Bundle, addresses []string) ([]TransferEntry, []TransferEntry) {
	return CategoriseBundleByInputsOutputs(bundle, addresses, e.OutputsThreshold, e.checksumFunc())
}

// GetTransferValue is the value leaving the account when any input is owned,
// otherwise the value arriving at owned outputs
func GetTransferValue(inputs, outputs []TransferEntry, addresses []string) int64 {
	own := ownedAddressSet(addresses)
	var remainderValue int64
	for i := range outputs {
		if isRemainderEntry(&outputs[i]) {
			remainderValue = outputs[i].Value
			break
		}
	}
	ownInputs := false
	var inputsValue int64
	for _, in := range inputs {
		if _, ok := own[in.Address]; ok {
			ownInputs = true
		}
		inputsValue += abs(in.Value)
	}
	if ownInputs {
		return inputsValue - remainderValue
	}
	var ret int64
	for _, out := range outputs {
		if _, ok := own[out.Address]; ok {
			ret += out.Value
		}
	}
	return ret
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// IsSentTransfer tells the direction of the bundle from the account's point of view.
// A zero value bundle counts as sent when its first output is foreign and its second is owned,
// which is the layout produced by PrepareTransferArray.
func (e *Engine) IsSentTransfer(bundle Bundle, addresses []string) bool {
	inputs, outputs := e.CategoriseBundleByInputsOutputs(bundle, addresses)
	own := ownedAddressSet(addresses)
	if GetTransferValue(inputs, outputs, addresses) == 0 {
		return !ownsOutputAt(outputs, 0, own) && ownsOutputAt(outputs, 1, own)
	}
	for i := range bundle {
		tx := &bundle[i]
		if _, ok := own[tx.Address]; ok && tx.Value < 0 && !tx.IsRemainder() {
			return true
		}
	}
	return false
}

func ownsOutputAt(outputs []TransferEntry, idx int, own map[string]struct{}) bool {
	if idx >= len(outputs) {
		return false
	}
	_, ok := own[outputs[idx].Address]
	return ok
}

func (e *Engine) IsReceivedTransfer(bundle Bundle, addresses []string) bool {
	return !e.IsSentTransfer(bundle, addresses)
}

// ComputeTransactionMessage returns the first decodable message in the bundle
func (e *Engine) ComputeTransactionMessage(bundle Bundle) string {
	if e.Codec == nil {
		return EmptyTransactionMessage
	}
	for i := range bundle {
		if msg, ok := e.Codec.DecodeMessage(bundle[i].SignatureMessageFragment); ok && msg != EmptyTransactionMessage {
			return msg
		}
	}
	return EmptyTransactionMessage
}

// NormaliseBundle summarises the bundle. tails may contain tails of other bundles,
// only those with the same bundle hash are kept.
func (e *Engine) NormaliseBundle(bundle Bundle, addressData []AddressData, tails []Transaction, persistence bool) NormalisedBundle {
	addresses := addressesOf(addressData)
	inputs, outputs := e.CategoriseBundleByInputsOutputs(bundle, addresses)
	ret := NormalisedBundle{
		Inputs:           inputs,
		Outputs:          outputs,
		Persistence:      persistence,
		IncomingTransfer: e.IsReceivedTransfer(bundle, addresses),
		TransferValue:    GetTransferValue(inputs, outputs, addresses),
		Message:          e.ComputeTransactionMessage(bundle),
		TailTransactions: make([]TailTransaction, 0),
	}
	if len(bundle) > 0 {
		ret.Bundle = bundle[0].Bundle
		ret.Timestamp = bundle[0].Timestamp
		ret.AttachmentTimestamp = bundle[0].AttachmentTimestamp
		ret.Broadcasted = bundle[0].Broadcasted
	}
	for _, tx := range tails {
		if tx.Bundle == ret.Bundle {
			ret.TailTransactions = append(ret.TailTransactions, TailTransaction{
				Hash:                tx.Hash,
				AttachmentTimestamp: tx.AttachmentTimestamp,
				Bundle:              tx.Bundle,
			})
		}
	}
	return ret
}

// MapNormalisedTransactions normalises every bundle of the pool, keyed by bundle hash.
// Reattachments collapse into one record which is persistent if any instance is.
func (e *Engine) MapNormalisedTransactions(txs []Transaction, addressData []AddressData) map[string]NormalisedBundle {
	tails := make([]Transaction, 0)
	for _, tx := range txs {
		if tx.IsTail() {
			tails = append(tails, tx)
		}
	}
	ret := make(map[string]NormalisedBundle)
	for _, b := range ConstructBundlesFromTransactions(txs) {
		if len(b) == 0 {
			continue
		}
		head := b[0]
		if nb, ok := ret[head.Bundle]; ok {
			nb.Persistence = nb.Persistence || head.Persistence
			ret[head.Bundle] = nb
			continue
		}
		ret[head.Bundle] = e.NormaliseBundle(b, addressData, tails, head.Persistence)
	}
	return ret
}

// StatusText is the short human readable state of the transfer
func (nb *NormalisedBundle) StatusText() string {
	switch {
	case nb.IncomingTransfer && nb.Persistence:
		return "Received"
	case nb.IncomingTransfer:
		return "Receiving"
	case nb.Persistence:
		return "Sent"
	default:
		return "Sending"
	}
}

func formatRelevant(bundles []NormalisedBundle, addresses []string, limit int) []NormalisedBundle {
	own := ownedAddressSet(addresses)
	ret := make([]NormalisedBundle, 0, len(bundles))
	full := func() bool {
		return limit > 0 && len(ret) >= limit
	}
	for _, nb := range bundles {
		if full() {
			break
		}
		if !nb.IncomingTransfer && allOutputsOwned(nb.Outputs, own) {
			self := nb
			self.IncomingTransfer = true
			ret = append(ret, self)
			if full() {
				break
			}
		}
		ret = append(ret, nb)
	}
	return ret
}

func allOutputsOwned(outputs []TransferEntry, own map[string]struct{}) bool {
	for _, out := range outputs {
		if _, ok := own[out.Address]; !ok {
			return false
		}
	}
	return true
}

// FormatRelevantTransactions lists transfers to self twice, once as received and once as sent
func FormatRelevantTransactions(bundles []NormalisedBundle, addresses []string) []NormalisedBundle {
	return formatRelevant(bundles, addresses, 0)
}

const recentTransactionsLimit = 4

func FormatRelevantRecentTransactions(bundles []NormalisedBundle, addresses []string) []NormalisedBundle {
	return formatRelevant(bundles, addresses, recentTransactionsLimit)
}

// GetTransactionsDiff returns hashes present in exactly one of the lists
func GetTransactionsDiff(existingHashes, newHashes []string) []string {
	existing := ownedAddressSet(existingHashes)
	fresh := ownedAddressSet(newHashes)
	ret := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(h string) {
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		ret = append(ret, h)
	}
	for _, h := range existingHashes {
		if _, ok := fresh[h]; !ok {
			add(h)
		}
	}
	for _, h := range newHashes {
		if _, ok := existing[h]; !ok {
			add(h)
		}
	}
	return ret
}

// PrepareTransferArray builds the transfers for a send. A zero value transfer to a foreign
// address gets a twin at the account's first address so the bundle is found when syncing.
func (e *Engine) PrepareTransferArray(address string, value int64, message string, addressData []AddressData, tag string) ([]Transfer, error) {
	firstAddress := ""
	for _, ad := range addressData {
		if ad.Index == 0 {
			firstAddress = ad.Address
			break
		}
	}
	if firstAddress == "" {
		return nil, ErrEmptyAddressData
	}
	if tag == "" {
		tag = DefaultTag
	}
	if e.Codec != nil {
		message = e.Codec.EncodeMessage(message)
	}
	transfer := Transfer{
		Address: address,
		Value:   value,
		Message: message,
		Tag:     tag,
	}
	if value != 0 {
		return []Transfer{transfer}, nil
	}
	bare := address
	if len(bare) > addressLength {
		bare = bare[:addressLength]
	}
	for _, ad := range addressData {
		if ad.Address == bare {
			return []Transfer{transfer}, nil
		}
	}
	twin := transfer
	twin.Address = firstAddress
	return []Transfer{transfer, twin}, nil
}

var validAddressWithoutChecksum = regexp.MustCompile(`^[A-Z9]{81}$`)

func IsValidTransfer(t *Transfer) bool {
	return t != nil && validAddressWithoutChecksum.MatchString(t.Address)
}

func addressesOf(addressData []AddressData) []string {
	ret := make([]string, len(addressData))
	for i, ad := range addressData {
		ret[i] = ad.Address
	}
	return ret
}
