package wallet_update

// defines update's structure.
// It is published as JSON

import (
	"github.com/unioproject/tanglewallet/lib/transfers"
)

type WalletUpdateType string

const (
	WALLET_UPD_UNDEF     WalletUpdateType = "undef"
	WALLET_UPD_SYNC      WalletUpdateType = "sync"
	WALLET_UPD_NO_ACTION WalletUpdateType = "no action"
	WALLET_UPD_REATTACH  WalletUpdateType = "reattach"
	WALLET_UPD_PROMOTE   WalletUpdateType = "promote"
	WALLET_UPD_CONFIRM   WalletUpdateType = "confirm"
	WALLET_UPD_FAILED    WalletUpdateType = "failed"
	WALLET_UPD_RETRY     WalletUpdateType = "retry"
)

type WalletUpdate struct {
	Version     string           `json:"ver"`     // version of the originator
	AccountUID  string           `json:"accid"`   // unique id of the account. Part of the hash of its first address
	AccountName string           `json:"accname"` // name of the account as specified in the config
	UpdType     WalletUpdateType `json:"updtype"` // update type
	UpdateTs    uint64           `json:"ts"`      // unix time miliseconds when update was created
	// sync updates
	NumTransactions    int                          `json:"numtx,omitempty"`      // size of the pool after sync
	NumNewTransactions int                          `json:"numnewtx,omitempty"`   // transactions pulled in this cycle
	NumBundles         int                          `json:"numbundles,omitempty"` // normalised bundles
	NumPending         int                          `json:"numpending,omitempty"` // bundles not yet confirmed
	SyncMsec           uint64                       `json:"syncms,omitempty"`     // duration of the cycle
	Recent             []transfers.NormalisedBundle `json:"recent,omitempty"`     // most recent relevant transfers
	// confirmer updates
	Bundle        string `json:"bundle,omitempty"`     // bundle hash
	PromoTail     string `json:"promoTail,omitempty"`  // tail used for the last promotion or reattachment
	NumAttaches   uint64 `json:"numattach,omitempty"`  // reattachments made in the current session
	NumPromotions uint64 `json:"numpromote,omitempty"` // promotions made in the current session
	Attempt       int    `json:"attempt,omitempty"`    // promotion attempts so far
	DurationMsec  uint64 `json:"durationms,omitempty"` // from the start of the confirmer task until confirmation
	Err           string `json:"err,omitempty"`
}
