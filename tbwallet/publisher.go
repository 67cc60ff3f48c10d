package main

import (
	"github.com/unioproject/tanglewallet/lib/nanomsg"
	"github.com/unioproject/tanglewallet/tbwallet/wallet_update"
)

var updatePublisher *nanomsg.Publisher

func mustInitAndRunPublisher() {
	if !Config.WalletUpdatePublisher.Enabled {
		log.Infof("Wallet update publisher is DISABLED")
		return
	}
	var err error
	updatePublisher, err = nanomsg.NewPublisher(Config.WalletUpdatePublisher.OutputPort, 0, log)
	if err != nil {
		log.Errorf("Failed to create publishing channel. Publisher is disabled: %v", err)
		Config.WalletUpdatePublisher.Enabled = false
		panic(err)
	}
	log.Infof("Publishing wallet updates at %v", updatePublisher.URL())
}

// publishUpdate is the sink of every account update
func publishUpdate(upd *wallet_update.WalletUpdate) {
	updateWalletMetrics(upd)
	if updatePublisher == nil {
		return
	}
	if err := updatePublisher.PublishAsJSON(upd); err != nil {
		log.Errorf("Failed to publish update '%v' of %v: %v", upd.UpdType, upd.AccountUID, err)
	}
}
