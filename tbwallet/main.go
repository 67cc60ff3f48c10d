package main

import (
	"context"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"

	"github.com/unioproject/tanglewallet/lib/txstore"
	"github.com/unioproject/tanglewallet/lib/zmqfeed"
)

const (
	CONFIG_FILE       = "tbwallet.yml"
	zmqTriggersBuffer = 100
)

var (
	feeds      []*zmqfeed.Feed
	feedsMutex sync.RWMutex
)

func registerFeed(feed *zmqfeed.Feed) {
	feedsMutex.Lock()
	defer feedsMutex.Unlock()
	feeds = append(feeds, feed)
}

func getFeedStats() []zmqfeed.FeedStats {
	feedsMutex.RLock()
	defer feedsMutex.RUnlock()
	ret := make([]zmqfeed.FeedStats, 0, len(feeds))
	for _, f := range feeds {
		ret = append(ret, f.Stats())
	}
	return ret
}

func mustOpenStore() *txstore.Store {
	dbFile := Config.Store.DbFile
	if dbFile == "" {
		dbFile = defaultDbFile
	}
	dbPath := path.Join(Config.siteDataDir, Config.Logging.WorkingSubdir, dbFile)
	store, err := txstore.Open(dbPath)
	if err != nil {
		log.Errorf("Can't open transaction store: %v", err)
		os.Exit(1)
	}
	log.Infof("Transaction store: %v", dbPath)
	return store
}

func runAccounts(ctx context.Context, wg *sync.WaitGroup, store *txstore.Store) map[string]*Account {
	ret := make(map[string]*Account)
	for _, name := range getEnabledAccountNames() {
		acc, err := NewAccount(name, store)
		if err != nil {
			log.Error(err)
			log.Info("Ciao")
			os.Exit(1)
		}
		ret[acc.uid] = acc
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Run(ctx)
		}()
	}
	return ret
}

// runFeeds routes address events from every ZMQ input to the sync loops of the accounts
func runFeeds(ctx context.Context, accounts map[string]*Account) {
	for _, uri := range Config.Wallet.ZmqInputs {
		feed := zmqfeed.NewFeed(uri, zmqTriggersBuffer, log)
		for uid, acc := range accounts {
			feed.Watch(uid, acc.Addresses())
		}
		registerFeed(feed)
		go feed.Run(ctx)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case uid := <-feed.Triggers():
					if acc, ok := accounts[uid]; ok {
						acc.Trigger()
					}
				}
			}
		}()
		log.Infof("Listening to ZMQ events at %v", uri)
	}
}

func main() {
	mustReadMasterConfig(CONFIG_FILE)

	if !Config.Wallet.Enabled {
		log.Errorf("Wallet is disabled. Leaving...")
		os.Exit(0)
	}
	names := getEnabledAccountNames()
	if len(names) == 0 {
		log.Errorf("Nothing is enabled. Leaving...")
		os.Exit(0)
	}
	if Config.Prometheus.Enabled {
		mustInitAndExposeMetrics()
	}
	mustInitAndRunPublisher()
	store := mustOpenStore()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("Starting wallet. Enabled accounts: %v", names)
	var wg sync.WaitGroup
	accounts := runAccounts(ctx, &wg, store)
	runFeeds(ctx, accounts)

	<-ctx.Done()
	log.Infof("Stopping...")
	wg.Wait()
	if err := store.Close(); err != nil {
		log.Errorf("Closing store: %v", err)
	}
	if updatePublisher != nil {
		updatePublisher.Close()
	}
	log.Info("Ciao")
}
