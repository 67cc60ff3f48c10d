package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unioproject/tanglewallet/tbwallet/wallet_update"
)

var (
	syncCounter            *prometheus.CounterVec
	newTxCounter           *prometheus.CounterVec
	promoteCounter         *prometheus.CounterVec
	reattachCounter        *prometheus.CounterVec
	confCounter            *prometheus.CounterVec
	confDurationSecCounter *prometheus.CounterVec
	failedCounter          *prometheus.CounterVec
	restartCounter         prometheus.Counter
	metricsEnabled         bool
)

func exposeMetrics(port int) {
	http.Handle("/metrics", promhttp.Handler())
	listenAndServeOn := fmt.Sprintf(":%d", port)
	log.Infof("Exposing Prometheus metrics on %v", listenAndServeOn)
	panic(http.ListenAndServe(listenAndServeOn, nil))
}

func newAccountCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, []string{"accid"})
}

func initMetrics() {
	syncCounter = newAccountCounter("tanglewallet_sync_counter",
		"Increases every time an account finishes a sync cycle")
	newTxCounter = newAccountCounter("tanglewallet_new_tx_counter",
		"Number of transactions pulled from the ledger into the pool of the account")
	promoteCounter = newAccountCounter("tanglewallet_promotion_counter",
		"Increases with every promotion of a pending bundle")
	reattachCounter = newAccountCounter("tanglewallet_reattachment_counter",
		"Increases with every reattachment of a pending bundle")
	confCounter = newAccountCounter("tanglewallet_confirmation_counter",
		"Increases every time a pending bundle is confirmed")
	confDurationSecCounter = newAccountCounter("tanglewallet_confirmation_duration_counter",
		"Sums up durations of confirmer tasks which ended with confirmation")
	failedCounter = newAccountCounter("tanglewallet_failed_counter",
		"Increases every time a confirmer task gives up")
	restartCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tanglewallet_restart_counter",
		Help: "Increases every time program starts",
	})
}

func mustInitAndExposeMetrics() {
	initMetrics()
	prometheus.MustRegister(syncCounter)
	prometheus.MustRegister(newTxCounter)
	prometheus.MustRegister(promoteCounter)
	prometheus.MustRegister(reattachCounter)
	prometheus.MustRegister(confCounter)
	prometheus.MustRegister(confDurationSecCounter)
	prometheus.MustRegister(failedCounter)
	prometheus.MustRegister(restartCounter)
	prometheus.MustRegister(AEC.apiErrorCounter)
	metricsEnabled = true

	go exposeMetrics(Config.Prometheus.ScrapeTargetPort)
	go func() {
		// increase restart counter only 30 sec after restart
		// to give time to prometheus to scrape 0 value
		time.Sleep(30 * time.Second)
		restartCounter.Inc()
	}()
}

func updateWalletMetrics(upd *wallet_update.WalletUpdate) {
	if !metricsEnabled {
		return
	}
	labels := prometheus.Labels{"accid": upd.AccountUID}
	switch upd.UpdType {
	case wallet_update.WALLET_UPD_SYNC:
		syncCounter.With(labels).Inc()
		newTxCounter.With(labels).Add(float64(upd.NumNewTransactions))
	case wallet_update.WALLET_UPD_PROMOTE:
		promoteCounter.With(labels).Inc()
	case wallet_update.WALLET_UPD_REATTACH:
		reattachCounter.With(labels).Inc()
	case wallet_update.WALLET_UPD_CONFIRM:
		confCounter.With(labels).Inc()
		confDurationSecCounter.With(labels).Add(float64(upd.DurationMsec) / 1000)
	case wallet_update.WALLET_UPD_FAILED:
		failedCounter.With(labels).Inc()
	}
}
