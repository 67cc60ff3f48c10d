package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"sort"
	"time"

	. "github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/guards/validators"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/config"
	"github.com/unioproject/tanglewallet/lib/multiapi"
	"github.com/unioproject/tanglewallet/lib/utils"
)

const (
	Version                 = "1.0"
	PREFIX_MODULE           = "tbwallet"
	ROTATE_LOG_HOURS        = 12
	ROTATE_LOG_RETAIN_HOURS = 12
	UID_LEN                 = 12
	defaultTagPromote       = "TANGLEWALLET"
	defaultSyncEverySec     = 60
	defaultDbFile           = "tbwallet.db"
)

var (
	log                  *logging.Logger
	logLevel             logging.Level
	logLevelName         string
	masterLoggingBackend logging.LeveledBackend
	logFormatter         logging.Formatter
	logInitialized       bool
)

type ConfigStructYAML struct {
	siteDataDir           string
	Logging               loggingConfigYAML         `yaml:"logging"`
	Wallet                walletYAML                `yaml:"wallet"`
	WalletUpdatePublisher walletUpdatePublisherYAML `yaml:"walletUpdatePublisher"`
	Prometheus            prometheusYAML            `yaml:"prometheus"`
	Store                 storeYAML                 `yaml:"store"`
}

type loggingConfigYAML struct {
	Debug                 bool   `yaml:"debug"`
	WorkingSubdir         string `yaml:"workingSubdir"`
	LogConsoleOnly        bool   `yaml:"logConsoleOnly"`
	RotateLogs            bool   `yaml:"rotateLogs"`
	LogAccountsSeparately bool   `yaml:"logAccountsSeparately"`
	LogFormat             string `yaml:"logFormat"`
	LogFormatDebug        string `yaml:"logFormatDebug"`
	RuntimeStats          bool   `yaml:"logRuntimeStats"`
	RuntimeStatsInterval  int    `yaml:"logRuntimeStatsInterval"`
}

type walletYAML struct {
	Enabled           bool                         `yaml:"enabled"`
	DisableMultiCalls bool                         `yaml:"disableMultiCalls"`
	DebugMultiCalls   bool                         `yaml:"debugMultiCalls"`
	ZmqInputs         []string                     `yaml:"zmqInputs"`
	Globals           accountParamsYAML            `yaml:"globals"`
	Accounts          map[string]accountParamsYAML `yaml:"accounts"`
}

type accountParamsYAML struct {
	Enabled          bool     `yaml:"enabled"`
	IOTANode         []string `yaml:"iotaNode"`
	IOTANodeTipsel   []string `yaml:"iotaNodeTipsel"`
	IOTANodePoW      []string `yaml:"iotaNodePOW"`
	TimeoutAPI       uint64   `yaml:"apiTimeout"`
	TimeoutTipsel    uint64   `yaml:"tipselTimeout"`
	TimeoutPoW       uint64   `yaml:"powTimeout"`
	LocalPoW         bool     `yaml:"localPoW"`
	Depth            uint64   `yaml:"depth"`
	MWM              uint64   `yaml:"mwm"`
	QuorumBalances   bool     `yaml:"quorumBalances"`
	QuorumInclusion  bool     `yaml:"quorumInclusion"`
	OutputsThreshold int      `yaml:"outputsThreshold"`
	Addresses        []string `yaml:"addresses"`
	Index0           uint64   `yaml:"index0"`
	SyncEverySec     uint64   `yaml:"syncEverySec"`
	TxTagPromote     string   `yaml:"txTagPromote"`
	AddressPromote   string   `yaml:"addressPromote"`
	PromoteEverySec  uint64   `yaml:"promoteEverySec"`
	PromotionsLimit  int      `yaml:"promotionsLimit"`
	PromoteDisable   bool     `yaml:"promoteDisable"`
}

type walletUpdatePublisherYAML struct {
	Enabled    bool `yaml:"enabled"`
	OutputPort int  `yaml:"outputPort"`
}

type prometheusYAML struct {
	Enabled          bool `yaml:"enabled"`
	ScrapeTargetPort int  `yaml:"scrapeTargetPort"`
}

type storeYAML struct {
	DbFile string `yaml:"dbFile"`
}

// main config structure
var Config = ConfigStructYAML{}

// GetUID is derived from the first address, so it survives renaming of the account
func (params *accountParamsYAML) GetUID() string {
	if len(params.Addresses) == 0 {
		panic("can't generate UID")
	}
	addr := params.Addresses[0]
	if len(addr) > HashTrytesSize {
		addr = addr[:HashTrytesSize]
	}
	hash, err := utils.KerlTrytes(Trytes(addr))
	if err != nil {
		panic("can't generate UID")
	}
	ret := string(hash)
	return ret[len(ret)-UID_LEN:]
}

func flushMsgBeforeLog(msgBeforeLog []string) {
	for _, msg := range msgBeforeLog {
		if logInitialized {
			log.Info(msg)
		} else {
			fmt.Println(msg)
		}
	}
}

func mustReadMasterConfig(configFilename string) {
	msgBeforeLog := make([]string, 0, 10)
	msgBeforeLog = append(msgBeforeLog, "---- Starting Tanglewallet module: tbwallet ver. "+Version)
	var siteDataDir string
	var success bool
	msgBeforeLog, siteDataDir, success = config.ReadYAML(configFilename, msgBeforeLog, &Config)
	if !success {
		flushMsgBeforeLog(msgBeforeLog)
		os.Exit(1)
	}
	Config.siteDataDir = siteDataDir
	msgBeforeLog, success = configMasterLogging(msgBeforeLog)
	flushMsgBeforeLog(msgBeforeLog)
	if !success {
		os.Exit(1)
	}

	configDebugging()

	if Config.Wallet.DisableMultiCalls {
		multiapi.DisableMultiAPI()
		log.Infof("Multi calls to IOTA API are DISABLED")
	} else {
		log.Infof("Multi calls to IOTA API are ENABLED")
	}
}

func configDebugging() {
	if Config.Logging.Debug && Config.Logging.RuntimeStats {
		sl := utils.Max(5, Config.Logging.RuntimeStatsInterval)
		go func() {
			for {
				logRuntimeStats()
				time.Sleep(time.Duration(sl) * time.Second)
			}
		}()
		log.Infof("Will be logging RuntimeStats every %v sec", sl)
	}
}

func configMasterLogging(msgBeforeLog []string) ([]string, bool) {
	var logWriter io.Writer

	if Config.Logging.Debug {
		logLevel = logging.DEBUG
		logLevelName = "DEBUG"
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormatDebug)
	} else {
		logLevel = logging.INFO
		logLevelName = "INFO"
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormat)
	}

	if Config.Logging.LogConsoleOnly {
		logWriter = os.Stderr
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr only", logLevelName))
	} else {
		fout, logFname, err := openLogWriter(PREFIX_MODULE + ".log")
		if err != nil {
			msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Failed to open logfile %v: %v", logFname, err))
			return msgBeforeLog, false
		}
		logWriter = io.MultiWriter(os.Stderr, fout)
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr and %v", logLevelName, logFname))
	}
	log = logging.MustGetLogger("main")

	logBackend := logging.NewLogBackend(logWriter, "", 0)
	logBackendFormatter := logging.NewBackendFormatter(logBackend, logFormatter)
	masterLoggingBackend = logging.AddModuleLevel(logBackendFormatter)
	masterLoggingBackend.SetLevel(logLevel, "main")

	log.SetBackend(masterLoggingBackend)

	var msgtmp string
	if Config.Wallet.DebugMultiCalls {
		multiapi.SetLog(log)
		msgtmp = "MultiAPI module: debugging/logging is ENABLED"
	} else {
		msgtmp = "MultiAPI module: debugging/logging is DISABLED"
	}
	msgBeforeLog = append(msgBeforeLog, msgtmp)
	logInitialized = true
	return msgBeforeLog, true
}

func openLogWriter(fname string) (io.Writer, string, error) {
	dir := path.Join(Config.siteDataDir, Config.Logging.WorkingSubdir)
	logFname := path.Join(dir, fname)
	if Config.Logging.RotateLogs {
		w, err := utils.NewRotateWriter(dir, fname,
			time.Duration(ROTATE_LOG_HOURS)*time.Hour,
			time.Duration(ROTATE_LOG_RETAIN_HOURS)*time.Hour)
		return w, logFname, err
	}
	f, err := os.OpenFile(logFname, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	return f, logFname, err
}

// creates child logger with the given name. It always writes to the file
// everything with is logged to this logger, will go to the master logger as well
func createChildLogger(name string, masterBackend *logging.LeveledBackend) (*logging.Logger, error) {
	fname := PREFIX_MODULE + "." + name + ".log"
	logWriter, logFname, err := openLogWriter(fname)
	if err != nil {
		return nil, err
	}

	logBackend := logging.NewLogBackend(logWriter, "", 0)
	logBackendFormatter := logging.NewBackendFormatter(logBackend, logFormatter)
	childBackend := logging.AddModuleLevel(logBackendFormatter)
	logger := logging.MustGetLogger(name)
	mlogger := logging.MultiLogger(*masterBackend, childBackend)
	mlogger.SetLevel(logLevel, name)
	logger.SetBackend(mlogger)

	logger.Infof("Created child logger '%v' -> %v, level: '%v'", name, logFname, logLevelName)
	return logger, nil
}

func getAccountParams(name string) (*accountParamsYAML, error) {
	stru, ok := Config.Wallet.Accounts[name]
	if !ok {
		return &accountParamsYAML{}, fmt.Errorf("account '%v' doesn't exist in config file", name)
	}
	globals := &Config.Wallet.Globals
	// doing inheritance
	ret := stru // a copy
	ret.Enabled = globals.Enabled && ret.Enabled
	if len(ret.IOTANode) == 0 {
		ret.IOTANode = globals.IOTANode
		if len(ret.IOTANode) == 0 {
			return &ret, fmt.Errorf("default IOTA node is undefined in account '%v'", name)
		}
	}
	if len(ret.IOTANodeTipsel) == 0 {
		ret.IOTANodeTipsel = globals.IOTANodeTipsel
		if len(ret.IOTANodeTipsel) == 0 {
			ret.IOTANodeTipsel = ret.IOTANode
		}
	}
	if len(ret.IOTANodePoW) == 0 {
		ret.IOTANodePoW = globals.IOTANodePoW
		if len(ret.IOTANodePoW) == 0 {
			ret.IOTANodePoW = ret.IOTANode[:1] // by default using first of nodes
		}
	}
	if len(ret.TxTagPromote) == 0 {
		ret.TxTagPromote = globals.TxTagPromote
	}
	if len(ret.TxTagPromote) == 0 {
		ret.TxTagPromote = defaultTagPromote
	}
	if len(ret.AddressPromote) == 0 {
		ret.AddressPromote = globals.AddressPromote
	}
	if ret.TimeoutAPI == 0 {
		ret.TimeoutAPI = globals.TimeoutAPI
	}
	if ret.TimeoutTipsel == 0 {
		ret.TimeoutTipsel = globals.TimeoutTipsel
	}
	if ret.TimeoutPoW == 0 {
		ret.TimeoutPoW = globals.TimeoutPoW
	}
	if ret.Depth == 0 {
		ret.Depth = globals.Depth
	}
	if ret.MWM == 0 {
		ret.MWM = globals.MWM
	}
	if ret.OutputsThreshold == 0 {
		ret.OutputsThreshold = globals.OutputsThreshold
	}
	if ret.SyncEverySec == 0 {
		ret.SyncEverySec = globals.SyncEverySec
	}
	if ret.SyncEverySec == 0 {
		ret.SyncEverySec = defaultSyncEverySec
	}
	if ret.PromoteEverySec == 0 {
		ret.PromoteEverySec = globals.PromoteEverySec
	}
	if ret.PromotionsLimit == 0 {
		ret.PromotionsLimit = globals.PromotionsLimit
	}
	ret.QuorumBalances = ret.QuorumBalances || globals.QuorumBalances
	ret.QuorumInclusion = ret.QuorumInclusion || globals.QuorumInclusion
	ret.LocalPoW = ret.LocalPoW || globals.LocalPoW
	if globals.PromoteDisable {
		ret.PromoteDisable = true
	}

	if len(ret.Addresses) == 0 {
		return &ret, fmt.Errorf("no addresses in account '%v'", name)
	}
	addrs := make([]Trytes, len(ret.Addresses))
	for i, a := range ret.Addresses {
		addrs[i] = Trytes(a)
	}
	if err := Validate(ValidateHashes(addrs...)); err != nil {
		return &ret, errors.Wrapf(err, "wrong address in account '%v'", name)
	}
	ret.TxTagPromote = Pad(Trytes(ret.TxTagPromote), TagTrinarySize/3)
	if err := Validate(ValidateTags(ret.TxTagPromote)); err != nil {
		return &ret, errors.Wrapf(err, "wrong tx tag promote in account '%v'", name)
	}
	if len(ret.AddressPromote) > 0 {
		if err := Validate(ValidateHashes(Trytes(ret.AddressPromote))); err != nil {
			return &ret, errors.Wrapf(err, "wrong promotion address in account '%v'", name)
		}
	}
	return &ret, nil
}

func getEnabledAccountNames() []string {
	ret := make([]string, 0)
	if !Config.Wallet.Globals.Enabled {
		return ret
	}
	for name, params := range Config.Wallet.Accounts {
		if params.Enabled {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

func logRuntimeStats() {
	var mem runtime.MemStats

	runtime.ReadMemStats(&mem)
	log.Debugf("------- DEBUG:RuntimeStats MB: Alloc = %v TotalAlloc = %v Sys = %v NumGC = %v NumGoroutines = %d\n",
		bToMb(mem.Alloc),
		bToMb(mem.TotalAlloc),
		bToMb(mem.Sys),
		mem.NumGC,
		runtime.NumGoroutine(),
	)
	for _, st := range getFeedStats() {
		log.Debugf("------- DEBUG:FeedStats %v: tx = %v sn = %v\n", st.Uri, st.TxCount, st.SnCount)
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
