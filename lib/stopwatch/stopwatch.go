package stopwatch

import (
	"sync"
	"time"

	"github.com/unioproject/tanglewallet/lib/utils"
)

// stopwatch with a given name is started once.
// The first Stop records the time, subsequent stops have no effect.
// Get returns the result and removes the stopwatch.

type stopwatchEntry struct {
	started uint64
	stopped uint64
}

var stopwatches = make(map[string]stopwatchEntry)
var mutex sync.Mutex

func Start(name string) bool {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := stopwatches[name]; ok {
		return false
	}
	stopwatches[name] = stopwatchEntry{started: utils.UnixMs(time.Now())}
	return true
}

func Stop(name string) bool {
	mutex.Lock()
	defer mutex.Unlock()

	entry, ok := stopwatches[name]
	if !ok {
		return false
	}
	if entry.stopped == 0 {
		entry.stopped = utils.UnixMs(time.Now())
		stopwatches[name] = entry
	}
	return true
}

func Get(name string) (uint64, uint64, bool) {
	mutex.Lock()
	defer mutex.Unlock()

	entry, ok := stopwatches[name]
	if !ok {
		return 0, 0, false
	}
	delete(stopwatches, name)
	return entry.started, entry.stopped, true
}

// DurationMs stops the stopwatch and removes it, returning milliseconds since start
func DurationMs(name string) (uint64, bool) {
	Stop(name)
	started, stopped, ok := Get(name)
	if !ok {
		return 0, false
	}
	return stopped - started, true
}
