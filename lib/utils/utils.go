package utils

import (
	"time"

	"github.com/iotaledger/iota.go/kerl"
	"github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
)

func UnixMs(t time.Time) uint64 {
	return uint64(t.UnixNano()) / uint64(time.Millisecond)
}

func UnixMsNow() uint64 {
	return UnixMs(time.Now())
}

func SinceUnixMs(ts uint64) uint64 {
	now := UnixMsNow()
	if now < ts {
		return 0
	}
	return now - ts
}

// KerlTrytes calculates Kerl hash of the same length as the input.
// Input length must be a multiple of 81 trytes
func KerlTrytes(s trinary.Trytes) (trinary.Trytes, error) {
	k := kerl.NewKerl()
	if k == nil {
		return "", errors.New("couldn't initialize Kerl instance")
	}
	trits, err := trinary.TrytesToTrits(s)
	if err != nil {
		return "", err
	}
	if err = k.Absorb(trits); err != nil {
		return "", errors.Wrap(err, "Absorb(_) failed")
	}
	ts, err := k.Squeeze(len(trits))
	if err != nil {
		return "", errors.Wrap(err, "Squeeze() failed")
	}
	return trinary.TritsToTrytes(ts)
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
