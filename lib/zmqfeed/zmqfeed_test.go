package zmqfeed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	addrA = strings.Repeat("A", 81)
	addrB = strings.Repeat("B", 81)
)

func TestParseMessage(t *testing.T) {
	topic, addr, ok := ParseMessage("tx HASH " + addrA + " 0 TAG 1550000000 0 0 BUNDLE TRUNK BRANCH 1550000000 TAG")
	require.True(t, ok)
	require.Equal(t, "tx", topic)
	require.Equal(t, addrA, addr)

	topic, addr, ok = ParseMessage("sn 1000 HASH " + addrB + " TRUNK BRANCH BUNDLE")
	require.True(t, ok)
	require.Equal(t, "sn", topic)
	require.Equal(t, addrB, addr)

	_, _, ok = ParseMessage("lmi 1 2")
	require.False(t, ok)
	_, _, ok = ParseMessage("tx HASH")
	require.False(t, ok)
	_, _, ok = ParseMessage("tx HASH SHORT")
	require.False(t, ok)
}

func TestDispatch(t *testing.T) {
	f := NewFeed("tcp://localhost:5556", 1, nil)
	f.Watch("acc1", []string{addrA + "CHECKSUM9"})

	account, ok := f.Dispatch("tx HASH " + addrA + " 0")
	require.True(t, ok)
	require.Equal(t, "acc1", account)
	require.Equal(t, "acc1", <-f.Triggers())

	_, ok = f.Dispatch("sn 1 HASH " + addrB)
	require.False(t, ok)

	// full trigger buffer does not block
	f.Dispatch("tx HASH " + addrA + " 0")
	f.Dispatch("tx HASH " + addrA + " 0")
	require.Len(t, f.Triggers(), 1)

	stats := f.Stats()
	require.EqualValues(t, 3, stats.TxCount)
	require.EqualValues(t, 1, stats.SnCount)
}
