package wallet_update

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unioproject/tanglewallet/lib/nanomsg"
)

func TestUpdateChan(t *testing.T) {
	const url = "tcp://127.0.0.1:45732"
	p, err := nanomsg.NewPublisherAt(url, 10, nil)
	require.NoError(t, err)
	defer p.Close()

	ch, err := NewUpdateChan(url)
	require.NoError(t, err)

	sent := &WalletUpdate{
		Version:     "1.0",
		AccountUID:  "UID",
		AccountName: "main",
		UpdType:     WALLET_UPD_CONFIRM,
		Bundle:      "B1",
		NumAttaches: 1,
	}
	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, p.PublishAsJSON(sent))
		select {
		case got := <-ch:
			require.Equal(t, sent, got)
			return
		case <-deadline:
			t.Fatal("no update received")
		case <-time.After(100 * time.Millisecond):
		}
	}
}
