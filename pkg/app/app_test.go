package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/mint"
	"nftmint/pkg/network"
	"nftmint/pkg/session"
	"nftmint/pkg/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// galleryServer serves metadata for three slots, with slot 2 missing. Image
// requests succeed after imageDelay.
func galleryServer(t *testing.T, imageDelay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var metaHits atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".json") {
			metaHits.Add(1)
			slot := strings.TrimSuffix(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], ".json")
			if slot == "2" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{"name":"Piece %s","image":"%s/ipfs/QmImg/%s.jpg"}`, slot, server.URL, slot)
			return
		}
		select {
		case <-time.After(imageDelay):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &metaHits
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Gallery.BaseURI = baseURL + "/ipfs/QmMeta/"
	cfg.Gallery.ItemCount = 3
	cfg.Gallery.Gateways = []string{baseURL + "/ipfs/"}
	cfg.Gallery.FetchTimeoutSeconds = 2
	return cfg
}

func waitFor(t *testing.T, sub events.Subscriber, typ events.EventType) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return events.Event{}
		}
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"Nil", nil, ""},
		{"No wallet", fmt.Errorf("%w: no rpc_url", wallet.ErrWalletUnavailable), "No wallet"},
		{"Rejected", fmt.Errorf("%w: 4001", session.ErrPermissionRejected), "rejected"},
		{"Switch", &network.MismatchError{Kind: network.SwitchFailed, Chain: "Sepolia"}, "switch your wallet to Sepolia"},
		{"Add required", &network.MismatchError{Kind: network.AddRequired, Chain: "Sepolia"}, "add Sepolia"},
		{"Add failed", &network.MismatchError{Kind: network.AddFailed, Chain: "Sepolia"}, "Could not add Sepolia"},
		{"Reset", session.ErrSessionReset, "network changed"},
		{"Disconnected", session.ErrDisconnected, "cancelled"},
		{"Not connected", mint.ErrNotConnected, "Connect your wallet"},
		{"Mint failed", fmt.Errorf("%w: reverted", mint.ErrMintFailed), "Mint failed"},
		{"Connect failed", fmt.Errorf("%w: boom", session.ErrConnectFailed), "Failed to connect"},
		{"Other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Notice(tt.err)
			if tt.err == nil {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestApp_NoWallet(t *testing.T) {
	cfg := config.Default()
	cfg.Wallet.Mode = "carrier-pigeon"
	a := New(context.Background(), cfg)
	defer a.Close()

	sub := a.Hub().Subscribe()
	err := a.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)

	ev := waitFor(t, sub, events.EventNotice)
	notice := ev.Data.(events.Notice)
	assert.Equal(t, events.LevelError, notice.Level)
	assert.Contains(t, notice.Text, "No wallet")
	assert.NotEmpty(t, a.Snapshot().WalletError)
	assert.False(t, a.SetWalletPassword("hunter2"))
}

func TestApp_MintWithoutConnect(t *testing.T) {
	a := NewWithProvider(config.Default(), nil)
	sub := a.Hub().Subscribe()

	res, err := a.Mint(context.Background(), 1)
	assert.Nil(t, res)
	assert.Nil(t, a.Owned())
	assert.ErrorIs(t, err, mint.ErrNotConnected)
	waitFor(t, sub, events.EventMintStarted)
	waitFor(t, sub, events.EventMintFinished)
	assert.False(t, a.Snapshot().Minting)
}

func TestApp_LoadGallery(t *testing.T) {
	server, _ := galleryServer(t, 0)
	a := NewWithProvider(testConfig(server.URL), nil)
	sub := a.Hub().Subscribe()

	a.LoadGallery(context.Background())

	items := a.Gallery()
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i+1, item.SlotIndex)
	}
	assert.Equal(t, "Piece 1", items[0].Name)
	assert.Equal(t, "Item #2", items[1].Name)
	assert.Equal(t, []string{server.URL + "/ipfs/QmMeta/2.jpg"}, items[1].Candidates)
	assert.Equal(t, server.URL+"/ipfs/QmImg/3.jpg", items[2].Current)

	waitFor(t, sub, events.EventGalleryLoaded)
	waitFor(t, sub, events.EventImageResolved)
	assert.False(t, a.Snapshot().Loading)
	assert.NotEmpty(t, a.Latencies())
	assert.NotEmpty(t, a.GatewayStatus())
}

func TestApp_RunReloadsOnReset(t *testing.T) {
	server, metaHits := galleryServer(t, 0)
	a := NewWithProvider(testConfig(server.URL), nil)
	sub := a.Hub().Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	assert.Eventually(t, func() bool { return metaHits.Load() == 3 && !a.Snapshot().Loading }, 2*time.Second, 10*time.Millisecond)

	a.Hub().Publish(events.Event{Type: events.EventReload})
	assert.Eventually(t, func() bool { return metaHits.Load() == 6 }, 2*time.Second, 10*time.Millisecond)
	waitFor(t, sub, events.EventNotice)
}

func TestApp_ReloadDuringLoad(t *testing.T) {
	server, metaHits := galleryServer(t, 800*time.Millisecond)
	a := NewWithProvider(testConfig(server.URL), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	// Metadata is in, images are still pending.
	require.Eventually(t, func() bool { return metaHits.Load() == 3 && a.Snapshot().Loading }, 2*time.Second, 5*time.Millisecond)

	a.Hub().Publish(events.Event{Type: events.EventReload})
	assert.Eventually(t, func() bool { return metaHits.Load() == 6 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, a.Snapshot().Loading)
	assert.Eventually(t, func() bool { return !a.Snapshot().Loading }, 4*time.Second, 10*time.Millisecond)
	assert.Len(t, a.Gallery(), 3)
}

func TestApp_LoadGallerySupersedes(t *testing.T) {
	server, metaHits := galleryServer(t, 500*time.Millisecond)
	a := NewWithProvider(testConfig(server.URL), nil)

	first := make(chan struct{})
	go func() {
		a.LoadGallery(context.Background())
		close(first)
	}()
	require.Eventually(t, func() bool { return metaHits.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	done := make(chan struct{})
	go func() {
		a.LoadGallery(context.Background())
		close(done)
	}()

	// The first load is cancelled rather than waiting out its image requests.
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first load was not cancelled")
	}
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, a.Snapshot().Loading, "the newer load still owns the loading flag")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("second load did not finish")
	}
	assert.False(t, a.Snapshot().Loading)
	assert.Equal(t, int32(6), metaHits.Load())
	assert.Len(t, a.Gallery(), 3)
}

func TestApp_TxURL(t *testing.T) {
	a := NewWithProvider(config.Default(), nil)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", a.TxURL("0xabc"))
	assert.Empty(t, a.TxURL(""))

	cfg := config.Default()
	cfg.Chain.BlockExplorerURLs = nil
	assert.Empty(t, NewWithProvider(cfg, nil).TxURL("0xabc"))
}
