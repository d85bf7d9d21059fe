package gallery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"nftmint/pkg/models"
	"nftmint/pkg/utils"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

const maxLatencySamples = 50

// ImageLoader fetches slot images from their candidate URLs, falling back to
// the next candidate on failure, and keeps per-host latency samples.
type ImageLoader struct {
	Client *http.Client

	mu        sync.Mutex
	latencies map[string][]time.Duration
}

func NewImageLoader(timeout time.Duration) *ImageLoader {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &ImageLoader{
		Client:    &http.Client{Timeout: timeout},
		latencies: make(map[string][]time.Duration),
	}
}

// Load walks item's candidates starting at its cursor and stops at the first
// 2xx response or when the candidates are exhausted.
func (il *ImageLoader) Load(ctx context.Context, item *DisplayItem) models.ImageResult {
	res := models.ImageResult{Slot: item.SlotIndex}
	fb := NewFallback(item)
	for !item.Exhausted() {
		url := item.Current()
		if url == "" {
			fb.OnLoadFailure()
			break
		}
		res.Attempts++
		start := time.Now()
		err := il.fetch(ctx, url)
		elapsed := time.Since(start)
		if err == nil {
			il.record(url, elapsed)
			res.URL, res.OK, res.Latency = url, true, elapsed
			return res
		}
		if ctx.Err() != nil {
			// Cancelled loads say nothing about the gateway.
			break
		}
		il.record(url, -1)
		log.Debug("Image candidate failed", "slot", item.SlotIndex, "url", url, "err", err)
		if !fb.OnLoadFailure() {
			break
		}
	}
	if item.Exhausted() {
		log.Warn("All image candidates failed", "slot", item.SlotIndex, "candidates", len(item.CandidateURLs))
	}
	return res
}

// LoadImages loads every item concurrently. The callback, when set, is called
// as each slot finishes.
func (il *ImageLoader) LoadImages(ctx context.Context, items []*DisplayItem, onResult func(models.ImageResult)) []models.ImageResult {
	results := make([]models.ImageResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, item := range items {
		g.Go(func() error {
			results[i] = il.Load(gctx, item)
			if onResult != nil {
				onResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (il *ImageLoader) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := il.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("image request returned status: %s", resp.Status)
	}
	return nil
}

func (il *ImageLoader) record(url string, d time.Duration) {
	host := utils.HostOf(url)
	il.mu.Lock()
	defer il.mu.Unlock()
	samples := append(il.latencies[host], d)
	if len(samples) > maxLatencySamples {
		samples = samples[len(samples)-maxLatencySamples:]
	}
	il.latencies[host] = samples
}

// Latencies returns the recorded samples per gateway host, in milliseconds,
// with failed requests as -1.
func (il *ImageLoader) Latencies() map[string][]float64 {
	il.mu.Lock()
	defer il.mu.Unlock()
	out := make(map[string][]float64, len(il.latencies))
	for host, samples := range il.latencies {
		series := make([]float64, len(samples))
		for i, d := range samples {
			if d < 0 {
				series[i] = -1
				continue
			}
			series[i] = float64(d.Milliseconds())
		}
		out[host] = series
	}
	return out
}

// LastLatency returns the most recent sample for each host.
func (il *ImageLoader) LastLatency() []models.GatewayLatency {
	il.mu.Lock()
	defer il.mu.Unlock()
	out := make([]models.GatewayLatency, 0, len(il.latencies))
	for host, samples := range il.latencies {
		if len(samples) == 0 {
			continue
		}
		gl := models.GatewayLatency{Host: host, Latency: samples[len(samples)-1]}
		if gl.Latency < 0 {
			gl.Error = fmt.Sprintf("last request to %s failed", host)
		}
		out = append(out, gl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}
