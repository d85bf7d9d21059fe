package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nftmint/pkg/config"
	"nftmint/pkg/gateway"
	"nftmint/pkg/models"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

const defaultFetchTimeout = 15 * time.Second

// Loader fetches the metadata document of every slot.
type Loader struct {
	Client     *http.Client
	resolver   *gateway.Resolver
	ext        string
	namePrefix string
}

// NewLoader builds a Loader from the gallery configuration.
func NewLoader(resolver *gateway.Resolver, cfg config.GalleryConfig) *Loader {
	timeout := cfg.FetchTimeout()
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ext := cfg.ImageExt
	if ext == "" {
		ext = config.DefaultImageExt
	}
	prefix := cfg.NamePrefix
	if prefix == "" {
		prefix = config.DefaultNamePrefix
	}
	if resolver == nil {
		resolver = gateway.Default()
	}
	return &Loader{
		Client:     &http.Client{Timeout: timeout},
		resolver:   resolver,
		ext:        ext,
		namePrefix: prefix,
	}
}

// LoadAll fetches metadata for slots 1..count concurrently and returns the
// items in slot order. Per-slot failures are logged and degrade to a
// synthesized name and a single local candidate; they never fail the load.
func (l *Loader) LoadAll(ctx context.Context, count int, baseRef string) []*DisplayItem {
	if count <= 0 {
		return []*DisplayItem{}
	}
	items := make([]*DisplayItem, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		slot := i + 1
		g.Go(func() error {
			items[slot-1] = l.loadSlot(gctx, slot, baseRef)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (l *Loader) loadSlot(ctx context.Context, slot int, baseRef string) *DisplayItem {
	local := fmt.Sprintf("%s%d.%s", baseRef, slot, l.ext)
	meta, err := l.fetchMetadata(ctx, fmt.Sprintf("%s%d.json", baseRef, slot))
	if err != nil {
		log.Warn("Metadata fetch failed", "slot", slot, "err", err)
		return &DisplayItem{
			SlotIndex:     slot,
			Name:          l.fallbackName(slot),
			CandidateURLs: []string{local},
		}
	}

	name := meta.Name
	if name == "" {
		name = l.fallbackName(slot)
	}
	primary := l.resolver.Primary(meta.Image)
	if primary == "" {
		primary = local
	}
	return &DisplayItem{
		SlotIndex:     slot,
		Name:          name,
		Description:   meta.Description,
		Attributes:    meta.Attributes,
		CandidateURLs: l.resolver.Resolve(primary),
		MetadataOK:    true,
	}
}

func (l *Loader) fallbackName(slot int) string {
	return fmt.Sprintf("%s #%d", l.namePrefix, slot)
}

func (l *Loader) fetchMetadata(ctx context.Context, url string) (*models.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("metadata request returned status: %s", resp.Status)
	}

	var meta models.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
