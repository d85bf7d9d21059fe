// Package gateway turns IPFS content references into ordered lists of HTTP
// gateway URLs.
package gateway

import (
	"strings"
)

const (
	Scheme      = "ipfs://"
	ContentPath = "/ipfs/"
)

// DefaultGateways are the public gateways used when none are configured.
var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

// Resolver expands content references across a fixed, ordered list of
// gateway base URLs. The first gateway is the preferred one.
type Resolver struct {
	gateways []string
}

// Default returns a Resolver over the built-in public gateways.
func Default() *Resolver {
	return &Resolver{gateways: append([]string(nil), DefaultGateways...)}
}

// New returns a Resolver over the given gateway base URLs. Blank entries are
// skipped; an empty list falls back to the built-in gateways.
func New(gateways []string) *Resolver {
	var clean []string
	for _, g := range gateways {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !strings.HasSuffix(g, "/") {
			g += "/"
		}
		clean = append(clean, g)
	}
	if len(clean) == 0 {
		return Default()
	}
	return &Resolver{gateways: clean}
}

// ContentPath extracts the content path (CID plus optional sub-path) from an
// ipfs:// reference or an HTTP(S) gateway URL.
func (r *Resolver) ContentPath(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, Scheme) {
		p := strings.TrimPrefix(strings.TrimPrefix(ref, Scheme), "ipfs/")
		return p, p != ""
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return "", false
	}
	_, p, found := strings.Cut(ref, ContentPath)
	return p, found && p != ""
}

// Primary maps a raw reference to a single URL on the preferred gateway.
// Non-IPFS references are returned unchanged.
func (r *Resolver) Primary(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, Scheme) {
		if p, ok := r.ContentPath(ref); ok {
			return r.gateways[0] + p
		}
	}
	return ref
}

// Resolve returns the ordered candidate URLs for ref. Empty input yields an
// empty list; references without a recognisable content path come back as a
// single-element list.
func (r *Resolver) Resolve(ref string) []string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return []string{}
	}
	p, ok := r.ContentPath(ref)
	if !ok {
		return []string{ref}
	}
	out := make([]string, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, g+p)
	}
	return out
}
