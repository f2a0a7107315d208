// SPDX-License-Identifier: LGPL-3.0-or-later

// Package resolver implements the engine's Resolver contract for several
// request shapes: a trivial passthrough for plain URLs, and cloud-object
// resolvers that turn an identifier into a time-limited signed URL against
// S3, Azure Blob Storage, or Google Cloud Storage.
package resolver

import (
	"fmt"

	"hyperfetch"
)

// URLResolver implements hyperfetch.Resolver for Request(Url) and
// Request(Resolved) variants; anything else is rejected, since it has no
// opinion on how to turn an id, params, or a keyed map into a URL.
type URLResolver struct{}

func (URLResolver) Resolve(req hyperfetch.Request) (hyperfetch.ResolvedTarget, error) {
	switch req.Kind {
	case hyperfetch.RequestURL:
		return hyperfetch.ResolvedTarget{URL: req.URL}, nil
	case hyperfetch.RequestResolved:
		if req.Resolved == nil {
			return hyperfetch.ResolvedTarget{}, fmt.Errorf("resolved request carries no target")
		}
		return *req.Resolved, nil
	default:
		return hyperfetch.ResolvedTarget{}, fmt.Errorf("url resolver cannot handle request kind %v", req.Kind)
	}
}
