// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
)

func buildHTTPClient(opts Options) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.TLSVerify}, // #nosec G402 -- explicit opt-in via TLSVerify
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	return client, nil
}

// applyAuth sets the appropriate header(s) for a ResolvedTarget's auth
// descriptor, per the spec's Basic/Bearer/ApiKey contract.
func applyAuth(req *http.Request, auth *Auth) {
	if auth == nil {
		return
	}
	switch auth.Kind {
	case AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthAPIKey:
		name := auth.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		req.Header.Set(name, auth.Token)
	}
}

func applyHeaders(req *http.Request, headers []Header) {
	for _, h := range headers {
		req.Header.Add(h.Key, h.Value)
	}
}
