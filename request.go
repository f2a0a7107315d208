// SPDX-License-Identifier: LGPL-3.0-or-later

// Package hyperfetch is a concurrent, resumable, controllable multi-resource
// download engine. It accepts a batch of Requests, resolves each to a
// concrete HTTP(S) target through a pluggable Resolver, and streams bytes to
// disk with bounded concurrency while exposing lifecycle controls and
// durable checkpoints.
package hyperfetch

import "fmt"

// RequestKind discriminates the Request variants the engine accepts.
type RequestKind int

const (
	RequestURL RequestKind = iota
	RequestID
	RequestParams
	RequestKeyedMap
	RequestResolved
)

// Request is an opaque, caller-supplied descriptor of something to
// download. Exactly one of its fields is meaningful, selected by Kind.
// Requests are immutable once created and are consumed by the Resolver.
type Request struct {
	Kind RequestKind

	URL      string
	ID       string
	Params   []string
	KeyedMap map[string]string
	Resolved *ResolvedTarget
}

// NewURLRequest builds a Request naming a raw URL string.
func NewURLRequest(url string) Request {
	return Request{Kind: RequestURL, URL: url}
}

// NewIDRequest builds a Request naming an opaque identifier string, to be
// turned into a concrete target by a Resolver that understands it.
func NewIDRequest(id string) Request {
	return Request{Kind: RequestID, ID: id}
}

// NewParamsRequest builds a Request from an ordered parameter list.
func NewParamsRequest(params ...string) Request {
	return Request{Kind: RequestParams, Params: params}
}

// NewKeyedMapRequest builds a Request from a keyed parameter map.
func NewKeyedMapRequest(m map[string]string) Request {
	return Request{Kind: RequestKeyedMap, KeyedMap: m}
}

// NewResolvedRequest wraps an already-resolved target, bypassing the
// Resolver entirely.
func NewResolvedRequest(target ResolvedTarget) Request {
	return Request{Kind: RequestResolved, Resolved: &target}
}

// Header is an ordered request-time header pair; ordering matters for
// servers sensitive to header order and for deterministic hashing.
type Header struct {
	Key   string
	Value string
}

// AuthKind discriminates the authentication schemes a Resolved Target may
// carry.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthBasic
	AuthBearer
	AuthAPIKey
)

// Auth describes how a worker should authenticate its probe/GET requests.
type Auth struct {
	Kind       AuthKind
	Username   string // Basic
	Password   string // Basic
	Token      string // Bearer, ApiKey
	HeaderName string // ApiKey: custom header name
}

// ResolvedTarget is the concrete, immutable-for-the-task-lifetime result of
// resolving a Request: a URL, any extra headers, optional auth, and the
// stable numeric task id the engine will track it under.
type ResolvedTarget struct {
	URL     string
	Headers []Header
	Auth    *Auth
	TaskID  uint32
}

// Resolver turns an opaque Request into a concrete ResolvedTarget. It is
// the engine's sole external collaborator for target resolution;
// implementations live in the resolver package.
type Resolver interface {
	Resolve(req Request) (ResolvedTarget, error)
}

// ResolveFunc adapts a plain function to the Resolver interface.
type ResolveFunc func(req Request) (ResolvedTarget, error)

func (f ResolveFunc) Resolve(req Request) (ResolvedTarget, error) { return f(req) }

// stableTaskID derives a deterministic id for a Request that does not carry
// one, per the spec: sum of codepoint(c) * (index+1) over an input string
// that varies by request kind, modulo 1,000,000.
func stableTaskID(req Request) uint32 {
	var input string
	switch req.Kind {
	case RequestURL:
		input = req.URL
	case RequestID:
		var n uint32
		if _, err := fmt.Sscanf(req.ID, "%d", &n); err == nil {
			return n
		}
		input = req.ID
	case RequestParams:
		if id, err := ParamsOrDigestTaskID(req.Params); err == nil {
			return id
		}
	case RequestKeyedMap:
		if v, ok := req.KeyedMap["id"]; ok {
			input = v
		} else {
			input = concatMapValues(req.KeyedMap)
		}
	case RequestResolved:
		if req.Resolved != nil {
			return req.Resolved.TaskID
		}
	}
	return hashCodepointSum(input)
}

func hashCodepointSum(s string) uint32 {
	var sum int64
	i := 0
	for _, r := range s {
		i++
		sum += int64(r) * int64(i)
	}
	return uint32(sum % 1_000_000)
}

func concatMapValues(m map[string]string) string {
	// Deterministic iteration: sort keys so the same map always hashes the
	// same way across runs.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	var out string
	for _, k := range keys {
		out += m[k]
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ParamsOrDigestTaskID implements the Request(Params) fallback: the first
// element parsed as an integer, else the id derived from the concatenation
// of all elements. It is exported because resolvers may need to compute the
// same id a resolved target must carry.
func ParamsOrDigestTaskID(params []string) (uint32, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("params request has no elements")
	}
	var n uint32
	if _, err := fmt.Sscanf(params[0], "%d", &n); err == nil {
		return n, nil
	}
	return hashCodepointSum(concatParams(params)), nil
}

func concatParams(params []string) string {
	var out string
	for _, p := range params {
		out += p
	}
	return out
}
