// SPDX-License-Identifier: LGPL-3.0-or-later

// Package pathplan implements the deterministic path-planning pipeline:
// filename derivation, directory organization, sanitization, and conflict
// resolution. It is pure with respect to its inputs except for conflict
// resolution, which is the one place filesystem state is observed, and the
// caller decides when that observation happens.
package pathplan

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"hyperfetch/template"
)

// NamingMode selects how a filename is derived.
type NamingMode int

const (
	NamingAuto NamingMode = iota
	NamingCustom
)

// OrganizationMode selects how the destination subdirectory is derived.
type OrganizationMode int

const (
	OrgFlat OrganizationMode = iota
	OrgByType
	OrgByDomain
	OrgCustom
)

// ConflictMode selects how an existing destination path is handled.
type ConflictMode int

const (
	ConflictOverwrite ConflictMode = iota
	ConflictRename
	ConflictError
)

// Policy mirrors the configuration's path_policy block.
type Policy struct {
	Naming           NamingMode
	FilenameTemplate string
	Organization     OrganizationMode
	DirTemplate      string
	Conflict         ConflictMode
	Sanitize         bool
	MaxLength        int
}

// DefaultPolicy matches the spec's documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		Naming:       NamingAuto,
		Organization: OrgFlat,
		Conflict:     ConflictOverwrite,
		Sanitize:     true,
		MaxLength:    255,
	}
}

// ResponseMeta is the subset of a probe/response the planner consumes.
type ResponseMeta struct {
	ContentDisposition string
	ContentType        string
	SuggestedFilename  string
}

// PolicyViolationError reports an invalid policy value or a structural
// violation the planner refuses to produce (excess depth, traversal).
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("path policy violation: %s", e.Reason)
}

const maxPathDepth = 10

// GeneratePath runs the full deterministic pipeline (steps 1-3 of the
// spec's generate_path): filename derivation, subdir derivation, join, and
// sanitize. It does not perform conflict resolution; call ResolveConflict
// separately once the candidate path is known.
func GeneratePath(savePath string, reqURL string, meta ResponseMeta, policy Policy, tctx template.Context) (string, error) {
	filename, err := deriveFilename(reqURL, meta, policy, tctx)
	if err != nil {
		return "", err
	}

	subdir, err := deriveSubdir(reqURL, meta, policy, tctx)
	if err != nil {
		return "", err
	}

	full := filepath.Join(savePath, subdir, filename)

	if policy.Sanitize {
		full, err = sanitize(savePath, subdir, filename, policy.MaxLength)
		if err != nil {
			return "", err
		}
	} else {
		if err := checkDepthAndTraversal(full); err != nil {
			return "", err
		}
	}

	return full, nil
}

func deriveFilename(reqURL string, meta ResponseMeta, policy Policy, tctx template.Context) (string, error) {
	switch policy.Naming {
	case NamingCustom:
		if policy.FilenameTemplate == "" {
			return "", &PolicyViolationError{Reason: "custom naming mode requires a filename template"}
		}
		return template.Render(policy.FilenameTemplate, tctx)
	case NamingAuto:
		if name := filenameFromContentDisposition(meta.ContentDisposition); name != "" {
			return name, nil
		}
		if name := lastURLSegment(reqURL); name != "" {
			return name, nil
		}
		return randomFilename(meta), nil
	default:
		return "", &PolicyViolationError{Reason: "invalid naming mode"}
	}
}

// filenameFromContentDisposition prefers RFC 5987 extended syntax
// (filename*=UTF-8''...), then a quoted filename="...", then a bare
// filename=... token.
func filenameFromContentDisposition(cd string) string {
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return extractFilenameFallback(cd)
	}
	if v, ok := params["filename*"]; ok {
		if name := decodeExtendedValue(v); name != "" {
			return sanitizeComponent(name)
		}
	}
	if v, ok := params["filename"]; ok && v != "" {
		return sanitizeComponent(v)
	}
	return ""
}

// decodeExtendedValue decodes an RFC 5987 ext-value of the form
// charset'lang'value, e.g. UTF-8''%e2%82%ac%20rates.pdf.
func decodeExtendedValue(v string) string {
	parts := strings.SplitN(v, "'", 3)
	raw := v
	if len(parts) == 3 {
		raw = parts[2]
	}
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}

// extractFilenameFallback handles a header mime.ParseMediaType rejects but
// that still plainly contains a filename token.
func extractFilenameFallback(cd string) string {
	lower := strings.ToLower(cd)
	idx := strings.Index(lower, "filename=")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(cd[idx+len("filename="):])
	rest = strings.Trim(rest, `"`)
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		rest = rest[:semi]
	}
	return sanitizeComponent(strings.TrimSpace(rest))
}

func lastURLSegment(reqURL string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	seg := path.Base(p)
	if seg == "" || seg == "." || seg == "/" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(seg); err == nil {
		seg = unescaped
	}
	return sanitizeComponent(seg)
}

func randomFilename(meta ResponseMeta) string {
	ext := extOf(meta.SuggestedFilename)
	if ext == "" {
		ext = ".bin"
	}
	return uuid.New().String() + ext
}

func extOf(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Ext(name)
}

var typeDirs = map[string]string{
	"image":       "media/images",
	"video":       "media/videos",
	"audio":       "media/audio",
	"text":        "documents",
	"application": "binaries",
}

func deriveSubdir(reqURL string, meta ResponseMeta, policy Policy, tctx template.Context) (string, error) {
	switch policy.Organization {
	case OrgFlat:
		return "", nil
	case OrgByType:
		major := strings.SplitN(meta.ContentType, "/", 2)[0]
		major = strings.ToLower(strings.TrimSpace(major))
		if dir, ok := typeDirs[major]; ok {
			return dir, nil
		}
		return "others", nil
	case OrgByDomain:
		u, err := url.Parse(reqURL)
		if err != nil || u.Host == "" {
			return "unknown", nil
		}
		return u.Host, nil
	case OrgCustom:
		if policy.DirTemplate == "" {
			return "", &PolicyViolationError{Reason: "custom organization mode requires a directory template"}
		}
		return template.Render(policy.DirTemplate, tctx)
	default:
		return "", &PolicyViolationError{Reason: "invalid organization mode"}
	}
}

// sanitizeComponent scrubs a single path component of reserved characters
// and percent-encoding, used while deriving a filename before the full-path
// sanitize pass runs.
func sanitizeComponent(s string) string {
	r := strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_",
		"?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
	)
	return r.Replace(s)
}

// sanitize rebuilds save/subdir/filename into a single safe path: replaces
// reserved characters, decodes percent-encoding, truncates the filename to
// maxLength (preserving extension, inserting an ellipsis if truncated),
// caps path depth, and rejects traversal.
func sanitize(savePath, subdir, filename string, maxLength int) (string, error) {
	filename = sanitizeComponent(filename)
	if unescaped, err := url.QueryUnescape(filename); err == nil {
		filename = unescaped
	}
	filename = truncatePreservingExt(filename, maxLength)

	subdirParts := splitClean(subdir)
	for i, p := range subdirParts {
		subdirParts[i] = sanitizeComponent(p)
	}

	full := filepath.Join(append(append([]string{savePath}, subdirParts...), filename)...)

	if err := checkDepthAndTraversal(full); err != nil {
		return "", err
	}
	return full, nil
}

func splitClean(subdir string) []string {
	if subdir == "" {
		return nil
	}
	parts := strings.Split(filepath.ToSlash(subdir), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}

func truncatePreservingExt(name string, maxLength int) string {
	if maxLength <= 0 || len(name) <= maxLength {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	const ellipsis = "…"
	keep := maxLength - len(ext) - len(ellipsis)
	if keep < 1 {
		keep = 1
	}
	if keep > len(stem) {
		keep = len(stem)
	}
	return stem[:keep] + ellipsis + ext
}

func checkDepthAndTraversal(full string) error {
	for _, part := range strings.Split(filepath.ToSlash(full), "/") {
		if part == ".." {
			return &PolicyViolationError{Reason: "path contains a traversal segment"}
		}
	}
	depth := strings.Count(filepath.ToSlash(filepath.Clean(full)), "/")
	if depth > maxPathDepth {
		return &PolicyViolationError{Reason: "path depth exceeds the maximum of 10"}
	}
	return nil
}

// ResolveConflict applies the policy's conflict mode against the current
// filesystem state, the one place this package performs I/O.
func ResolveConflict(candidate string, mode ConflictMode) (string, error) {
	if mode == ConflictOverwrite {
		return candidate, nil
	}

	_, err := os.Stat(candidate)
	if os.IsNotExist(err) {
		return candidate, nil
	}
	if err != nil {
		return "", err
	}

	switch mode {
	case ConflictError:
		return "", fmt.Errorf("destination already exists: %s", candidate)
	case ConflictRename:
		ext := filepath.Ext(candidate)
		stem := strings.TrimSuffix(candidate, ext)
		for i := 1; ; i++ {
			next := fmt.Sprintf("%s_%d%s", stem, i, ext)
			if _, err := os.Stat(next); os.IsNotExist(err) {
				return next, nil
			}
		}
	default:
		return "", &PolicyViolationError{Reason: "invalid conflict mode"}
	}
}
