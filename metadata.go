// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hyperfetch/internal/pathplan"
)

// ResponseMetadata is built from a probe response's headers and carried
// read-only through the rest of a task's life.
type ResponseMetadata struct {
	ContentType        string
	ContentDisposition string
	ETag               string
	LastModified       string
	Total              int64
	SuggestedFilename  string
	StartedAt          time.Time
}

func metadataFromResponse(resp *http.Response) ResponseMetadata {
	meta := ResponseMetadata{
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ETag:               resp.Header.Get("ETag"),
		LastModified:       resp.Header.Get("Last-Modified"),
		StartedAt:          time.Now(),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			meta.Total = n
		}
	}
	meta.SuggestedFilename = lastPathSegment(resp.Request.URL.Path)
	return meta
}

func lastPathSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// toPlanMeta projects the fields the path planner actually consumes.
func (m ResponseMetadata) toPlanMeta() pathplan.ResponseMeta {
	return pathplan.ResponseMeta{
		ContentDisposition: m.ContentDisposition,
		ContentType:        m.ContentType,
		SuggestedFilename:  m.SuggestedFilename,
	}
}
