// Package fetcher opens exported collection files from local paths, HTTP
// and FTP locations and parses them as CSV or XLSX.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Router dispatches a location to the fetcher for its scheme. Locations
// without a known scheme are opened from the local filesystem.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter returns a Router with default HTTP and FTP fetchers.
func NewRouter() *Router {
	return &Router{
		HTTP: NewHTTPFetcher(HTTPOptions{}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

// Open returns a reader over the location's bytes. The caller must close it.
func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		if r.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return r.HTTP.Download(ctx, location)
	case strings.HasPrefix(location, "ftp://"):
		if r.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return r.FTP.Download(ctx, location)
	default:
		f, err := os.Open(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", location)
		}
		return f, nil
	}
}

// ReadAll opens location and returns its full contents.
func (r *Router) ReadAll(ctx context.Context, location string) ([]byte, error) {
	rc, err := r.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", location)
	}
	return data, nil
}
