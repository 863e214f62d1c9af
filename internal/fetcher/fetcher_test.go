package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher records the URL it was asked for.
type stubFetcher struct {
	got string
}

func (s *stubFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	s.got = url
	return io.NopCloser(strings.NewReader("stub")), nil
}

func TestRouter_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.csv")
	require.NoError(t, writeTestFile(path, "Deal Name\nCoal Survey\n"))

	r := NewRouter()
	data, err := r.ReadAll(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Deal Name\nCoal Survey\n", string(data))

	data, err = r.ReadAll(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRouter_LocalMissing(t *testing.T) {
	_, err := NewRouter().Open(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "fetcher: open")
}

func TestRouter_Dispatch(t *testing.T) {
	httpStub, ftpStub := &stubFetcher{}, &stubFetcher{}
	r := &Router{HTTP: httpStub, FTP: ftpStub}

	_, err := r.ReadAll(context.Background(), "https://exports.example.com/deals.csv")
	require.NoError(t, err)
	assert.Equal(t, "https://exports.example.com/deals.csv", httpStub.got)

	_, err = r.ReadAll(context.Background(), "ftp://ftp.example.com/work_orders.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "ftp://ftp.example.com/work_orders.xlsx", ftpStub.got)

	_, err = (&Router{}).Open(context.Background(), "ftp://ftp.example.com/x.csv")
	assert.ErrorContains(t, err, "no ftp fetcher")
}

func TestRouter_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Deal Name\n"))
	}))
	defer srv.Close()

	data, err := NewRouter().ReadAll(context.Background(), srv.URL+"/deals.csv")
	require.NoError(t, err)
	assert.Equal(t, "Deal Name\n", string(data))
}
