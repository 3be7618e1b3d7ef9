package transport

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_GetCachesClientPerVendor(t *testing.T) {
	p := New()
	defer p.CloseAll()

	c1, err := p.Get("primegov", false)
	require.NoError(t, err)
	c2, err := p.Get("primegov", false)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := p.Get("legistar", false)
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestPool_GetAfterCloseAllFails(t *testing.T) {
	p := New()
	p.CloseAll()

	_, err := p.Get("primegov", false)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNewRequest_SetsDefaultHeaders(t *testing.T) {
	req, err := NewRequest(context.Background(), http.MethodGet, "https://example.gov/agenda")
	require.NoError(t, err)
	assert.Equal(t, "*/*", req.Header.Get("Accept"))
	assert.Contains(t, req.Header.Get("User-Agent"), "engagic-ingest")
}
