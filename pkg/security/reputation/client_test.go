package reputation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHash = "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f"

const fileReportJSON = `{
  "data": {
    "id": "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f",
    "attributes": {
      "last_analysis_stats": {"malicious": 7, "suspicious": 1, "harmless": 0, "undetected": 60},
      "last_analysis_results": {
        "EngineA": {"category": "malicious", "result": "EICAR-Test-File"},
        "EngineB": {"category": "malicious", "result": "EICAR-Test-File"},
        "EngineC": {"category": "undetected", "result": ""}
      },
      "reputation": -12,
      "meaningful_name": "eicar.com",
      "last_analysis_date": 1700000000
    }
  }
}`

func newFakeVT(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLookup_NotConfigured(t *testing.T) {
	_, err := NewClient("  ").Lookup(context.Background(), sampleHash)
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Configured())
}

func TestLookup_Found(t *testing.T) {
	srv, _ := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/files/"+sampleHash, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fileReportJSON))
	})

	rec, err := NewClient("test-key", WithBaseURL(srv.URL)).Lookup(context.Background(), strings.ToUpper(sampleHash))
	require.NoError(t, err)
	assert.Equal(t, sampleHash, rec.SHA256)
	assert.Equal(t, 7, rec.Malicious)
	assert.Equal(t, 68, rec.Engines())
	assert.Equal(t, -12, rec.Reputation)
	assert.Equal(t, []string{"EICAR-Test-File"}, rec.ThreatNames)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.AnalyzedAt)

	v, ok := rec.Detection()
	require.True(t, ok)
	assert.Equal(t, "high", v.Risk)
	assert.Equal(t, "malware", v.Type)
	assert.Equal(t, "VirusTotal: EICAR-Test-File", v.Name)
	assert.Contains(t, v.Details, "7 of 68")
}

func TestLookup_NotFound(t *testing.T) {
	srv, _ := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NotFoundError","message":"not found"}}`))
	})

	_, err := NewClient("k", WithBaseURL(srv.URL)).Lookup(context.Background(), sampleHash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_ServiceError(t *testing.T) {
	srv, _ := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"QuotaExceededError","message":"quota"}}`))
	})

	_, err := NewClient("k", WithBaseURL(srv.URL)).Lookup(context.Background(), sampleHash)
	require.ErrorIs(t, err, ErrServiceError)
	assert.Contains(t, err.Error(), "QuotaExceededError")
}

func TestLookup_MalformedBody(t *testing.T) {
	srv, _ := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := NewClient("k", WithBaseURL(srv.URL)).Lookup(context.Background(), sampleHash)
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestLookup_InvalidHash(t *testing.T) {
	_, err := NewClient("k").Lookup(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestLookup_Timeout(t *testing.T) {
	srv, _ := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := NewClient("k", WithBaseURL(srv.URL), WithTimeout(100*time.Millisecond)).Lookup(context.Background(), sampleHash)
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestLookup_Cached(t *testing.T) {
	srv, calls := newFakeVT(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fileReportJSON))
	})

	c := NewClient("k", WithBaseURL(srv.URL))
	for i := 0; i < 3; i++ {
		_, err := c.Lookup(context.Background(), sampleHash)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	now := time.Now()
	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err := c.Lookup(context.Background(), sampleHash)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRecordDetection(t *testing.T) {
	_, ok := (&Record{Harmless: 10, Undetected: 50}).Detection()
	assert.False(t, ok)

	v, ok := (&Record{Malicious: 2, Undetected: 60}).Detection()
	require.True(t, ok)
	assert.Equal(t, "medium", v.Risk)
	assert.Equal(t, "VirusTotal: malicious", v.Name)

	v, ok = (&Record{Suspicious: 3, Undetected: 60}).Detection()
	require.True(t, ok)
	assert.Equal(t, "low", v.Risk)
	assert.Equal(t, "suspicious", v.Type)

	var nilRec *Record
	_, ok = nilRec.Detection()
	assert.False(t, ok)
}
