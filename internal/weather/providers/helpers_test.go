package providers

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

const (
	testGeocodingEndpoint = DefaultGeocodingURL + geocodingPath
	testForecastEndpoint  = DefaultForecastURL + forecastPath
)

// fastBackoff keeps retry tests quick while preserving the attempt count.
var fastBackoff = BackoffConfig{
	MaxRetries:      5,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

func newMockClient(t *testing.T) (*http.Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	return &http.Client{Transport: mt}, mt
}

type recordingObserver struct {
	mu       sync.Mutex
	upstream map[string]int
	hits     int
	misses   int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{upstream: make(map[string]int)}
}

func (r *recordingObserver) ObserveUpstream(endpoint, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstream[endpoint+"/"+outcome]++
}

func (r *recordingObserver) ObserveCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}
