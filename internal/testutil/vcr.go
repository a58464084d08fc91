// Package testutil holds helpers shared by the upstream client tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// sensitiveHeaders never reach a cassette.
var sensitiveHeaders = []string{"Authorization", "X-Api-Key"}

// NewVCRRecorder creates a VCR recorder for the cassette at path.
func NewVCRRecorder(t *testing.T, path string, mode recorder.Mode) (*recorder.Recorder, func()) {
	t.Helper()

	r, err := recorder.NewAsMode(path, mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Don't match on request body for simplicity
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	r.AddFilter(func(i *cassette.Interaction) error {
		for _, h := range sensitiveHeaders {
			delete(i.Request.Headers, h)
		}
		return nil
	})

	// Cleanup function
	cleanup := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}

	return r, cleanup
}

// VCRHTTPClient returns an HTTP client configured to use the VCR recorder
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}

// RecordReplay runs exercise twice. The first run talks to upstream and
// records a cassette. The second run happens after upstream is closed and
// is served entirely from the cassette, so both runs must observe the same
// responses.
func RecordReplay(t *testing.T, name string, upstream *httptest.Server, exercise func(t *testing.T, client *http.Client, baseURL string)) {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	baseURL := upstream.URL

	rec, stop := NewVCRRecorder(t, path, recorder.ModeRecording)
	t.Run("record", func(t *testing.T) {
		exercise(t, VCRHTTPClient(rec), baseURL)
	})
	stop()
	upstream.Close()

	replay, stopReplay := NewVCRRecorder(t, path, recorder.ModeReplaying)
	defer stopReplay()
	t.Run("replay", func(t *testing.T) {
		exercise(t, VCRHTTPClient(replay), baseURL)
	})
}
