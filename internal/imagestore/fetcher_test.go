package imagestore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newImageServer(status int, body []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
}

func countFiles(t *testing.T, fs afero.Fs, dir string) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	return len(entries)
}

func TestFetcher_Fetch_Success(t *testing.T) {
	body := append([]byte{0xFF, 0xD8, 0xFF}, bytes.Repeat([]byte{7}, 64)...)
	srv := newImageServer(http.StatusOK, body)
	defer srv.Close()

	store, fs := newMemStore()
	fetcher := NewFetcher(store)

	uid, err := fetcher.Fetch(context.Background(), srv.URL+"/cat.jpg")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if uid == "" {
		t.Fatal("Fetch() returned empty uid")
	}

	stored, err := afero.ReadFile(fs, store.Path(uid))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Error("stored bytes differ from response body")
	}
}

func TestFetcher_Fetch_NonOK(t *testing.T) {
	for _, status := range []int{
		http.StatusNoContent,
		http.StatusMovedPermanently,
		http.StatusNotFound,
		http.StatusForbidden,
		http.StatusInternalServerError,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := newImageServer(status, []byte("nope"))
			defer srv.Close()

			store, fs := newMemStore()
			uid, err := NewFetcher(store).Fetch(context.Background(), srv.URL)

			if uid != "" {
				t.Errorf("Fetch() uid = %q, want empty", uid)
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != status {
				t.Errorf("Fetch() error = %v, want StatusError %d", err, status)
			}
			if n := countFiles(t, fs, store.Dir()); n != 0 {
				t.Errorf("%d files written for status %d, want 0", n, status)
			}
		})
	}
}

func TestFetcher_Fetch_TransportError(t *testing.T) {
	srv := newImageServer(http.StatusOK, nil)
	url := srv.URL
	srv.Close()

	store, fs := newMemStore()
	uid, err := NewFetcher(store).Fetch(context.Background(), url)
	if err == nil || uid != "" {
		t.Fatalf("Fetch() = (%q, %v), want empty uid and error", uid, err)
	}
	if exists, _ := afero.DirExists(fs, store.Dir()); !exists {
		t.Error("storage directory not created before the download")
	}
	if n := countFiles(t, fs, store.Dir()); n != 0 {
		t.Errorf("%d files written, want 0", n)
	}
}

func TestNewFetcher_TimeoutLeavesCallerClientAlone(t *testing.T) {
	store, _ := newMemStore()
	client := &http.Client{}

	fetcher := NewFetcher(store, WithFetchTimeout(5*time.Second), WithFetchHTTPClient(client))

	if client.Timeout != 0 {
		t.Errorf("caller client timeout = %v, want untouched", client.Timeout)
	}
	if fetcher.httpClient.Timeout != 5*time.Second {
		t.Errorf("fetcher timeout = %v, want 5s", fetcher.httpClient.Timeout)
	}
}

func TestNewFetcher_NilClientIgnored(t *testing.T) {
	store, _ := newMemStore()

	fetcher := NewFetcher(store, WithFetchHTTPClient(nil), WithFetchTimeout(time.Second))

	if fetcher.httpClient == nil || fetcher.httpClient.Timeout != time.Second {
		t.Errorf("httpClient = %+v, want default client with 1s timeout", fetcher.httpClient)
	}
}

func TestFetcher_Fetch_TimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	store, fs := newMemStore()
	fetcher := NewFetcher(store, WithFetchTimeout(20*time.Millisecond))

	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/slow.jpg"); err == nil {
		t.Fatal("Fetch() error = nil, want timeout")
	}
	if n := countFiles(t, fs, store.Dir()); n != 0 {
		t.Errorf("files = %d, want 0", n)
	}
}
