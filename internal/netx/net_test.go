package netx

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchPresignedURL(t *testing.T) {
	file := []byte("hello, s3")

	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod, gotQuery string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotQuery = r.URL.RawQuery
			_, _ = w.Write(file)
		}))
		defer ts.Close()

		got, err := FetchPresignedURL(context.Background(), ts.Client(), ts.URL+"/some/presigned?X-Amz-Signature=abc", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Fatalf("method = %q, want GET", gotMethod)
		}
		if gotQuery != "X-Amz-Signature=abc" {
			t.Fatalf("query = %q", gotQuery)
		}
		if !bytes.Equal(got, file) {
			t.Fatalf("body = %q, want %q", string(got), string(file))
		}
	})

	t.Run("non-200 -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer ts.Close()

		_, err := FetchPresignedURL(context.Background(), nil, ts.URL, 0)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "download failed: 403") {
			t.Fatalf("error = %q, want to contain 403", err.Error())
		}
	})

	t.Run("over limit -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
		}))
		defer ts.Close()

		_, err := FetchPresignedURL(context.Background(), ts.Client(), ts.URL, 1024)
		if err == nil || !strings.Contains(err.Error(), "download exceeds 1.0 KiB") {
			t.Fatalf("error = %v, want size error", err)
		}
	})

	t.Run("exactly at limit is fine", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 1024))
		}))
		defer ts.Close()

		got, err := FetchPresignedURL(context.Background(), ts.Client(), ts.URL, 1024)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1024 {
			t.Fatalf("len = %d", len(got))
		}
	})

	t.Run("bad url -> error", func(t *testing.T) {
		if _, err := FetchPresignedURL(context.Background(), nil, "::bad", 0); err == nil {
			t.Fatal("expected error")
		}
	})
}
