package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFacebookPublish(t *testing.T) {
	var gotMessage, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-42/feed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotMessage = r.PostForm.Get("message")
		gotToken = r.PostForm.Get("access_token")
		w.Write([]byte(`{"id":"page-42_1"}`))
	}))
	defer server.Close()

	p := NewFacebookPlatform("page-42", "page-token", WithFBBaseURL(server.URL))
	if err := p.Publish(context.Background(), "hello page"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if gotMessage != "hello page" {
		t.Errorf("message = %q", gotMessage)
	}
	if gotToken != "page-token" {
		t.Errorf("access token = %q", gotToken)
	}
}

func TestFacebookPublishError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewFacebookPlatform("page-42", "page-token", WithFBBaseURL(server.URL))
	if err := p.Publish(context.Background(), "hello"); err == nil {
		t.Error("400 response should error")
	}
}
