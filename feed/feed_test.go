package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Midland - Coldwater - Orr Lake - Weather Alerts</title>
  <entry>
    <id>tag:weather.gc.ca,2026:alert/1</id>
    <title>Snow Squall Warning, Midland - Coldwater</title>
    <summary>Heavy snow squalls expected.</summary>
    <updated>2026-01-15T10:00:00Z</updated>
    <published>2026-01-15T09:00:00Z</published>
    <link type="text/html" href="https://weather.gc.ca/warnings/1"/>
    <link type="application/cap+xml" href="https://weather.gc.ca/cap/1"/>
  </entry>
  <entry>
    <id>tag:weather.gc.ca,2026:alert/2</id>
    <title>Special Weather Statement, Midland - Coldwater</title>
    <summary>Significant snowfall possible.</summary>
    <updated>2026-01-15T12:00:00Z</updated>
    <link type="text/html" href="https://weather.gc.ca/warnings/2"/>
  </entry>
  <entry>
    <id></id>
    <title></title>
  </entry>
</feed>`

func TestFetchParsesAndSortsNewestFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != defaultUserAgent {
			t.Errorf("user agent = %q", ua)
		}
		w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSleep(func(time.Duration) {}))
	alerts, err := client.Fetch(context.Background(), "Tay Township area")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2 (entry without id dropped)", len(alerts))
	}
	if alerts[0].GUID != "tag:weather.gc.ca,2026:alert/2" {
		t.Errorf("newest entry should come first, got %q", alerts[0].GUID)
	}
	if alerts[1].Title != "Snow Squall Warning, Midland - Coldwater" {
		t.Errorf("title = %q", alerts[1].Title)
	}
	if alerts[1].Link != "https://weather.gc.ca/warnings/1" {
		t.Errorf("link should prefer text/html, got %q", alerts[1].Link)
	}
	if alerts[1].Area != "Tay Township area" {
		t.Errorf("area = %q", alerts[1].Area)
	}
	if alerts[1].Updated.IsZero() || alerts[1].Published.IsZero() {
		t.Error("timestamps not parsed")
	}
}

func TestFetchRewritesRegionWording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	client := NewClient(server.URL,
		WithSleep(func(time.Duration) {}),
		WithRegionRewrite("Midland - Coldwater"))

	alerts, err := client.Fetch(context.Background(), "Tay Township area")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := alerts[0].Title; got != "Special Weather Statement (Tay Township area)" {
		t.Errorf("title = %q", got)
	}
	if got := alerts[1].Title; got != "Snow Squall Warning (Tay Township area)" {
		t.Errorf("title = %q", got)
	}
}

func TestFetchRetriesOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(server.URL, WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	alerts, err := client.Fetch(context.Background(), "area")
	if err != nil {
		t.Fatalf("fetch after retries: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("got %d alerts", len(alerts))
	}
	if calls != 3 {
		t.Errorf("server called %d times, want 3", calls)
	}
	if len(slept) != 2 {
		t.Errorf("slept %d times, want 2", len(slept))
	}
}

func TestFetchExhaustedRetriesFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(2), WithSleep(func(time.Duration) {}))
	if _, err := client.Fetch(context.Background(), "area"); err == nil {
		t.Error("exhausted retries should return an error")
	}
}

func TestFetchMalformedXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<feed><entry>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(1), WithSleep(func(time.Duration) {}))
	if _, err := client.Fetch(context.Background(), "area"); err == nil {
		t.Error("malformed xml should return an error")
	}
}

func TestFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, WithSleep(func(time.Duration) {}))
	if _, err := client.Fetch(ctx, "area"); err == nil {
		t.Error("cancelled context should return an error")
	}
}

func TestRewriteTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			"comma form",
			"Snow Squall Warning, Midland - Coldwater - Orr Lake",
			"Snow Squall Warning (Tay Township area)",
		},
		{
			"bare region",
			"Alert for Midland - Coldwater - Orr Lake today",
			"Alert for Tay Township area today",
		},
		{
			"no region",
			"Snow Squall Warning",
			"Snow Squall Warning",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteTitle(tt.title, "Midland - Coldwater - Orr Lake", "Tay Township area")
			if got != tt.want {
				t.Errorf("RewriteTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
