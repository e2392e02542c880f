// Package rssfeed maintains the public RSS 2.0 output document mirroring
// the alerts the bot has seen.
package rssfeed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"time"
)

const maxItems = 25

// Item is one RSS entry.
type Item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        guid   `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	Language      string `xml:"language"`
	LastBuildDate string `xml:"lastBuildDate,omitempty"`
	Items         []Item `xml:"item"`
}

type document struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

// Feed is the RSS document bound to a file path.
type Feed struct {
	path string
	doc  document
}

// Open loads the feed at path, creating a fresh document when the file is
// missing or unreadable.
func Open(path, title, link, description string) (*Feed, error) {
	f := &Feed{
		path: path,
		doc: document{
			Version: "2.0",
			Channel: channel{
				Title:       title,
				Link:        link,
				Description: description,
				Language:    "en-ca",
			},
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read rss file: %w", err)
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err == nil && doc.Channel.Title != "" {
		f.doc = doc
		f.doc.Version = "2.0"
	}
	return f, nil
}

// Has reports whether an item with the given GUID is already present.
func (f *Feed) Has(guidValue string) bool {
	for _, item := range f.doc.Channel.Items {
		if item.GUID.Value == guidValue {
			return true
		}
	}
	return false
}

// Add inserts a new item at the top of the feed. Duplicate GUIDs are
// ignored.
func (f *Feed) Add(title, link, guidValue, description string, pubDate time.Time) {
	if f.Has(guidValue) {
		return
	}
	item := Item{
		Title:       title,
		Link:        link,
		GUID:        guid{IsPermaLink: "false", Value: guidValue},
		PubDate:     pubDate.UTC().Format(time.RFC1123Z),
		Description: description,
	}
	f.doc.Channel.Items = append([]Item{item}, f.doc.Channel.Items...)
}

// Save trims retention, stamps lastBuildDate and writes the document.
func (f *Feed) Save(now time.Time) error {
	if len(f.doc.Channel.Items) > maxItems {
		f.doc.Channel.Items = f.doc.Channel.Items[:maxItems]
	}
	f.doc.Channel.LastBuildDate = now.UTC().Format(time.RFC1123Z)

	data, err := xml.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rss: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	out = append(out, '\n')

	if err := os.WriteFile(f.path, out, 0o644); err != nil {
		return fmt.Errorf("write rss file: %w", err)
	}
	return nil
}

// Len returns the number of items in the feed.
func (f *Feed) Len() int {
	return len(f.doc.Channel.Items)
}
