package eventful

import (
	"errors"
	"testing"
)

const sampleSearch = `{
  "total_items": "3",
  "events": {
    "event": [
      {
        "venue_name": "Blues Alley",
        "latitude": "38.9047",
        "longitude": "-77.0626",
        "title": "Jazz Night",
        "description": "Late set",
        "start_time": "2016-05-05 20:00:00",
        "url": "http://example.com/e/1",
        "image": {"medium": {"url": "http://example.com/i/1.jpg"}},
        "performers": {"performer": {"name": "Trio"}}
      },
      {
        "venue_name": "9:30 Club",
        "latitude": 38.9178,
        "longitude": -77.0237,
        "title": "Indie",
        "description": null,
        "start_time": "2016-05-05 21:00:00",
        "url": "http://example.com/e/2",
        "image": null,
        "performers": null
      }
    ]
  }
}`

func TestDecodeArray(t *testing.T) {
	t.Parallel()

	records, err := Decode([]byte(sampleSearch))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	first := records[0]
	if first.VenueName != "Blues Alley" || first.Title != "Jazz Night" {
		t.Fatalf("first = %+v", first)
	}
	if first.ImageURL != "http://example.com/i/1.jpg" {
		t.Fatalf("image = %q", first.ImageURL)
	}
	if !first.HasPerformers {
		t.Fatal("first record should have performers")
	}

	second := records[1]
	if second.Latitude != "38.9178" {
		t.Fatalf("numeric latitude = %q, want 38.9178", second.Latitude)
	}
	if second.ImageURL != "" || second.Description != "" {
		t.Fatalf("null fields should decode empty: %+v", second)
	}
	if second.HasPerformers {
		t.Fatal("null performers should not count")
	}
}

func TestDecodeSingleObjectAndNull(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "single event object", body: `{"events":{"event":{"venue_name":"A","performers":"x"}}}`, want: 1},
		{name: "events null", body: `{"total_items":"0","events":null}`, want: 0},
		{name: "no events key", body: `{}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(records) != tt.want {
				t.Fatalf("records = %d, want %d", len(records), tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("<html>")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestPerformersPresence(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		`{"events":{"event":{"performers":"x"}}}`:                 true,
		`{"events":{"event":{"performers":""}}}`:                  false,
		`{"events":{"event":{"performers":{}}}}`:                  false,
		`{"events":{"event":{"performers":[]}}}`:                  false,
		`{"events":{"event":{"performers":[{"name":"a"}]}}}`:      true,
		`{"events":{"event":{"performers":{"performer":"solo"}}}}`: true,
		`{"events":{"event":{"title":"no performers"}}}`:          false,
	}
	for body, want := range tests {
		records, err := Decode([]byte(body))
		if err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if records[0].HasPerformers != want {
			t.Fatalf("%s: HasPerformers = %v, want %v", body, records[0].HasPerformers, want)
		}
	}
}
