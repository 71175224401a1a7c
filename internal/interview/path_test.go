package interview

import (
	"errors"
	"testing"
)

func TestParsePath(t *testing.T) {
	key := "f21d28a7-d3a5-42bf-8771-5d205ab67dcb/video/61ca75b6-2c2e-4d32-a8a6-300bf7fd6fa1.mp4"
	parsed, err := ParsePath(key)
	if err != nil {
		t.Fatalf("ParsePath(%q): %v", key, err)
	}
	if parsed.InterviewID != "f21d28a7-d3a5-42bf-8771-5d205ab67dcb" {
		t.Errorf("InterviewID = %q", parsed.InterviewID)
	}
	if parsed.MediaType != "video" {
		t.Errorf("MediaType = %q", parsed.MediaType)
	}
	if parsed.Filename != "61ca75b6-2c2e-4d32-a8a6-300bf7fd6fa1.mp4" {
		t.Errorf("Filename = %q", parsed.Filename)
	}
	if rebuilt := parsed.InterviewID + "/" + parsed.MediaType + "/" + parsed.Filename; rebuilt != key {
		t.Errorf("round trip = %q, want %q", rebuilt, key)
	}
}

func TestParsePathUsesTrailingSegments(t *testing.T) {
	parsed, err := ParsePath("staging/bf67ce1c-757a-46d6-bed6-13d50e1ff0b5/audio/take2.flac")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.InterviewID != "bf67ce1c-757a-46d6-bed6-13d50e1ff0b5" || parsed.MediaType != "audio" || parsed.Filename != "take2.flac" {
		t.Errorf("unexpected decomposition: %+v", parsed)
	}
}

func TestParsePathMalformed(t *testing.T) {
	for _, key := range []string{"", "file.mp4", "dir/file.mp4"} {
		_, err := ParsePath(key)
		if !errors.Is(err, ErrMalformedPath) {
			t.Errorf("ParsePath(%q) error = %v, want ErrMalformedPath", key, err)
		}
	}
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"recording.mp4":    "recording",
		"recording.v2.mp4": "recording.v2",
		"noextension":      "noextension",
		".hidden":          ".hidden",
	}
	for in, want := range cases {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}
