package interview

import "strings"

// ParsedPath is the decomposition of an incoming object key of the form
// <interview-instance-id>/<media-type>/<filename>.
type ParsedPath struct {
	Filename    string
	InterviewID string
	MediaType   string
}

// ParsePath splits an object key into filename, interview-instance directory
// and media type. Keys with fewer than two separators are malformed: every
// deliverable lives under <instance>/<media-type>/.
func ParsePath(key string) (ParsedPath, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return ParsedPath{}, &MalformedPathError{Key: key}
	}
	return ParsedPath{
		Filename:    parts[len(parts)-1],
		InterviewID: parts[len(parts)-3],
		MediaType:   parts[len(parts)-2],
	}, nil
}

// Stem returns the filename without its extension.
func Stem(filename string) string {
	if i := strings.LastIndex(filename, "."); i > 0 {
		return filename[:i]
	}
	return filename
}
