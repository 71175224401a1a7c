package sdhs

import (
	"errors"
	"testing"

	"github.com/civichealth/interviewrelay/internal/interview"
)

const validDocument = `{
	"defaults": {
		"host": "sdhs.example.org",
		"username": "relay",
		"password": "hunter2",
		"host_key_type": "ssh-ed25519",
		"host_key": "AAAA",
		"folder": "/upload"
	},
	"projects": {
		"PSFU": {"folder": "/upload/psfu"},
		"IGN": {"host": "other.example.org", "port": 2222, "folder": "/upload/ign"}
	}
}`

func TestParseConfigMergesOverrides(t *testing.T) {
	cfg, err := ParseConfig([]byte(validDocument))
	if err != nil {
		t.Fatal(err)
	}

	psfu, err := cfg.Destination("PSFU")
	if err != nil {
		t.Fatal(err)
	}
	if psfu.Host != "sdhs.example.org" || psfu.Port != 22 || psfu.Username != "relay" {
		t.Errorf("defaults not applied: %+v", psfu)
	}
	if psfu.Folder != "/upload/psfu" {
		t.Errorf("Folder = %q", psfu.Folder)
	}

	ign, err := cfg.Destination("IGN")
	if err != nil {
		t.Fatal(err)
	}
	if ign.Host != "other.example.org" || ign.Port != 2222 {
		t.Errorf("overrides not applied: %+v", ign)
	}
	if ign.Password != "hunter2" {
		t.Errorf("Password = %q, want inherited default", ign.Password)
	}
}

func TestParseConfigUnknownProject(t *testing.T) {
	cfg, err := ParseConfig([]byte(validDocument))
	if err != nil {
		t.Fatal(err)
	}
	_, err = cfg.Destination("STRANGER")
	if !errors.Is(err, interview.ErrUnknownProjectConfig) {
		t.Fatalf("error = %v, want ErrUnknownProjectConfig", err)
	}
}

func TestParseConfigRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing defaults":   `{"projects": {}}`,
		"missing host":       `{"defaults": {"username": "relay", "password": "x", "host_key_type": "ssh-ed25519", "host_key": "AAAA"}}`,
		"unknown field":      `{"defaults": {"host": "h", "username": "u", "password": "p", "host_key_type": "t", "host_key": "k", "proxy": "nope"}}`,
		"port out of range":  `{"defaults": {"host": "h", "port": 99999, "username": "u", "password": "p", "host_key_type": "t", "host_key": "k"}}`,
		"not even an object": `[1, 2, 3]`,
	}
	for name, doc := range cases {
		if _, err := ParseConfig([]byte(doc)); err == nil {
			t.Errorf("%s: document accepted", name)
		}
	}
}
