// Package sdhs holds the configuration and transport for the secure data
// handling service that receives processed interview files.
package sdhs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/civichealth/interviewrelay/internal/interview"
)

const defaultPort = 22

// connectionSchema guards the connection document before any field is read:
// a malformed secret fails loudly at startup, not mid-transfer.
const connectionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["defaults"],
	"properties": {
		"defaults": {
			"$ref": "#/$defs/destination",
			"required": ["host", "username", "password", "host_key_type", "host_key"]
		},
		"projects": {
			"type": "object",
			"additionalProperties": {"$ref": "#/$defs/destination"}
		}
	},
	"$defs": {
		"destination": {
			"type": "object",
			"properties": {
				"host": {"type": "string", "minLength": 1},
				"port": {"type": "integer", "minimum": 1, "maximum": 65535},
				"username": {"type": "string", "minLength": 1},
				"password": {"type": "string"},
				"host_key_type": {"type": "string"},
				"host_key": {"type": "string"},
				"folder": {"type": "string"}
			},
			"additionalProperties": false
		}
	}
}`

type destinationDoc struct {
	Host        *string `json:"host"`
	Port        *int    `json:"port"`
	Username    *string `json:"username"`
	Password    *string `json:"password"`
	HostKeyType *string `json:"host_key_type"`
	HostKey     *string `json:"host_key"`
	Folder      *string `json:"folder"`
}

type connectionDocument struct {
	Defaults destinationDoc            `json:"defaults"`
	Projects map[string]destinationDoc `json:"projects"`
}

// Config resolves per-project transfer destinations from a validated
// connection document. A project must be listed in the document, even with an
// empty override block, before anything is sent to it.
type Config struct {
	defaults destinationDoc
	projects map[string]destinationDoc
}

// ParseConfig validates the raw connection document against its schema and
// builds the destination resolver from it.
func ParseConfig(raw []byte) (*Config, error) {
	if err := validateDocument(raw); err != nil {
		return nil, fmt.Errorf("invalid connection document: %w", err)
	}
	var doc connectionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing connection document: %w", err)
	}
	return &Config{defaults: doc.Defaults, projects: doc.Projects}, nil
}

func validateDocument(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(connectionSchema)))
	if err != nil {
		return err
	}
	if err := compiler.AddResource("connection-document.json", schemaDoc); err != nil {
		return err
	}
	schema, err := compiler.Compile("connection-document.json")
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}

// Destination merges the project's overrides over the document defaults.
func (c *Config) Destination(projectAcronym string) (interview.Destination, error) {
	overrides, ok := c.projects[projectAcronym]
	if !ok {
		return interview.Destination{}, fmt.Errorf("%w: %s", interview.ErrUnknownProjectConfig, projectAcronym)
	}
	dest := interview.Destination{Port: defaultPort}
	for _, layer := range []destinationDoc{c.defaults, overrides} {
		if layer.Host != nil {
			dest.Host = *layer.Host
		}
		if layer.Port != nil {
			dest.Port = *layer.Port
		}
		if layer.Username != nil {
			dest.Username = *layer.Username
		}
		if layer.Password != nil {
			dest.Password = *layer.Password
		}
		if layer.HostKeyType != nil {
			dest.HostKeyType = *layer.HostKeyType
		}
		if layer.HostKey != nil {
			dest.HostKey = *layer.HostKey
		}
		if layer.Folder != nil {
			dest.Folder = *layer.Folder
		}
	}
	return dest, nil
}

// Projects lists the acronyms the document configures, for admin tooling.
func (c *Config) ProjectAcronyms() []string {
	out := make([]string, 0, len(c.projects))
	for acronym := range c.projects {
		out = append(out, acronym)
	}
	return out
}
