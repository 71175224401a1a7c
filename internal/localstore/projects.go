package localstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/civichealth/interviewrelay/internal/interview"
)

// LoadProjects reads a JSON array of project records from disk, for
// deployments that maintain project metadata as a checked-in file.
func LoadProjects(path string) (*interview.StaticProjectStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading projects file %s: %w", path, err)
	}
	var projects []interview.Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, fmt.Errorf("parsing projects file %s: %w", path, err)
	}
	return &interview.StaticProjectStore{Projects: projects}, nil
}
