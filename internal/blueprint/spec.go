// Package blueprint defines the target specification for an installation
// blueprint and persists the final artifact (run.sh + blueprint.yml) under
// the setup tree.
package blueprint

import (
	"fmt"
	"strings"
)

// Spec identifies what is being installed. It is immutable once a session
// starts: the controller and runner only ever read it.
type Spec struct {
	// Technology is the language or tool name (e.g. "python", "node").
	Technology string `yaml:"technology" json:"technology"`

	// Version of the technology (e.g. "3.11", "22.1.0", "latest").
	Version string `yaml:"version" json:"version"`

	// PackageManager used by the technology (e.g. "pip", "npm").
	PackageManager string `yaml:"package_manager" json:"package_manager"`
}

// Validate checks that all fields are present.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Technology) == "" {
		return fmt.Errorf("technology is required")
	}
	if strings.TrimSpace(s.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(s.PackageManager) == "" {
		return fmt.Errorf("package manager is required")
	}
	return nil
}

// Slug returns the directory name for this spec under the setup tree,
// e.g. "python-3.11-pip".
func (s Spec) Slug() string {
	return fmt.Sprintf("%s-%s-%s", sanitize(s.Technology), sanitize(s.Version), sanitize(s.PackageManager))
}

// String returns a human-readable description for logging.
func (s Spec) String() string {
	return fmt.Sprintf("%s %s (%s)", s.Technology, s.Version, s.PackageManager)
}

// sanitize makes a spec field safe for use in a path component.
func sanitize(field string) string {
	field = strings.TrimSpace(strings.ToLower(field))
	field = strings.ReplaceAll(field, "/", "-")
	field = strings.ReplaceAll(field, `\`, "-")
	return strings.Join(strings.Fields(field), "-")
}
