package types

import (
	"time"

	"github.com/google/uuid"
)

// Project is the persisted record of a project workspace.
type Project struct {
	ID    uuid.UUID `json:"id"`
	Owner string    `json:"owner"`
	// Name is unique per owner and doubles as the container handle suffix.
	Name     string `json:"name"`
	Path     string `json:"path"`
	WSDLPath string `json:"wsdl_path"`
	// XSDPath is empty when no schema was uploaded.
	XSDPath   string    `json:"xsd_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContainerName returns the container handle for the project.
func (p Project) ContainerName() string {
	return ContainerName(p.Name)
}

// HasXSD reports whether a schema file was uploaded with the project.
func (p Project) HasXSD() bool {
	return p.XSDPath != ""
}

// Key identifies the project across owners.
func (p Project) Key() string {
	return p.Owner + "/" + p.Name
}
