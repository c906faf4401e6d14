package stacks

import (
	"github.com/opst/trackfab-api-types/images"
	"github.com/opst/trackfab-api-types/internal/utils/cmp"
)

// Component is the readiness report of one deployed stack component.
type Component struct {
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
	Image     *images.Ref `json:"image,omitempty"`
	Ready     bool        `json:"ready"`

	// Message explains why the component is not ready. Empty when Ready.
	Message string `json:"message,omitempty"`
}

func (c Component) Equal(o Component) bool {
	return c.Name == o.Name &&
		c.Namespace == o.Namespace &&
		c.Image.Equal(o.Image) &&
		c.Ready == o.Ready &&
		c.Message == o.Message
}

// Report is the whole-stack readiness report.
type Report struct {
	Components []Component `json:"components"`
	Ready      bool        `json:"ready"`
}

func (r Report) Equal(o Report) bool {
	return r.Ready == o.Ready &&
		cmp.SliceEqual(r.Components, o.Components)
}
