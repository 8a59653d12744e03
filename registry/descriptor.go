package registry

import (
	"fmt"

	"github.com/GoCodeAlone/viewhost"
)

// InstanceDescriptor is the serialized form of a view instance, as accepted by the admin
// API and read from instance descriptor files.
type InstanceDescriptor struct {
	View        string            `yaml:"view" json:"view"`
	Version     string            `yaml:"version" json:"version"`
	Name        string            `yaml:"name" json:"name"`
	ContextPath string            `yaml:"contextPath,omitempty" json:"contextPath,omitempty"`
	Properties  map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

func (d InstanceDescriptor) Validate() error {
	switch {
	case !validSegment(d.View):
		return fmt.Errorf("%w: view name %q", ErrInvalidDescriptor, d.View)
	case !validSegment(d.Version):
		return fmt.Errorf("%w: view version %q", ErrInvalidDescriptor, d.Version)
	case !validSegment(d.Name):
		return fmt.Errorf("%w: instance name %q", ErrInvalidDescriptor, d.Name)
	}
	if d.ContextPath != "" {
		if err := viewhost.ValidateContextPath(d.ContextPath); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}
	}
	return nil
}

// Key returns the instance key the descriptor will register under.
func (d InstanceDescriptor) Key() viewhost.InstanceKey {
	return viewhost.InstanceKey{View: d.View, Version: d.Version, Instance: d.Name}
}

// Describe converts a live instance back to its descriptor.
func Describe(inst *viewhost.ViewInstance) InstanceDescriptor {
	d := InstanceDescriptor{Name: inst.Name, ContextPath: inst.ContextPath}
	if inst.Definition != nil {
		d.View, d.Version = inst.Definition.Name, inst.Definition.Version
	}
	if len(inst.Properties) > 0 {
		d.Properties = make(map[string]string, len(inst.Properties))
		for k, v := range inst.Properties {
			d.Properties[k] = v
		}
	}
	return d
}
