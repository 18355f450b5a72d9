// Package manifest loads the host manifest: static directory mappings and
// per-task schedule overrides.
package manifest

import (
	"fmt"
	"strings"
	"time"
)

// StaticMapping serves files under Root at URL prefix Prefix.
type StaticMapping struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Root   string `yaml:"root" json:"root"`
}

// TaskOverride replaces the schedule a task was registered with.
// Cron wins over IntervalMs when both are set.
type TaskOverride struct {
	IntervalMs int64  `yaml:"intervalMs,omitempty" json:"intervalMs,omitempty"`
	Cron       string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Disabled   bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Manifest is the root manifest document.
type Manifest struct {
	Name        string                  `yaml:"name" json:"name"`
	Version     string                  `yaml:"version" json:"version"`
	Description string                  `yaml:"description,omitempty" json:"description,omitempty"`
	Statics     []StaticMapping         `yaml:"statics,omitempty" json:"statics,omitempty"`
	Tasks       map[string]TaskOverride `yaml:"tasks,omitempty" json:"tasks,omitempty"`
}

// Validate checks every static mapping and task override.
func (m *Manifest) Validate() error {
	for i, s := range m.Statics {
		if strings.TrimSpace(s.Prefix) == "" || strings.TrimSpace(s.Root) == "" {
			return fmt.Errorf("%s - statics[%d]: prefix and root are required", logPrefix, i)
		}
	}
	for name, t := range m.Tasks {
		if t.IntervalMs < 0 {
			return fmt.Errorf("%s - task %q: intervalMs must not be negative", logPrefix, name)
		}
	}
	return nil
}

// Override returns the override for a task, matched case-insensitively.
func (m *Manifest) Override(name string) (TaskOverride, bool) {
	if t, ok := m.Tasks[name]; ok {
		return t, true
	}
	for k, t := range m.Tasks {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return TaskOverride{}, false
}

// Interval returns the override interval, or fallback when none is set.
func (t TaskOverride) Interval(fallback time.Duration) time.Duration {
	if t.IntervalMs > 0 {
		return time.Duration(t.IntervalMs) * time.Millisecond
	}
	return fallback
}
