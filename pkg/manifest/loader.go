package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/morezero/operations-host/pkg/scheduler"
)

const logPrefix = "manifest:loader"

// EnvFile names the environment variable holding a manifest path.
const EnvFile = "MANIFEST_FILE"

// Load reads the first parseable manifest. Explicit paths are tried first,
// then MANIFEST_FILE, then config/manifest.yaml and manifest.yaml. The file
// is merged over the default manifest; with no file the default is returned.
// YAML and JSON are both accepted.
func Load(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/manifest.yaml", "manifest.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := Parse(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", logPrefix, p))
		return Merge(Default(), m), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return Default(), nil
}

// Parse decodes and validates a YAML or JSON manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - decode: %w", logPrefix, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns the built-in manifest.
func Default() *Manifest {
	return &Manifest{
		Name:        "opshost",
		Version:     "1.0.0",
		Description: "Default operations host manifest",
		Tasks:       map[string]TaskOverride{},
	}
}

// Merge lays override over base. Statics are appended, tasks replaced by name.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}

	merged.Statics = append(append([]StaticMapping(nil), base.Statics...), override.Statics...)

	merged.Tasks = make(map[string]TaskOverride, len(base.Tasks)+len(override.Tasks))
	for name, t := range base.Tasks {
		merged.Tasks[name] = t
	}
	for name, t := range override.Tasks {
		merged.Tasks[name] = t
	}
	return &merged
}

// StaticMounter mounts a static directory.
type StaticMounter interface {
	AddStatic(urlPrefix, root string) error
}

// TaskScheduler registers interval and cron tasks.
type TaskScheduler interface {
	Schedule(name string, interval time.Duration, action scheduler.Action) error
	ScheduleCron(name, spec string, action scheduler.Action) error
}

// Task is a task with the schedule its code asks for.
type Task struct {
	Name     string
	Interval time.Duration
	Action   scheduler.Action
}

// MountStatics mounts every static mapping.
func (m *Manifest) MountStatics(target StaticMounter) error {
	for _, s := range m.Statics {
		if err := target.AddStatic(s.Prefix, s.Root); err != nil {
			return fmt.Errorf("%s - mount %s: %w", logPrefix, s.Prefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Mounted %s at %s", logPrefix, s.Root, s.Prefix))
	}
	return nil
}

// ScheduleTasks registers tasks, applying overrides. Disabled tasks are
// skipped. It returns the names actually scheduled.
func (m *Manifest) ScheduleTasks(target TaskScheduler, tasks ...Task) ([]string, error) {
	scheduled := make([]string, 0, len(tasks))
	for _, t := range tasks {
		o, _ := m.Override(t.Name)
		var err error
		switch {
		case o.Disabled:
			slog.Info(fmt.Sprintf("%s - Task %s disabled by manifest", logPrefix, t.Name))
			continue
		case o.Cron != "":
			err = target.ScheduleCron(t.Name, o.Cron, t.Action)
		default:
			err = target.Schedule(t.Name, o.Interval(t.Interval), t.Action)
		}
		if err != nil {
			return scheduled, fmt.Errorf("%s - schedule %s: %w", logPrefix, t.Name, err)
		}
		scheduled = append(scheduled, t.Name)
	}
	return scheduled, nil
}
