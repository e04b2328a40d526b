package notify

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/gobeacon/pkg/remote"
	"github.com/3leaps/gobeacon/pkg/sink"
)

// Policy decides which fetched notifications surface in the UI.
//
// Freshness and the type allow-list are tunable operator policy, not a
// protocol contract: the age check in particular is best-effort under
// client/server clock skew. The defaults reproduce the shipped behavior:
// only job_completed and job_failed surface, and nothing older than 60
// seconds does.
type Policy struct {
	// MaxAge is the freshness window. Notifications created longer ago
	// than this are never surfaced, whatever their type.
	MaxAge time.Duration

	// SurfaceTypes are glob patterns over the notification type name.
	// A notification surfaces only when at least one pattern matches.
	// This is an allow-list: unknown types stay silent until added.
	SurfaceTypes []string
}

// DefaultPolicy returns the shipped surface policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:       60 * time.Second,
		SurfaceTypes: []string{TypeJobCompleted, TypeJobFailed},
	}
}

// Validate checks every surface pattern compiles.
func (p Policy) Validate() error {
	for _, pat := range p.SurfaceTypes {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("invalid surface pattern: %q", pat)
		}
	}
	return nil
}

// ShouldShow reports whether a notification is fresh and presentable.
func (p Policy) ShouldShow(n remote.Notification, now time.Time) bool {
	if p.MaxAge > 0 && now.Sub(n.CreatedAt) > p.MaxAge {
		return false
	}
	for _, pat := range p.SurfaceTypes {
		if ok, err := doublestar.Match(pat, n.Type); err == nil && ok {
			return true
		}
	}
	return false
}

// policyFile is the YAML shape of a policy override file.
type policyFile struct {
	MaxAge       string   `yaml:"max_age"`
	SurfaceTypes []string `yaml:"surface_types"`
}

// LoadPolicy reads a policy override from a YAML file.
//
// Missing fields keep their defaults. Example:
//
//	max_age: 90s
//	surface_types:
//	  - job_completed
//	  - job_failed
//	  - "import_*"
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, fmt.Errorf("policy file not found: %s", path)
		}
		return p, fmt.Errorf("read policy file: %w", err)
	}

	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}

	if raw.MaxAge != "" {
		d, err := time.ParseDuration(raw.MaxAge)
		if err != nil {
			return p, fmt.Errorf("parse max_age: %w", err)
		}
		p.MaxAge = d
	}
	if raw.SurfaceTypes != nil {
		p.SurfaceTypes = raw.SurfaceTypes
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Presentation is how one notification type renders in the UI.
type Presentation struct {
	Kind       sink.Kind
	Duration   time.Duration
	Persistent bool
}

// PresentationFor maps a notification type to its presentation channel.
func PresentationFor(notificationType string) Presentation {
	switch notificationType {
	case TypeJobCompleted:
		return Presentation{Kind: sink.KindSuccess, Duration: 5 * time.Second}
	case TypeJobFailed:
		return Presentation{Kind: sink.KindError, Persistent: true}
	case TypeJobRetry:
		return Presentation{Kind: sink.KindWarning, Duration: 4 * time.Second}
	case TypeJobCancelled:
		return Presentation{Kind: sink.KindInfo, Duration: 3 * time.Second}
	default:
		return Presentation{Kind: sink.KindInfo, Duration: 4 * time.Second}
	}
}
