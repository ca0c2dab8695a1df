package trigger

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Trigger type names understood by the default factory.
const (
	TypeCron    = "cron"
	TypeStartup = "startup"
)

// Descriptor is the serializable form of one trigger: enough to reconstruct
// an equivalent live trigger after a restart. Ordering among descriptors
// carries no meaning; sets are persisted as ordered sequences only for
// round-trip stability.
type Descriptor struct {
	Type       string            `json:"type"`
	Expression string            `json:"expression,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// Fingerprint returns a stable hash of a descriptor set, used to log
// configuration changes and to compare sets in tests. Hashing treats the
// sequence as a set: order does not affect the result.
func Fingerprint(ds []Descriptor) uint64 {
	h, err := hashstructure.Hash(ds, hashstructure.FormatV2, &hashstructure.HashOptions{
		SlicesAsSets: true,
	})
	if err != nil {
		// Descriptor is a plain value type; hashing it cannot fail in
		// practice. Surface loudly if that ever changes.
		log.Errorw("descriptor fingerprint failed", "error", err)
		return 0
	}
	return h
}

// Builder constructs a live trigger from its descriptor.
type Builder func(Descriptor) (Trigger, error)

// Factory reconstructs live triggers from persisted descriptors.
type Factory struct {
	builders map[string]Builder
}

// NewFactory returns a factory with the built-in trigger types registered.
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]Builder)}
	f.Register(TypeCron, func(d Descriptor) (Trigger, error) {
		return NewCronTrigger(d.Expression)
	})
	f.Register(TypeStartup, func(d Descriptor) (Trigger, error) {
		return NewStartupTrigger(d.Options)
	})
	return f
}

// Register installs a builder for a trigger type, replacing any previous
// registration for the same type.
func (f *Factory) Register(typ string, b Builder) {
	f.builders[typ] = b
}

// New builds a live trigger from d.
func (f *Factory) New(d Descriptor) (Trigger, error) {
	b, ok := f.builders[d.Type]
	if !ok {
		return nil, fmt.Errorf("unknown trigger type %q", d.Type)
	}
	t, err := b(d)
	if err != nil {
		return nil, fmt.Errorf("building %q trigger: %w", d.Type, err)
	}
	return t, nil
}

// NewSet builds a live trigger for every descriptor in ds.
func (f *Factory) NewSet(ds []Descriptor) ([]Trigger, error) {
	out := make([]Trigger, 0, len(ds))
	for _, d := range ds {
		t, err := f.New(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
