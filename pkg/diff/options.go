package diff

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"

	"github.com/David-Botos/schemadiff/pkg/config"
)

// Options tune how differences become operations. The zero value drops
// everything the model does not declare and alters objects in place.
type Options struct {
	// Roles are never altered or dropped, only created
	KeepClusterObjects bool
	// DROP and TRUNCATE statements carry CASCADE
	CascadeMode bool
	// Tables are truncated before a column changes type
	TruncateTables bool
	// Changed tables and sequences are dropped and created again instead of altered
	ForceRecreation bool
	// With ForceRecreation, unchanged tables and sequences are recreated too
	RecreateUnmodified bool
	// Grants present only in the database are kept
	KeepObjectPermissions bool
	// Changed sequences are altered in place
	ReuseSequences bool
	// Overrides the server version used to pick SQL syntax
	TargetVersion string
}

// OptionsFromSettings builds diff options from the configuration file section
func OptionsFromSettings(s config.DiffSettings) Options {
	return Options{
		KeepClusterObjects:    s.KeepClusterObjects,
		CascadeMode:           s.Cascade,
		TruncateTables:        s.TruncateTables,
		ForceRecreation:       s.ForceRecreation,
		RecreateUnmodified:    s.RecreateUnmodified,
		KeepObjectPermissions: s.KeepObjectPermissions,
		ReuseSequences:        s.ReuseSequences,
		TargetVersion:         s.TargetVersion,
	}
}

// features are the syntax variants the target server accepts
type features struct {
	schemaIfNotExists   bool
	sequenceIfNotExists bool
	columnIfNotExists   bool
}

var featureConstraints = []struct {
	constraint string
	enable     func(*features)
}{
	{">= 9.3", func(f *features) { f.schemaIfNotExists = true }},
	{">= 9.5", func(f *features) { f.sequenceIfNotExists = true }},
	{">= 9.6", func(f *features) { f.columnIfNotExists = true }},
}

// resolveFeatures parses version ("" means the newest syntax)
func resolveFeatures(version string) (features, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return features{schemaIfNotExists: true, sequenceIfNotExists: true, columnIfNotExists: true}, nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return features{}, errors.Wrapf(err, "invalid target version %q", version)
	}

	var f features
	for _, fc := range featureConstraints {
		c, err := semver.NewConstraint(fc.constraint)
		if err != nil {
			return features{}, errors.Wrapf(err, "invalid constraint %q", fc.constraint)
		}
		if c.Check(v) {
			fc.enable(&f)
		}
	}
	return f, nil
}
