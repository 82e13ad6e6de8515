package docmap

import (
	"github.com/conduit-lang/docmap/pkg/codec"
	"github.com/conduit-lang/docmap/pkg/criteria"
	"github.com/conduit-lang/docmap/pkg/mapping"
)

// Settings collects the tunables of the type model, query validation and decoding. It
// carries mapstructure and yaml tags so host applications can load it from their own
// configuration.
type Settings struct {
	Mapping  MappingSettings  `mapstructure:"mapping" yaml:"mapping"`
	Criteria CriteriaSettings `mapstructure:"criteria" yaml:"criteria"`
	Decode   DecodeSettings   `mapstructure:"decode" yaml:"decode"`
}

// MappingSettings configures the type model
type MappingSettings struct {
	DiscriminatorKey   string `mapstructure:"discriminator_key" yaml:"discriminator_key"`
	AlwaysDiscriminate bool   `mapstructure:"always_discriminate" yaml:"always_discriminate"`
}

// CriteriaSettings configures query validation
type CriteriaSettings struct {
	ValidateNames bool `mapstructure:"validate_names" yaml:"validate_names"`
	StrictTypes   bool `mapstructure:"strict_types" yaml:"strict_types"`
}

// DecodeSettings configures decoding
type DecodeSettings struct {
	LenientTypeMismatch bool `mapstructure:"lenient_type_mismatch" yaml:"lenient_type_mismatch"`
	MaxDepth            int  `mapstructure:"max_depth" yaml:"max_depth"`
}

// DefaultSettings returns the settings a datastore uses when none are given
func DefaultSettings() Settings {
	return Settings{
		Mapping:  MappingSettings{DiscriminatorKey: mapping.DefaultDiscriminatorKey},
		Criteria: CriteriaSettings{ValidateNames: true, StrictTypes: true},
		Decode:   DecodeSettings{MaxDepth: codec.DefaultMaxDepth},
	}
}

// WithSettings applies s to the mapper, the codec registry and the query validator. An
// empty discriminator key or a non-positive depth keeps the default.
func WithSettings(s Settings) Option {
	return func(d *Datastore) {
		d.mapperOpts = append(d.mapperOpts,
			mapping.WithDiscriminatorKey(s.Mapping.DiscriminatorKey),
			mapping.WithAlwaysDiscriminate(s.Mapping.AlwaysDiscriminate),
		)
		d.codecOpts = append(d.codecOpts, codec.WithMaxDepth(s.Decode.MaxDepth))
		if s.Decode.LenientTypeMismatch {
			d.codecOpts = append(d.codecOpts, codec.WithLenientDecoding())
		}
		d.criteriaOpts = append(d.criteriaOpts,
			criteria.WithValidateNames(s.Criteria.ValidateNames),
			criteria.WithStrictTypes(s.Criteria.StrictTypes),
		)
	}
}
