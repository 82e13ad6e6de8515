package config

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/docmap"
)

// Settings returns the mapping, criteria and decode sections as datastore settings
func (c *Config) Settings() docmap.Settings {
	return docmap.Settings{
		Mapping:  c.Mapping,
		Criteria: c.Criteria,
		Decode:   c.Decode,
	}
}

// DatastoreOptions returns the options of a datastore configured by c
func (c *Config) DatastoreOptions(logger *zap.Logger) []docmap.Option {
	return []docmap.Option{
		docmap.WithLogger(logger),
		docmap.WithSettings(c.Settings()),
	}
}
