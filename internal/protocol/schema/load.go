package schema

import (
	"fmt"
	"os"

	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

type fileTable struct {
	Property []fileEntry `toml:"property"`
}

type fileEntry struct {
	ID        uint32 `toml:"id"`
	Name      string `toml:"name"`
	Signature string `toml:"signature"`
}

// LoadFile merges a TOML descriptor table into r:
//
//	[[property]]
//	id = 0x3c00
//	name = "VENDOR_FOO"
//	signature = "t(CS)"
func LoadFile(path string, r *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("descriptor load failed (%s): %w", path, err)
	}
	if err := Load(data, r); err != nil {
		return fmt.Errorf("descriptor parse failed (%s): %w", path, err)
	}
	return nil
}

// Load merges TOML descriptor data into r. All entries are validated
// before any is registered.
func Load(data []byte, r *Registry) error {
	var table fileTable
	if err := toml.Unmarshal(data, &table); err != nil {
		return err
	}
	staged := NewRegistry()
	for i, e := range table.Property {
		if err := staged.Register(protocol.PropertyID(e.ID), e.Name, e.Signature); err != nil {
			return fmt.Errorf("property[%d] invalid: %w", i, err)
		}
	}
	for _, d := range staged.List() {
		if err := r.Register(d.ID, d.Name, d.Signature.String()); err != nil {
			return err
		}
	}
	log.Info().Msgf("schema.Load registered=%d", len(table.Property))
	return nil
}
