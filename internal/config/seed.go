package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	altpkg "github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"gopkg.in/yaml.v3"
)

// SeedOwner owns every alternative registered from the seed file.
const SeedOwner = "seed"

// SeedFile is the on-disk layout of the seed file:
//
//	alternatives:
//	  - srcTag: DeskChan:user-said
//	    dstTag: my-plugin:answer
//	    priority: 100
type SeedFile struct {
	Alternatives []alternatives.Registration `yaml:"alternatives"`
}

// LoadSeed reads and parses the seed file at path.
func LoadSeed(path string) ([]alternatives.Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed file contents.
func ParseSeed(data []byte) ([]alternatives.Registration, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return seed.Alternatives, nil
}

// ApplySeed makes the seed-owned alternatives in registry match regs.
// Entries still listed are registered again in place and only entries that
// left the seed are unregistered, so a row the seed keeps is never vacated.
// Invalid entries are skipped; their errors are joined in the result.
func ApplySeed(registry altpkg.Registry, regs []alternatives.Registration) (int, error) {
	type key struct{ src, dst string }

	kept := make(map[key]bool, len(regs))
	applied := 0
	var errs []error
	for i, reg := range regs {
		if err := registry.Register(reg.SourceTag, reg.DestinationTag, SeedOwner, reg.Priority); err != nil {
			errs = append(errs, fmt.Errorf("seed entry %d (%s -> %s): %w", i, reg.SourceTag, reg.DestinationTag, err))
			continue
		}
		kept[key{reg.SourceTag, reg.DestinationTag}] = true
		applied++
	}

	for src, row := range registry.Snapshot() {
		for _, entry := range row {
			if entry.OwnerPlugin == SeedOwner && !kept[key{src, entry.DestinationTag}] {
				registry.Unregister(src, entry.DestinationTag, SeedOwner)
			}
		}
	}
	return applied, errors.Join(errs...)
}
