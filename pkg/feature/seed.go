package feature

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Flags []*Flag `yaml:"flags"`
}

// LoadFlags reads flag definitions from a YAML document of the form:
//
//	flags:
//	  - name: new-checkout
//	    description: Redesigned checkout flow
//	    enabled: true
//	    strategy: beta-users
//	    tags: [checkout]
func LoadFlags(r io.Reader) ([]*Flag, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidSeedFile, err)
	}

	seen := make(map[string]struct{}, len(file.Flags))
	for i, flag := range file.Flags {
		if err := validate(flag); err != nil {
			return nil, errors.Join(ErrInvalidSeedFile, fmt.Errorf("flag #%d: %w", i+1, err))
		}
		if _, dup := seen[flag.Name]; dup {
			return nil, errors.Join(ErrInvalidSeedFile, fmt.Errorf("duplicate flag %q", flag.Name))
		}
		seen[flag.Name] = struct{}{}
	}
	return file.Flags, nil
}

// Seed creates the flags that are not stored yet in a single update and
// returns how many were created. Existing flags are left untouched, so
// seeding on every start-up is safe.
func (p *RedisProvider) Seed(ctx context.Context, flags ...*Flag) (int, error) {
	for _, flag := range flags {
		if err := validate(flag); err != nil {
			return 0, err
		}
	}

	var created int
	err := p.update(ctx, func(set flagSet) (bool, error) {
		created = 0
		now := p.now().UTC()
		for _, flag := range flags {
			if _, exists := set[flag.Name]; exists {
				continue
			}
			stored := flag.clone()
			stored.CreatedAt, stored.UpdatedAt = now, now
			set[flag.Name] = stored
			created++
		}
		return created > 0, nil
	})
	if err != nil || created == 0 {
		return 0, err
	}
	return created, p.notify(ctx, "", ActionSeeded)
}
