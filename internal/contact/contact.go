// Package contact routes a report to the jurisdiction that should receive it.
//
// A Directory is an immutable snapshot of the contact file, keyed by the exact
// city string the geocoder returns. Matching is case-sensitive with no
// normalization; cities without an entry receive the Default record.
package contact

import (
	"errors"
	"fmt"
	"sort"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// DefaultKey names the mandatory fallback record in a contact file.
const DefaultKey = "Default"

// ErrNoDefault is returned when a directory is built without a Default entry.
var ErrNoDefault = errors.New("contact directory has no \"Default\" entry")

// Resolver maps a city name to the contact record that should receive reports.
type Resolver interface {
	Resolve(city string) domain.ContactRecord
}

// Directory is a read-only city to contact mapping. It is safe for
// concurrent use because nothing mutates it after construction.
type Directory struct {
	cities   map[string]domain.ContactRecord
	fallback domain.ContactRecord
}

// NewDirectory builds a directory from raw entries. The entries map is copied.
func NewDirectory(entries map[string]domain.ContactRecord) (*Directory, error) {
	def, ok := entries[DefaultKey]
	if !ok {
		return nil, ErrNoDefault
	}

	cities := make(map[string]domain.ContactRecord, len(entries))
	for city, rec := range entries {
		if city == DefaultKey {
			continue
		}
		cities[city] = domain.ContactRecord{Emails: append([]string(nil), rec.Emails...)}
	}

	return &Directory{
		cities:   cities,
		fallback: domain.ContactRecord{Emails: append([]string(nil), def.Emails...)},
	}, nil
}

// Resolve returns the record for city, or the Default record when city is
// empty or has no entry. The literal "Default" is treated like any other
// unmatched name.
func (d *Directory) Resolve(city string) domain.ContactRecord {
	if city != "" {
		if rec, ok := d.cities[city]; ok {
			return rec
		}
	}
	return d.fallback
}

// Default returns the fallback record.
func (d *Directory) Default() domain.ContactRecord {
	return d.fallback
}

// Cities returns the configured city names in sorted order, excluding Default.
func (d *Directory) Cities() []string {
	names := make([]string, 0, len(d.cities))
	for city := range d.cities {
		names = append(names, city)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of city entries, excluding Default.
func (d *Directory) Len() int {
	return len(d.cities)
}

// String describes the directory for logs.
func (d *Directory) String() string {
	return fmt.Sprintf("contact.Directory{cities: %d, default: %d addresses}", len(d.cities), len(d.fallback.UsableEmails()))
}

// Compile-time interface check
var _ Resolver = (*Directory)(nil)
