package identity

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

// Resolver maps raw committer identifiers to canonical people. It is safe
// for concurrent use: lookups take a read lock, mutations (including the
// auto-registration of unseen identifiers) take the write lock.
//
// Canonical names are unique under Unicode case folding; the casing seen
// first is the one everybody gets back.
type Resolver struct {
	mu          sync.RWMutex
	rawOrder    []string          // raw identifiers, insertion order
	mappings    map[string]string // raw -> folded canonical
	persons     map[string]*models.Person
	personOrder []string // folded canonical names, insertion order
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		mappings: make(map[string]string),
		persons:  make(map[string]*models.Person),
	}
}

// NewResolverFromState rebuilds a resolver from persisted state, replaying
// mappings in their stored order so insertion order survives restarts.
func NewResolverFromState(state State) *Resolver {
	r := NewResolver()
	for _, m := range state.Mappings {
		r.AddMapping(m.Raw, m.Canonical)
	}
	for canonical, ref := range state.Avatars {
		// Persisted avatars always reference known people, but a
		// hand-edited store may not; register rather than drop.
		r.mu.Lock()
		r.ensurePerson(canonical).Avatar = ref
		r.mu.Unlock()
	}
	return r
}

// AddMapping binds a raw identifier to a canonical name. Repeating the
// same call is a no-op; mapping the raw identifier to a different
// canonical name simply retargets it (last write wins). The canonical
// person is created on first reference and never deleted.
func (r *Resolver) AddMapping(raw, canonical string) {
	raw = strings.TrimSpace(raw)
	canonical = strings.TrimSpace(canonical)
	if raw == "" || canonical == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensurePerson(canonical)
	if _, known := r.mappings[raw]; !known {
		r.rawOrder = append(r.rawOrder, raw)
	}
	r.mappings[raw] = fold(canonical)
}

// Resolve returns the canonical name for a raw identifier. Identifiers
// never seen before are trimmed and registered as their own person, so
// resolution always succeeds.
func (r *Resolver) Resolve(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	r.mu.RLock()
	if folded, ok := r.mappings[trimmed]; ok {
		name := r.persons[folded].Name
		r.mu.RUnlock()
		return name
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another goroutine may have registered it in between.
	if folded, ok := r.mappings[trimmed]; ok {
		return r.persons[folded].Name
	}
	person := r.ensurePerson(trimmed)
	r.rawOrder = append(r.rawOrder, trimmed)
	r.mappings[trimmed] = fold(person.Name)
	return person.Name
}

// SetAvatar records an avatar reference for an existing canonical name.
// Setting it again replaces the previous reference.
func (r *Resolver) SetAvatar(canonical, ref string) error {
	canonical = strings.TrimSpace(canonical)

	r.mu.Lock()
	defer r.mu.Unlock()

	person, ok := r.persons[fold(canonical)]
	if !ok {
		return apperrors.IdentityConflict(canonical)
	}
	person.Avatar = ref
	return nil
}

// Avatar returns the avatar reference for a canonical name.
func (r *Resolver) Avatar(canonical string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	person, ok := r.persons[fold(strings.TrimSpace(canonical))]
	if !ok || person.Avatar == "" {
		return "", false
	}
	return person.Avatar, true
}

// Mappings returns every raw-to-canonical binding in insertion order.
func (r *Resolver) Mappings() []models.Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Mapping, 0, len(r.rawOrder))
	for _, raw := range r.rawOrder {
		out = append(out, models.Mapping{
			Raw:       raw,
			Canonical: r.persons[r.mappings[raw]].Name,
		})
	}
	return out
}

// Persons returns every known person in first-reference order.
func (r *Resolver) Persons() []models.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Person, 0, len(r.personOrder))
	for _, folded := range r.personOrder {
		out = append(out, *r.persons[folded])
	}
	return out
}

// State snapshots the resolver for persistence.
func (r *Resolver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := State{
		Mappings: make([]models.Mapping, 0, len(r.rawOrder)),
		Avatars:  make(map[string]string),
	}
	for _, raw := range r.rawOrder {
		state.Mappings = append(state.Mappings, models.Mapping{
			Raw:       raw,
			Canonical: r.persons[r.mappings[raw]].Name,
		})
	}
	for _, folded := range r.personOrder {
		if p := r.persons[folded]; p.Avatar != "" {
			state.Avatars[p.Name] = p.Avatar
		}
	}
	return state
}

// ensurePerson returns the person for a canonical name, creating it with
// the given casing if unseen. Callers hold the write lock.
func (r *Resolver) ensurePerson(canonical string) *models.Person {
	folded := fold(canonical)
	if person, ok := r.persons[folded]; ok {
		return person
	}
	person := &models.Person{Name: canonical}
	r.persons[folded] = person
	r.personOrder = append(r.personOrder, folded)
	return person
}

// fold normalizes a name for case-insensitive comparison. A fresh Caser
// per call because Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
