package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/rs/zerolog/log"
)

// Descriptor binds a property id to its name and value signature.
type Descriptor struct {
	ID        protocol.PropertyID
	Name      string
	Signature pack.Signature
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(0x%x) %q", d.Name, uint32(d.ID), d.Signature.String())
}

type ValidationError struct {
	PropertyID protocol.PropertyID
	Name       string
	Reason     string
}

func (e ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("schema: property=0x%x: %s", uint32(e.PropertyID), e.Reason)
	}
	return fmt.Sprintf("schema: property=0x%x name=%s: %s", uint32(e.PropertyID), e.Name, e.Reason)
}

// Registry is the property descriptor table for one session. Signatures
// are parsed when registered, so a malformed table fails at load time.
type Registry struct {
	mu     sync.RWMutex
	byID   map[protocol.PropertyID]Descriptor
	byName map[string]protocol.PropertyID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[protocol.PropertyID]Descriptor),
		byName: make(map[string]protocol.PropertyID),
	}
}

// Register adds or replaces the descriptor for id. A name already bound
// to a different id is rejected.
func (r *Registry) Register(id protocol.PropertyID, name, signature string) error {
	name = normalizeName(name)
	if name == "" {
		return ValidationError{PropertyID: id, Reason: "missing name"}
	}
	sig, err := pack.Parse(signature)
	if err != nil {
		log.Error().Err(err).Msgf("schema.Register invalid signature property=0x%x name=%s", uint32(id), name)
		return ValidationError{PropertyID: id, Name: name, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if other, ok := r.byName[name]; ok && other != id {
		return ValidationError{PropertyID: id, Name: name, Reason: fmt.Sprintf("name already bound to 0x%x", uint32(other))}
	}
	if prev, ok := r.byID[id]; ok && prev.Name != name {
		delete(r.byName, prev.Name)
	}
	r.byID[id] = Descriptor{ID: id, Name: name, Signature: sig}
	r.byName[name] = id
	return nil
}

func (r *Registry) Lookup(id protocol.PropertyID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

func (r *Registry) ByName(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[normalizeName(name)]
	if !ok {
		return Descriptor{}, false
	}
	return r.byID[id], true
}

// Resolve accepts a property name or a numeric id ("33", "0x21").
func (r *Registry) Resolve(ref string) (Descriptor, bool) {
	if d, ok := r.ByName(ref); ok {
		return d, true
	}
	n, err := strconv.ParseUint(strings.TrimSpace(ref), 0, 32)
	if err != nil {
		return Descriptor{}, false
	}
	return r.Lookup(protocol.PropertyID(n))
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Name returns the registered name of id, or its numeric form.
func (r *Registry) Name(id protocol.PropertyID) string {
	if d, ok := r.Lookup(id); ok {
		return d.Name
	}
	return id.String()
}

func normalizeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimPrefix(name, "PROP_")
}
