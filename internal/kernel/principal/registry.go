// Package principal implements the kernel's identity table: allocation of
// principals, resolution of public handles to private authority keys, and
// ownership (shared-authority) relationships.
package principal

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind classifies a principal's role in the tree.
type Kind string

const (
	KindKernel   Kind = "kernel"
	KindTopLevel Kind = "topLevel"
	KindChild    Kind = "child"
	KindFriend   Kind = "friend"
	KindResource Kind = "resource"
)

// PKR (Public Key Record) is a principal's externally visible handle.
// PKRs compare by PublicKey identity, never by content.
type PKR struct {
	UUID      string
	Kind      Kind
	PublicKey string
	Metadata  map[string]interface{}
}

// Equal reports whether two PKRs denote the same principal.
func (p PKR) Equal(other PKR) bool {
	return p.PublicKey == other.PublicKey
}

// privateKey is an opaque authority token. It leaves the registry only as
// an interface{} value (ResolvePKR, PrivateKeyOf) that callers can compare
// but, the type being unexported, cannot construct.
type privateKey string

// ErrUnknownPrincipal is returned when a PKR has no registry mapping.
var ErrUnknownPrincipal = fmt.Errorf("principal: unknown principal")

// Registry allocates principals and resolves public handles to private
// authority keys. All reads are safe for concurrent use; it is the
// kernel's job (or a kernel-authority child's) to serialize mutation.
type Registry struct {
	mu              sync.RWMutex
	publicToPrivate map[string]privateKey // publicKey -> privateKey
	rolesByPrivate  map[privateKey]string // privateKey -> role name, survives PKR rotation
	pkrsByPublic    map[string]PKR        // publicKey -> last-issued PKR, for metadata/kind lookups

	kernelPrivateKey privateKey
	kernelIssued     bool
}

// NewRegistry constructs an empty registry. The first call to
// CreatePrincipal(KindKernel, ...) fixes the kernel's private key.
func NewRegistry() *Registry {
	return &Registry{
		publicToPrivate: make(map[string]privateKey),
		rolesByPrivate:  make(map[privateKey]string),
		pkrsByPublic:    make(map[string]PKR),
	}
}

// CreateOptions configures CreatePrincipal.
type CreateOptions struct {
	// Owner, if set, makes the new principal share the owner's private
	// key instead of allocating a fresh one.
	Owner    *PKR
	Metadata map[string]interface{}
}

// CreatePrincipal allocates a fresh principal of the given kind. The very
// first principal created must be KindKernel; its private key becomes the
// registry's kernelPrivateKey and is reserved thereafter.
func (r *Registry) CreatePrincipal(kind Kind, opts CreateOptions) (PKR, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.kernelIssued && kind != KindKernel {
		return PKR{}, fmt.Errorf("principal: first principal created must be KindKernel, got %q", kind)
	}

	pub := uuid.NewString()
	pkr := PKR{
		UUID:      uuid.NewString(),
		Kind:      kind,
		PublicKey: pub,
		Metadata:  opts.Metadata,
	}

	var priv privateKey
	if opts.Owner != nil {
		ownerPriv, ok := r.publicToPrivate[opts.Owner.PublicKey]
		if !ok {
			return PKR{}, ErrUnknownPrincipal
		}
		priv = ownerPriv
	} else {
		priv = privateKey(uuid.NewString())
	}

	r.publicToPrivate[pub] = priv
	r.pkrsByPublic[pub] = pkr

	if !r.kernelIssued && kind == KindKernel {
		r.kernelPrivateKey = priv
		r.kernelIssued = true
	}

	return pkr, nil
}

// ResolvePKR looks up the private authority key backing a PKR.
func (r *Registry) ResolvePKR(pkr PKR) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	priv, ok := r.publicToPrivate[pkr.PublicKey]
	if !ok {
		return nil, ErrUnknownPrincipal
	}
	return priv, nil
}

// IsKernel reports whether pkr resolves to the kernel's private key. This
// is true for the kernel principal itself and for every principal it (or a
// kernel-authority child) owns — authority, not Kind, decides
// isKernel. Callers that need to distinguish "the kernel itself" from a
// kernel-owned child must inspect pkr.Kind instead.
func (r *Registry) IsKernel(pkr PKR) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.kernelIssued {
		return false
	}
	priv, ok := r.publicToPrivate[pkr.PublicKey]
	return ok && priv == r.kernelPrivateKey
}

// SetRoleForPKR associates a role name with a principal's underlying
// private key. Because roles are keyed by private key (not public key),
// the association survives RefreshPrincipal.
func (r *Registry) SetRoleForPKR(pkr PKR, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	priv, ok := r.publicToPrivate[pkr.PublicKey]
	if !ok {
		return ErrUnknownPrincipal
	}
	r.rolesByPrivate[priv] = role
	return nil
}

// GetRoleForPKR returns the role associated with a principal, if any.
func (r *Registry) GetRoleForPKR(pkr PKR) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	priv, ok := r.publicToPrivate[pkr.PublicKey]
	if !ok {
		return "", false
	}
	role, ok := r.rolesByPrivate[priv]
	return role, ok
}

// RefreshPrincipal allocates a fresh public key for a principal while
// preserving its private key (and therefore its role and RWS
// relationships, which are anchored to the private key underneath RWS —
// see permission.Store). Refresh round-trip law:
// resolve(refresh(p)) == resolve(p).
func (r *Registry) RefreshPrincipal(old PKR) (PKR, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	priv, ok := r.publicToPrivate[old.PublicKey]
	if !ok {
		return PKR{}, ErrUnknownPrincipal
	}

	newPub := uuid.NewString()
	newPKR := PKR{
		UUID:      old.UUID,
		Kind:      old.Kind,
		PublicKey: newPub,
		Metadata:  old.Metadata,
	}

	r.publicToPrivate[newPub] = priv
	r.pkrsByPublic[newPub] = newPKR
	delete(r.publicToPrivate, old.PublicKey)
	delete(r.pkrsByPublic, old.PublicKey)

	return newPKR, nil
}

// PrivateKeyOf exposes the underlying private key as an opaque comparable
// value, for components (like permission.Store) that need to key
// relationships by authority rather than by rotatable public identity.
// It is not exported outside the kernel module tree's trusted packages in
// spirit, but Go has no sub-module visibility finer than the package, so
// callers are expected to treat the return value as opaque.
func (r *Registry) PrivateKeyOf(pkr PKR) (interface{}, error) {
	return r.ResolvePKR(pkr)
}
