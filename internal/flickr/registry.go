// ABOUTME: Method registry mapping method names to calling contracts
// ABOUTME: Backed by a TTL'd cache table with remote discovery on a miss

package flickr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/flickr-gateway/internal/store"
)

// DiscoveryMode controls when unknown methods are described remotely.
type DiscoveryMode string

const (
	// DiscoveryEager warms the registry at construction and discovers on a miss.
	DiscoveryEager DiscoveryMode = "eager"
	// DiscoveryLazy discovers a method the first time it is invoked.
	DiscoveryLazy DiscoveryMode = "lazy"
	// DiscoveryDisabled resolves only registered or cached methods.
	DiscoveryDisabled DiscoveryMode = "disabled"
)

// ParseDiscoveryMode maps a configured name to a DiscoveryMode.
func ParseDiscoveryMode(name string) (DiscoveryMode, bool) {
	switch DiscoveryMode(name) {
	case "", DiscoveryLazy:
		return DiscoveryLazy, true
	case DiscoveryEager:
		return DiscoveryEager, true
	case DiscoveryDisabled:
		return DiscoveryDisabled, true
	default:
		return "", false
	}
}

// DefaultMethodsKey is the cache key holding the method table.
const DefaultMethodsKey = "flickr.methods"

// CacheStore is the persistent cache the registry writes through to.
// Read returns store.ErrNotFound for a missing or expired key.
type CacheStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Discovery describes methods the registry does not know.
type Discovery interface {
	Describe(ctx context.Context, name string) (*MethodDefinition, error)
	ListMethods(ctx context.Context) ([]string, error)
}

// methodTable is the persisted form of the registry.
type methodTable struct {
	Methods map[string]*MethodDefinition `cbor:"methods"`
}

// Registry resolves method names to their contracts.
//
// Cache writes are serialized by writeMu and always re-read the stored table
// before writing it back, so concurrent discoveries within one process never
// drop each other's definitions. Separate processes sharing one cache can
// still race on the table; the loser's entry is rediscovered on its next miss.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*MethodDefinition
	seeds   map[string]*MethodDefinition

	writeMu sync.Mutex

	cache     CacheStore
	key       string
	ttl       time.Duration
	mode      DiscoveryMode
	discovery Discovery
	now       func() time.Time
	logger    *slog.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Cache     CacheStore
	Key       string
	TTL       time.Duration
	Mode      DiscoveryMode
	Discovery Discovery
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewRegistry creates an empty registry. Nothing is read from the cache until
// the first miss.
func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{
		methods:   make(map[string]*MethodDefinition),
		seeds:     make(map[string]*MethodDefinition),
		cache:     opts.Cache,
		key:       opts.Key,
		ttl:       opts.TTL,
		mode:      opts.Mode,
		discovery: opts.Discovery,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if r.key == "" {
		r.key = DefaultMethodsKey
	}
	if r.mode == "" {
		r.mode = DiscoveryLazy
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Mode returns the discovery mode.
func (r *Registry) Mode() DiscoveryMode { return r.mode }

// Resolve returns the contract for name, looking in memory, then the cached
// table, then asking the remote service.
func (r *Registry) Resolve(ctx context.Context, name string) (*MethodDefinition, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, &Error{Kind: ErrMethodNotFound}
	}

	if def := r.lookup(name); def != nil {
		return def.clone(), nil
	}

	table, err := r.loadTable(ctx)
	if err != nil {
		r.logger.Warn("reading method cache failed", "error", err)
	}
	if def, ok := table[name]; ok && !def.Expired(r.now()) {
		r.remember(def)
		return def.clone(), nil
	}

	if r.mode == DiscoveryDisabled || r.discovery == nil || name == MethodGetMethodInfo {
		return nil, &Error{Kind: ErrMethodNotFound, Method: name}
	}

	def, err := r.discovery.Describe(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", name, err)
	}
	def.Name = name
	def.Normalize()
	if r.ttl > 0 {
		def.ExpiresAt = r.now().Add(r.ttl).UTC()
	}

	r.remember(def)
	if err := r.persist(ctx, def); err != nil {
		r.logger.Warn("writing method cache failed", "method", name, "error", err)
	}
	r.logger.Debug("discovered method", "method", name, "signing", def.RequiresSigning, "perms", def.RequiredPermission)
	return def.clone(), nil
}

// Register adds a contract without a discovery round-trip and writes it
// through to the cache. Registered contracts survive Invalidate in memory.
func (r *Registry) Register(ctx context.Context, def *MethodDefinition) error {
	if def == nil || NormalizeName(def.Name) == "" {
		return fmt.Errorf("%w: method definition needs a name", ErrConfig)
	}
	d := def.clone()
	d.Normalize()

	r.mu.Lock()
	r.seeds[d.Name] = d
	r.mu.Unlock()
	r.remember(d)

	if err := r.persist(ctx, d); err != nil {
		return fmt.Errorf("caching %s: %w", d.Name, err)
	}
	return nil
}

// Invalidate deletes the cached table and forgets every discovered method.
func (r *Registry) Invalidate(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.cache != nil {
		if err := r.cache.Delete(ctx, r.key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting method cache: %w", err)
		}
	}

	r.mu.Lock()
	r.methods = make(map[string]*MethodDefinition, len(r.seeds))
	for name, def := range r.seeds {
		r.methods[name] = def
	}
	r.mu.Unlock()

	r.logger.Info("method cache cleared")
	return nil
}

// Warm resolves every name in names. With no names it asks the remote
// service for the full method list first. Failures are collected, not fatal.
func (r *Registry) Warm(ctx context.Context, names []string) error {
	if len(names) == 0 && r.discovery != nil && r.mode != DiscoveryDisabled {
		listed, err := r.discovery.ListMethods(ctx)
		if err != nil {
			return fmt.Errorf("listing methods: %w", err)
		}
		names = listed
	}

	var errs []error
	for _, name := range names {
		if _, err := r.Resolve(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Info("method registry warmed", "requested", len(names), "failed", len(errs))
	return errors.Join(errs...)
}

// List returns the names of all known, unexpired methods, sorted.
func (r *Registry) List(ctx context.Context) []string {
	table, err := r.loadTable(ctx)
	if err != nil {
		r.logger.Warn("reading method cache failed", "error", err)
	}
	now := r.now()

	seen := make(map[string]struct{})
	r.mu.RLock()
	for name, def := range r.methods {
		if !def.Expired(now) {
			seen[name] = struct{}{}
		}
	}
	r.mu.RUnlock()
	for name, def := range table {
		if !def.Expired(now) {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) *MethodDefinition {
	r.mu.RLock()
	def, ok := r.methods[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if def.Expired(r.now()) {
		r.mu.Lock()
		delete(r.methods, name)
		r.mu.Unlock()
		return nil
	}
	return def
}

func (r *Registry) remember(def *MethodDefinition) {
	r.mu.Lock()
	r.methods[def.Name] = def.clone()
	r.mu.Unlock()
}

// loadTable reads the whole cached table. A missing table is empty.
func (r *Registry) loadTable(ctx context.Context) (map[string]*MethodDefinition, error) {
	if r.cache == nil {
		return nil, nil
	}
	data, err := r.cache.Read(ctx, r.key)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]*MethodDefinition{}, nil
	}
	if err != nil {
		return nil, err
	}
	var table methodTable
	if err := unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decoding method table: %w", err)
	}
	if table.Methods == nil {
		table.Methods = map[string]*MethodDefinition{}
	}
	for _, def := range table.Methods {
		def.Normalize()
	}
	return table.Methods, nil
}

// persist merges def into the stored table and writes it back.
func (r *Registry) persist(ctx context.Context, def *MethodDefinition) error {
	if r.cache == nil {
		return nil
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	table, err := r.loadTable(ctx)
	if err != nil {
		// An unreadable table is replaced rather than blocking every write.
		r.logger.Warn("replacing unreadable method cache", "error", err)
		table = map[string]*MethodDefinition{}
	}

	now := r.now()
	for name, d := range table {
		if d.Expired(now) {
			delete(table, name)
		}
	}
	table[def.Name] = def

	data, err := marshal(methodTable{Methods: table})
	if err != nil {
		return fmt.Errorf("encoding method table: %w", err)
	}
	return r.cache.Write(ctx, r.key, data, r.ttl)
}
