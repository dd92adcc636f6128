package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	version "github.com/hashicorp/go-version"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/velox-mssql/dialect"
)

// Version thresholds the renderers branch on.
var (
	// MS2005 is SQL Server 2005, the floor for OUTPUT clauses and
	// isolation-level introspection.
	MS2005 = version.Must(version.NewVersion("9.0"))
	// MS2008 is SQL Server 2008, which introduced DATE/TIME column types
	// and multi-row VALUES lists.
	MS2008 = version.Must(version.NewVersion("10.0"))
	// MS2012 is SQL Server 2012, which introduced OFFSET/FETCH and
	// deprecated the TEXT/NTEXT/IMAGE types.
	MS2012 = version.Must(version.NewVersion("11.0"))
)

// Capability describes the facts about the connected SQL Server that
// rendering decisions are a pure function of: the product version, the
// pagination syntax it supports, its large-type deprecation status, and the
// schema-aliasing compatibility mode.
//
// A Capability may be constructed fully specified, or left unversioned and
// completed later by Probe on the first real connection. Until the probe
// runs, decisions default conservatively: no OFFSET/FETCH support, large
// types not deprecated, DATE/TIME folded to DATETIME.
//
// A Capability is safe for concurrent use; once probed it is effectively
// immutable.
type Capability struct {
	mu                   sync.RWMutex
	version              *version.Version
	offsetFetch          bool
	deprecateLargeTypes  *bool // tri-state; nil derives from the version
	legacySchemaAliasing bool
	useScopeIdentity     bool
	schemaName           string
	sf                   singleflight.Group
}

// CapabilityOption configures a Capability.
type CapabilityOption func(*Capability)

// WithServerVersion sets the server product version up front, skipping the
// probe. The string is in SERVERPROPERTY('productversion') form, e.g.
// "11.0.3000.0". Invalid strings leave the capability unversioned.
func WithServerVersion(s string) CapabilityOption {
	return func(c *Capability) {
		if v, err := version.NewVersion(s); err == nil {
			c.setVersion(v)
		}
	}
}

// WithDeprecateLargeTypes forces the large-type rendering mode instead of
// deriving it from the server version. When true, TEXT/NTEXT/IMAGE render as
// VARCHAR(max)/NVARCHAR(max)/VARBINARY(max).
func WithDeprecateLargeTypes(deprecate bool) CapabilityOption {
	return func(c *Capability) {
		c.deprecateLargeTypes = &deprecate
	}
}

// WithLegacySchemaAliasing turns on the compatibility mode in which
// schema-qualified tables are replaced by an anonymous alias of themselves
// everywhere they are referenced.
func WithLegacySchemaAliasing() CapabilityOption {
	return func(c *Capability) {
		c.legacySchemaAliasing = true
	}
}

// WithoutScopeIdentity makes the last-id fetch use @@identity instead of
// scope_identity().
func WithoutScopeIdentity() CapabilityOption {
	return func(c *Capability) {
		c.useScopeIdentity = false
	}
}

// WithDefaultSchema sets the owner used for unqualified schema strings.
// Defaults to "dbo".
func WithDefaultSchema(name string) CapabilityOption {
	return func(c *Capability) {
		c.schemaName = name
	}
}

// NewCapability returns a new Capability.
func NewCapability(opts ...CapabilityOption) *Capability {
	c := &Capability{useScopeIdentity: true, schemaName: "dbo"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// setVersion records the server version and derives the version-dependent
// feature flags from it.
func (c *Capability) setVersion(v *version.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = v
	c.offsetFetch = v.Segments()[0] >= 11
	if major := v.Segments()[0]; major < 8 || major > 16 {
		slog.Warn("unrecognized SQL Server version. some features may not function properly",
			slog.String("version", v.String()))
	}
}

// Probe completes the capability from a live connection by reading
// SERVERPROPERTY('productversion'). Concurrent probes are deduplicated; the
// first successful probe wins and later calls are no-ops.
func (c *Capability) Probe(ctx context.Context, conn dialect.ExecQuerier) error {
	c.mu.RLock()
	probed := c.version != nil
	c.mu.RUnlock()
	if probed {
		return nil
	}
	_, err, _ := c.sf.Do("probe", func() (any, error) {
		// Re-check under the flight: a previous flight may have finished
		// between the fast path and here.
		c.mu.RLock()
		probed := c.version != nil
		c.mu.RUnlock()
		if probed {
			return nil, nil
		}
		rows := &Rows{}
		if err := conn.Query(ctx, "SELECT CAST(SERVERPROPERTY('productversion') AS NVARCHAR(128))", []any{}, rows); err != nil {
			return nil, fmt.Errorf("mssql: probe server version: %w", err)
		}
		defer rows.Close()
		if !rows.Next() {
			return nil, fmt.Errorf("mssql: probe server version: empty result")
		}
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("mssql: probe server version: %w", err)
		}
		v, err := version.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("mssql: probe server version %q: %w", s, err)
		}
		c.setVersion(v)
		return nil, nil
	})
	return err
}

// Version returns the server version, or nil before the probe.
func (c *Capability) Version() *version.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SupportsOffsetFetch reports whether the server accepts the native
// OFFSET ... ROWS FETCH NEXT ... ROWS ONLY pagination clause (2012+).
// Unversioned capabilities report false.
func (c *Capability) SupportsOffsetFetch() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offsetFetch
}

// SupportsMultiValuesInsert reports whether INSERT accepts more than one
// VALUES tuple (2008+).
func (c *Capability) SupportsMultiValuesInsert() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version != nil && c.version.GreaterThanOrEqual(MS2008)
}

// SupportsIsolationLevelIntrospection reports whether the session isolation
// level can be read back from sys.dm_exec_sessions (2005+). An unversioned
// capability reports true; the view predates every supported server.
func (c *Capability) SupportsIsolationLevelIntrospection() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version == nil || c.version.GreaterThanOrEqual(MS2005)
}

// DeprecateLargeTypes reports whether TEXT/NTEXT/IMAGE are replaced by their
// (N)VARCHAR(max)/VARBINARY(max) forms. Unless forced by
// WithDeprecateLargeTypes, it defaults from the server version (2012+).
func (c *Capability) DeprecateLargeTypes() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deprecateLargeTypes != nil {
		return *c.deprecateLargeTypes
	}
	return c.version != nil && c.version.GreaterThanOrEqual(MS2012)
}

// DateTypesSupported reports whether the server has the DATE and TIME column
// types (2008+). Below the threshold both render as DATETIME.
func (c *Capability) DateTypesSupported() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version != nil && c.version.GreaterThanOrEqual(MS2008)
}

// LegacySchemaAliasing reports whether schema-qualified tables are replaced
// by anonymous self-aliases during rendering.
func (c *Capability) LegacySchemaAliasing() bool {
	return c.legacySchemaAliasing
}

// UseScopeIdentity reports whether the last-id fetch uses scope_identity().
func (c *Capability) UseScopeIdentity() bool {
	return c.useScopeIdentity
}

// DefaultSchema returns the owner used for unqualified schema strings.
func (c *Capability) DefaultSchema() string {
	return c.schemaName
}

// versionString renders the version for error messages, or "(unknown)".
func (c *Capability) versionString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.version == nil {
		return "(unknown)"
	}
	return c.version.String()
}
