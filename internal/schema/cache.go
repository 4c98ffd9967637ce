// Package schema holds the in-memory representation of the tracked
// catalog. A Cache is a value: every top-level call works on its own
// clone, and the mutated clone only becomes visible to others when the
// caller installs it after a successful commit.
package schema

import (
	"encoding/json"
)

// TableKey identifies a tracked table or function.
type TableKey struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

func (k TableKey) String() string {
	return k.Schema + "." + k.Name
}

// RelationshipKind distinguishes object from array relationships.
type RelationshipKind string

const (
	ObjectRelationship RelationshipKind = "object"
	ArrayRelationship  RelationshipKind = "array"
)

// Relationship is a tracked relationship on a table.
type Relationship struct {
	Name    string           `json:"name"`
	Kind    RelationshipKind `json:"kind"`
	Using   json.RawMessage  `json:"using"`
	Comment *string          `json:"comment,omitempty"`
}

// Permission is one role/verb permission rule on a table.
type Permission struct {
	Role       string          `json:"role"`
	Verb       string          `json:"verb"`
	Definition json.RawMessage `json:"definition"`
	Comment    *string         `json:"comment,omitempty"`
}

// PermissionKey identifies a permission rule within a table.
type PermissionKey struct {
	Role string
	Verb string
}

// TableInfo is the cached state of one tracked table.
type TableInfo struct {
	Table         TableKey
	Relationships map[string]*Relationship
	Permissions   map[PermissionKey]*Permission
}

// NewTableInfo returns an empty tracked-table entry.
func NewTableInfo(key TableKey) *TableInfo {
	return &TableInfo{
		Table:         key,
		Relationships: make(map[string]*Relationship),
		Permissions:   make(map[PermissionKey]*Permission),
	}
}

// FunctionInfo is the cached state of one tracked function.
type FunctionInfo struct {
	Function TableKey
}

// RemoteSchemaInfo is the cached state of one registered remote schema.
type RemoteSchemaInfo struct {
	Name    string          `json:"name"`
	URL     string          `json:"url"`
	Raw     json.RawMessage `json:"definition"`
	Comment *string         `json:"comment,omitempty"`
}

// TriggerInfo is the cached state of one event trigger.
type TriggerInfo struct {
	Name       string          `json:"name"`
	Table      TableKey        `json:"table"`
	Webhook    string          `json:"webhook"`
	Definition json.RawMessage `json:"definition,omitempty"`
}

// TemplateInfo is the cached state of one query template.
type TemplateInfo struct {
	Name     string          `json:"name"`
	Template json.RawMessage `json:"template"`
	Comment  *string         `json:"comment,omitempty"`
}

// Cache is the mutable snapshot of tracked catalog state threaded
// through a single top-level call.
type Cache struct {
	Tables        map[TableKey]*TableInfo
	Functions     map[TableKey]*FunctionInfo
	RemoteSchemas map[string]*RemoteSchemaInfo
	Triggers      map[string]*TriggerInfo
	Templates     map[string]*TemplateInfo
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		Tables:        make(map[TableKey]*TableInfo),
		Functions:     make(map[TableKey]*FunctionInfo),
		RemoteSchemas: make(map[string]*RemoteSchemaInfo),
		Triggers:      make(map[string]*TriggerInfo),
		Templates:     make(map[string]*TemplateInfo),
	}
}

// Clone returns a deep copy. Peeling a run computation clones the
// shared snapshot first so a rolled-back call never leaks a partial
// mutation.
func (c *Cache) Clone() *Cache {
	out := NewCache()
	for k, t := range c.Tables {
		nt := NewTableInfo(t.Table)
		for name, rel := range t.Relationships {
			cp := *rel
			cp.Using = cloneRaw(rel.Using)
			nt.Relationships[name] = &cp
		}
		for pk, perm := range t.Permissions {
			cp := *perm
			cp.Definition = cloneRaw(perm.Definition)
			nt.Permissions[pk] = &cp
		}
		out.Tables[k] = nt
	}
	for k, f := range c.Functions {
		cp := *f
		out.Functions[k] = &cp
	}
	for k, rs := range c.RemoteSchemas {
		cp := *rs
		cp.Raw = cloneRaw(rs.Raw)
		out.RemoteSchemas[k] = &cp
	}
	for k, tr := range c.Triggers {
		cp := *tr
		cp.Definition = cloneRaw(tr.Definition)
		out.Triggers[k] = &cp
	}
	for k, tpl := range c.Templates {
		cp := *tpl
		cp.Template = cloneRaw(tpl.Template)
		out.Templates[k] = &cp
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return cp
}

// Table returns the cached entry for a tracked table, or nil.
func (c *Cache) Table(key TableKey) *TableInfo {
	return c.Tables[key]
}

// TrackTable records a newly tracked table.
func (c *Cache) TrackTable(key TableKey) {
	c.Tables[key] = NewTableInfo(key)
}

// UntrackTable removes a table and everything hanging off it.
func (c *Cache) UntrackTable(key TableKey) {
	delete(c.Tables, key)
	for name, tr := range c.Triggers {
		if tr.Table == key {
			delete(c.Triggers, name)
		}
	}
}
