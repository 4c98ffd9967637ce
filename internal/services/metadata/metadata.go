// Package metadata assembles, replaces and reloads the full tracked
// catalog as one document.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles whole-catalog metadata operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new metadata service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Document is the exported/imported form of the tracked catalog.
type Document struct {
	Tables         []TableMeta        `json:"tables"`
	Functions      []schema.TableKey  `json:"functions,omitempty"`
	RemoteSchemas  []RemoteSchemaMeta `json:"remote_schemas,omitempty"`
	QueryTemplates []TemplateMeta     `json:"query_templates,omitempty"`
}

type TableMeta struct {
	Table               schema.TableKey    `json:"table"`
	ObjectRelationships []RelationshipMeta `json:"object_relationships,omitempty"`
	ArrayRelationships  []RelationshipMeta `json:"array_relationships,omitempty"`
	InsertPermissions   []PermissionMeta   `json:"insert_permissions,omitempty"`
	SelectPermissions   []PermissionMeta   `json:"select_permissions,omitempty"`
	UpdatePermissions   []PermissionMeta   `json:"update_permissions,omitempty"`
	DeletePermissions   []PermissionMeta   `json:"delete_permissions,omitempty"`
	EventTriggers       []TriggerMeta      `json:"event_triggers,omitempty"`
}

type RelationshipMeta struct {
	Name    string          `json:"name"`
	Using   json.RawMessage `json:"using"`
	Comment *string         `json:"comment,omitempty"`
}

type PermissionMeta struct {
	Role       string          `json:"role"`
	Permission json.RawMessage `json:"permission"`
	Comment    *string         `json:"comment,omitempty"`
}

type TriggerMeta struct {
	Name       string          `json:"name"`
	Webhook    string          `json:"webhook"`
	Definition json.RawMessage `json:"definition,omitempty"`
}

type RemoteSchemaMeta struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	Comment    *string         `json:"comment,omitempty"`
}

type TemplateMeta struct {
	Name     string          `json:"name"`
	Template json.RawMessage `json:"template"`
	Comment  *string         `json:"comment,omitempty"`
}

// Export renders the cache as a metadata document. Output ordering is
// deterministic so exports diff cleanly.
func (s *Service) Export(cache *schema.Cache) ([]byte, error) {
	doc := Document{Tables: make([]TableMeta, 0, len(cache.Tables))}

	tableKeys := make([]schema.TableKey, 0, len(cache.Tables))
	for k := range cache.Tables {
		tableKeys = append(tableKeys, k)
	}
	sort.Slice(tableKeys, func(i, j int) bool {
		return tableKeys[i].String() < tableKeys[j].String()
	})

	for _, k := range tableKeys {
		t := cache.Tables[k]
		tm := TableMeta{Table: k}

		relNames := make([]string, 0, len(t.Relationships))
		for name := range t.Relationships {
			relNames = append(relNames, name)
		}
		sort.Strings(relNames)
		for _, name := range relNames {
			rel := t.Relationships[name]
			rm := RelationshipMeta{Name: rel.Name, Using: rel.Using, Comment: rel.Comment}
			if rel.Kind == schema.ObjectRelationship {
				tm.ObjectRelationships = append(tm.ObjectRelationships, rm)
			} else {
				tm.ArrayRelationships = append(tm.ArrayRelationships, rm)
			}
		}

		permKeys := make([]schema.PermissionKey, 0, len(t.Permissions))
		for pk := range t.Permissions {
			permKeys = append(permKeys, pk)
		}
		sort.Slice(permKeys, func(i, j int) bool {
			if permKeys[i].Role != permKeys[j].Role {
				return permKeys[i].Role < permKeys[j].Role
			}
			return permKeys[i].Verb < permKeys[j].Verb
		})
		for _, pk := range permKeys {
			perm := t.Permissions[pk]
			pm := PermissionMeta{Role: perm.Role, Permission: perm.Definition, Comment: perm.Comment}
			switch pk.Verb {
			case "insert":
				tm.InsertPermissions = append(tm.InsertPermissions, pm)
			case "select":
				tm.SelectPermissions = append(tm.SelectPermissions, pm)
			case "update":
				tm.UpdatePermissions = append(tm.UpdatePermissions, pm)
			case "delete":
				tm.DeletePermissions = append(tm.DeletePermissions, pm)
			}
		}

		doc.Tables = append(doc.Tables, tm)
	}

	triggerNames := make([]string, 0, len(cache.Triggers))
	for name := range cache.Triggers {
		triggerNames = append(triggerNames, name)
	}
	sort.Strings(triggerNames)
	for _, name := range triggerNames {
		tr := cache.Triggers[name]
		for i := range doc.Tables {
			if doc.Tables[i].Table == tr.Table {
				doc.Tables[i].EventTriggers = append(doc.Tables[i].EventTriggers,
					TriggerMeta{Name: tr.Name, Webhook: tr.Webhook, Definition: tr.Definition})
			}
		}
	}

	fnKeys := make([]schema.TableKey, 0, len(cache.Functions))
	for k := range cache.Functions {
		fnKeys = append(fnKeys, k)
	}
	sort.Slice(fnKeys, func(i, j int) bool { return fnKeys[i].String() < fnKeys[j].String() })
	doc.Functions = fnKeys

	rsNames := make([]string, 0, len(cache.RemoteSchemas))
	for name := range cache.RemoteSchemas {
		rsNames = append(rsNames, name)
	}
	sort.Strings(rsNames)
	for _, name := range rsNames {
		rs := cache.RemoteSchemas[name]
		doc.RemoteSchemas = append(doc.RemoteSchemas,
			RemoteSchemaMeta{Name: rs.Name, Definition: rs.Raw, Comment: rs.Comment})
	}

	tplNames := make([]string, 0, len(cache.Templates))
	for name := range cache.Templates {
		tplNames = append(tplNames, name)
	}
	sort.Strings(tplNames)
	for _, name := range tplNames {
		tpl := cache.Templates[name]
		doc.QueryTemplates = append(doc.QueryTemplates,
			TemplateMeta{Name: tpl.Name, Template: tpl.Template, Comment: tpl.Comment})
	}

	return json.Marshal(doc)
}

// Clear wipes every catalog table except the schema-update event log.
func (s *Service) Clear(ctx context.Context, tx pgx.Tx) error {
	s.logger.Infof("Clearing catalog metadata")

	stmts := []string{
		`DELETE FROM relgate_catalog.event_triggers`,
		`DELETE FROM relgate_catalog.permissions`,
		`DELETE FROM relgate_catalog.relationships`,
		`DELETE FROM relgate_catalog.tracked_functions`,
		`DELETE FROM relgate_catalog.tracked_tables`,
		`DELETE FROM relgate_catalog.remote_schemas`,
		`DELETE FROM relgate_catalog.query_templates`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return qerr.Postgres(err)
		}
	}
	return nil
}

// Replace clears the catalog and applies the given document, returning
// the cache the document describes.
func (s *Service) Replace(ctx context.Context, tx pgx.Tx, raw json.RawMessage) (*schema.Cache, error) {
	s.logger.Infof("Replacing catalog metadata from document")

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, qerr.Wrap(qerr.CodeParseFailed, "malformed metadata document", err)
	}

	if err := s.Clear(ctx, tx); err != nil {
		return nil, err
	}

	cache := schema.NewCache()

	for _, tm := range doc.Tables {
		key := tm.Table
		if key.Schema == "" {
			key.Schema = "public"
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO relgate_catalog.tracked_tables (schema_name, table_name) VALUES ($1, $2)`,
			key.Schema, key.Name); err != nil {
			return nil, qerr.Postgres(err)
		}
		cache.TrackTable(key)
		info := cache.Table(key)

		insertRel := func(rm RelationshipMeta, kind schema.RelationshipKind) error {
			if _, err := tx.Exec(ctx,
				`INSERT INTO relgate_catalog.relationships (table_schema, table_name, rel_name, rel_kind, rel_def, comment)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				key.Schema, key.Name, rm.Name, string(kind), rm.Using, rm.Comment); err != nil {
				return qerr.Postgres(err)
			}
			info.Relationships[rm.Name] = &schema.Relationship{
				Name: rm.Name, Kind: kind, Using: rm.Using, Comment: rm.Comment,
			}
			return nil
		}
		for _, rm := range tm.ObjectRelationships {
			if err := insertRel(rm, schema.ObjectRelationship); err != nil {
				return nil, err
			}
		}
		for _, rm := range tm.ArrayRelationships {
			if err := insertRel(rm, schema.ArrayRelationship); err != nil {
				return nil, err
			}
		}

		insertPerm := func(pm PermissionMeta, verb string) error {
			if _, err := tx.Exec(ctx,
				`INSERT INTO relgate_catalog.permissions (table_schema, table_name, role_name, perm_verb, perm_def, comment)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				key.Schema, key.Name, pm.Role, verb, pm.Permission, pm.Comment); err != nil {
				return qerr.Postgres(err)
			}
			info.Permissions[schema.PermissionKey{Role: pm.Role, Verb: verb}] = &schema.Permission{
				Role: pm.Role, Verb: verb, Definition: pm.Permission, Comment: pm.Comment,
			}
			return nil
		}
		for _, pm := range tm.InsertPermissions {
			if err := insertPerm(pm, "insert"); err != nil {
				return nil, err
			}
		}
		for _, pm := range tm.SelectPermissions {
			if err := insertPerm(pm, "select"); err != nil {
				return nil, err
			}
		}
		for _, pm := range tm.UpdatePermissions {
			if err := insertPerm(pm, "update"); err != nil {
				return nil, err
			}
		}
		for _, pm := range tm.DeletePermissions {
			if err := insertPerm(pm, "delete"); err != nil {
				return nil, err
			}
		}

		for _, trm := range tm.EventTriggers {
			if _, err := tx.Exec(ctx,
				`INSERT INTO relgate_catalog.event_triggers (name, table_schema, table_name, webhook, definition)
				 VALUES ($1, $2, $3, $4, $5)`,
				trm.Name, key.Schema, key.Name, trm.Webhook, trm.Definition); err != nil {
				return nil, qerr.Postgres(err)
			}
			cache.Triggers[trm.Name] = &schema.TriggerInfo{
				Name: trm.Name, Table: key, Webhook: trm.Webhook, Definition: trm.Definition,
			}
		}
	}

	for _, fn := range doc.Functions {
		if fn.Schema == "" {
			fn.Schema = "public"
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO relgate_catalog.tracked_functions (schema_name, function_name) VALUES ($1, $2)`,
			fn.Schema, fn.Name); err != nil {
			return nil, qerr.Postgres(err)
		}
		cache.Functions[fn] = &schema.FunctionInfo{Function: fn}
	}

	for _, rs := range doc.RemoteSchemas {
		if _, err := tx.Exec(ctx,
			`INSERT INTO relgate_catalog.remote_schemas (name, definition, comment) VALUES ($1, $2, $3)`,
			rs.Name, rs.Definition, rs.Comment); err != nil {
			return nil, qerr.Postgres(err)
		}
		cache.RemoteSchemas[rs.Name] = remoteSchemaInfo(rs)
	}

	for _, tpl := range doc.QueryTemplates {
		if _, err := tx.Exec(ctx,
			`INSERT INTO relgate_catalog.query_templates (name, template, comment) VALUES ($1, $2, $3)`,
			tpl.Name, tpl.Template, tpl.Comment); err != nil {
			return nil, qerr.Postgres(err)
		}
		cache.Templates[tpl.Name] = &schema.TemplateInfo{
			Name: tpl.Name, Template: tpl.Template, Comment: tpl.Comment,
		}
	}

	return cache, nil
}

func remoteSchemaInfo(rs RemoteSchemaMeta) *schema.RemoteSchemaInfo {
	info := &schema.RemoteSchemaInfo{Name: rs.Name, Raw: rs.Definition, Comment: rs.Comment}
	var def struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rs.Definition, &def); err == nil {
		info.URL = def.URL
	}
	return info
}

// Load rebuilds a cache from the catalog tables inside the current
// transaction.
func (s *Service) Load(ctx context.Context, tx pgx.Tx) (*schema.Cache, error) {
	s.logger.Infof("Loading schema cache from catalog")

	cache := schema.NewCache()

	rows, err := tx.Query(ctx,
		`SELECT schema_name, table_name FROM relgate_catalog.tracked_tables`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var k schema.TableKey
		if err := rows.Scan(&k.Schema, &k.Name); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		cache.TrackTable(k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT table_schema, table_name, rel_name, rel_kind, rel_def, comment
		 FROM relgate_catalog.relationships`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var k schema.TableKey
		var rel schema.Relationship
		var kind string
		if err := rows.Scan(&k.Schema, &k.Name, &rel.Name, &kind, &rel.Using, &rel.Comment); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		rel.Kind = schema.RelationshipKind(kind)
		t := cache.Table(k)
		if t == nil {
			rows.Close()
			return nil, qerr.Internal(fmt.Sprintf("relationship %q references untracked table %s", rel.Name, k))
		}
		relCopy := rel
		t.Relationships[rel.Name] = &relCopy
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT table_schema, table_name, role_name, perm_verb, perm_def, comment
		 FROM relgate_catalog.permissions`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var k schema.TableKey
		var perm schema.Permission
		if err := rows.Scan(&k.Schema, &k.Name, &perm.Role, &perm.Verb, &perm.Definition, &perm.Comment); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		t := cache.Table(k)
		if t == nil {
			rows.Close()
			return nil, qerr.Internal(fmt.Sprintf("permission for role %q references untracked table %s", perm.Role, k))
		}
		permCopy := perm
		t.Permissions[schema.PermissionKey{Role: perm.Role, Verb: perm.Verb}] = &permCopy
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT schema_name, function_name FROM relgate_catalog.tracked_functions`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var k schema.TableKey
		if err := rows.Scan(&k.Schema, &k.Name); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		cache.Functions[k] = &schema.FunctionInfo{Function: k}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT name, definition, comment FROM relgate_catalog.remote_schemas`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var rs RemoteSchemaMeta
		if err := rows.Scan(&rs.Name, &rs.Definition, &rs.Comment); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		cache.RemoteSchemas[rs.Name] = remoteSchemaInfo(rs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT name, table_schema, table_name, webhook, definition
		 FROM relgate_catalog.event_triggers`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var tr schema.TriggerInfo
		if err := rows.Scan(&tr.Name, &tr.Table.Schema, &tr.Table.Name, &tr.Webhook, &tr.Definition); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		trCopy := tr
		cache.Triggers[tr.Name] = &trCopy
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	rows, err = tx.Query(ctx,
		`SELECT name, template, comment FROM relgate_catalog.query_templates`)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	for rows.Next() {
		var tpl schema.TemplateInfo
		if err := rows.Scan(&tpl.Name, &tpl.Template, &tpl.Comment); err != nil {
			rows.Close()
			return nil, qerr.Postgres(err)
		}
		tplCopy := tpl
		cache.Templates[tpl.Name] = &tplCopy
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	return cache, nil
}
