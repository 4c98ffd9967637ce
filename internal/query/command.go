// Package query defines the closed command taxonomy accepted by the
// query endpoint, its wire encoding, and the reload policy that decides
// which commands require cooperating instances to rebuild their schema
// cache.
package query

import (
	"encoding/json"
)

// Command is one decoded client request. The set of variants is closed:
// only types in this package implement it, and both the decoder
// registry and the needsReload method are compiler-checked against
// every variant.
type Command interface {
	// Tag returns the wire tag of the variant ("track_table", "bulk", ...).
	Tag() string

	// needsReload reports whether a successful execution implies the
	// shared catalog changed. Unexported so the taxonomy stays sealed.
	needsReload() bool
}

// TableName identifies a schema-qualified table or function. The wire
// form is either a bare string (schema defaults to "public") or an
// object {"schema": ..., "name": ...}.
type TableName struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

func (t *TableName) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		t.Schema = "public"
		t.Name = name
		return nil
	}
	type plain TableName
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Schema == "" {
		p.Schema = "public"
	}
	*t = TableName(p)
	return nil
}

func (t TableName) String() string {
	return t.Schema + "." + t.Name
}

// PermissionVerb is one of the four row-level permission kinds.
type PermissionVerb string

const (
	VerbInsert PermissionVerb = "insert"
	VerbSelect PermissionVerb = "select"
	VerbUpdate PermissionVerb = "update"
	VerbDelete PermissionVerb = "delete"
)

// Table tracking

type TrackTable struct {
	Table TableName `json:"table"`
}

type UntrackTable struct {
	Table   TableName `json:"table"`
	Cascade bool      `json:"cascade,omitempty"`
}

// Function tracking

type TrackFunction struct {
	Function TableName `json:"function"`
}

type UntrackFunction struct {
	Function TableName `json:"function"`
}

// Relationship management

type CreateObjectRelationship struct {
	Table   TableName       `json:"table"`
	Name    string          `json:"name"`
	Using   json.RawMessage `json:"using"`
	Comment *string         `json:"comment,omitempty"`
}

type CreateArrayRelationship struct {
	Table   TableName       `json:"table"`
	Name    string          `json:"name"`
	Using   json.RawMessage `json:"using"`
	Comment *string         `json:"comment,omitempty"`
}

type DropRelationship struct {
	Table        TableName `json:"table"`
	Relationship string    `json:"relationship"`
	Cascade      bool      `json:"cascade,omitempty"`
}

type SetRelationshipComment struct {
	Table        TableName `json:"table"`
	Relationship string    `json:"relationship"`
	Comment      *string   `json:"comment,omitempty"`
}

type RenameRelationship struct {
	Table   TableName `json:"table"`
	Name    string    `json:"name"`
	NewName string    `json:"new_name"`
}

// Permission management. The create/drop variants for the four verbs
// share one payload shape; the verb is carried by the variant itself.

type PermissionDefinition struct {
	Role       string          `json:"role"`
	Permission json.RawMessage `json:"permission"`
	Comment    *string         `json:"comment,omitempty"`
}

type CreateInsertPermission struct {
	Table TableName `json:"table"`
	PermissionDefinition
}

type CreateSelectPermission struct {
	Table TableName `json:"table"`
	PermissionDefinition
}

type CreateUpdatePermission struct {
	Table TableName `json:"table"`
	PermissionDefinition
}

type CreateDeletePermission struct {
	Table TableName `json:"table"`
	PermissionDefinition
}

type DropInsertPermission struct {
	Table TableName `json:"table"`
	Role  string    `json:"role"`
}

type DropSelectPermission struct {
	Table TableName `json:"table"`
	Role  string    `json:"role"`
}

type DropUpdatePermission struct {
	Table TableName `json:"table"`
	Role  string    `json:"role"`
}

type DropDeletePermission struct {
	Table TableName `json:"table"`
	Role  string    `json:"role"`
}

type SetPermissionComment struct {
	Table   TableName      `json:"table"`
	Role    string         `json:"role"`
	Verb    PermissionVerb `json:"type"`
	Comment *string        `json:"comment,omitempty"`
}

// Data operations. Filter, column and row payloads stay semi-opaque:
// the engine hands them to the data executor unchanged.

type Insert struct {
	Table     TableName       `json:"table"`
	Objects   json.RawMessage `json:"objects"`
	Returning []string        `json:"returning,omitempty"`
}

type Select struct {
	Table   TableName       `json:"table"`
	Columns json.RawMessage `json:"columns"`
	Where   json.RawMessage `json:"where,omitempty"`
	OrderBy json.RawMessage `json:"order_by,omitempty"`
	Limit   *int            `json:"limit,omitempty"`
	Offset  *int            `json:"offset,omitempty"`
}

type Update struct {
	Table     TableName       `json:"table"`
	Set       json.RawMessage `json:"$set"`
	Where     json.RawMessage `json:"where"`
	Returning []string        `json:"returning,omitempty"`
}

type Delete struct {
	Table     TableName       `json:"table"`
	Where     json.RawMessage `json:"where"`
	Returning []string        `json:"returning,omitempty"`
}

type Count struct {
	Table    TableName       `json:"table"`
	Where    json.RawMessage `json:"where,omitempty"`
	Distinct []string        `json:"distinct,omitempty"`
}

// Remote schemas

type RemoteSchemaDefinition struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

type AddRemoteSchema struct {
	Name       string                 `json:"name"`
	Definition RemoteSchemaDefinition `json:"definition"`
	Comment    *string                `json:"comment,omitempty"`
}

type RemoveRemoteSchema struct {
	Name string `json:"name"`
}

// Event triggers

type CreateEventTrigger struct {
	Name       string          `json:"name"`
	Table      TableName       `json:"table"`
	Webhook    string          `json:"webhook"`
	Definition json.RawMessage `json:"definition,omitempty"`
	Replace    bool            `json:"replace,omitempty"`
}

type DeleteEventTrigger struct {
	Name string `json:"name"`
}

type DeliverEvent struct {
	EventID string `json:"event_id"`
}

// Query templates

type CreateQueryTemplate struct {
	Name     string          `json:"name"`
	Template json.RawMessage `json:"template"`
	Comment  *string         `json:"comment,omitempty"`
}

type DropQueryTemplate struct {
	Name string `json:"name"`
}

type ExecuteQueryTemplate struct {
	Name string                     `json:"name"`
	Args map[string]json.RawMessage `json:"args,omitempty"`
}

type SetQueryTemplateComment struct {
	Name    string  `json:"name"`
	Comment *string `json:"comment,omitempty"`
}

// Raw SQL

type RunSQL struct {
	SQL     string `json:"sql"`
	Cascade bool   `json:"cascade,omitempty"`
}

// Metadata lifecycle

type ReplaceMetadata struct {
	Metadata json.RawMessage `json:"metadata"`
}

type ExportMetadata struct{}

type ClearMetadata struct{}

type ReloadMetadata struct{}

// Internal state

type DumpInternalState struct{}

// Bulk wraps an ordered sequence of further commands, executed
// atomically in order inside one transaction. Elements may themselves
// be Bulk; nesting depth is bounded only by caller input.
type Bulk struct {
	Commands []Command
}

// Tag implementations. The tag is the variant name with its family
// prefix stripped, in lowercase-with-underscores form; the decoder
// registry in wire.go is validated against this set at startup.

func (*TrackTable) Tag() string               { return "track_table" }
func (*UntrackTable) Tag() string             { return "untrack_table" }
func (*TrackFunction) Tag() string            { return "track_function" }
func (*UntrackFunction) Tag() string          { return "untrack_function" }
func (*CreateObjectRelationship) Tag() string { return "create_object_relationship" }
func (*CreateArrayRelationship) Tag() string  { return "create_array_relationship" }
func (*DropRelationship) Tag() string         { return "drop_relationship" }
func (*SetRelationshipComment) Tag() string   { return "set_relationship_comment" }
func (*RenameRelationship) Tag() string       { return "rename_relationship" }
func (*CreateInsertPermission) Tag() string   { return "create_insert_permission" }
func (*CreateSelectPermission) Tag() string   { return "create_select_permission" }
func (*CreateUpdatePermission) Tag() string   { return "create_update_permission" }
func (*CreateDeletePermission) Tag() string   { return "create_delete_permission" }
func (*DropInsertPermission) Tag() string     { return "drop_insert_permission" }
func (*DropSelectPermission) Tag() string     { return "drop_select_permission" }
func (*DropUpdatePermission) Tag() string     { return "drop_update_permission" }
func (*DropDeletePermission) Tag() string     { return "drop_delete_permission" }
func (*SetPermissionComment) Tag() string     { return "set_permission_comment" }
func (*Insert) Tag() string                   { return "insert" }
func (*Select) Tag() string                   { return "select" }
func (*Update) Tag() string                   { return "update" }
func (*Delete) Tag() string                   { return "delete" }
func (*Count) Tag() string                    { return "count" }
func (*AddRemoteSchema) Tag() string          { return "add_remote_schema" }
func (*RemoveRemoteSchema) Tag() string       { return "remove_remote_schema" }
func (*CreateEventTrigger) Tag() string       { return "create_event_trigger" }
func (*DeleteEventTrigger) Tag() string       { return "delete_event_trigger" }
func (*DeliverEvent) Tag() string             { return "deliver_event" }
func (*CreateQueryTemplate) Tag() string      { return "create_query_template" }
func (*DropQueryTemplate) Tag() string        { return "drop_query_template" }
func (*ExecuteQueryTemplate) Tag() string     { return "execute_query_template" }
func (*SetQueryTemplateComment) Tag() string  { return "set_query_template_comment" }
func (*RunSQL) Tag() string                   { return "run_sql" }
func (*ReplaceMetadata) Tag() string          { return "replace_metadata" }
func (*ExportMetadata) Tag() string           { return "export_metadata" }
func (*ClearMetadata) Tag() string            { return "clear_metadata" }
func (*ReloadMetadata) Tag() string           { return "reload_metadata" }
func (*DumpInternalState) Tag() string        { return "dump_internal_state" }
func (*Bulk) Tag() string                     { return "bulk" }
