package query

import (
	"encoding/json"
	"fmt"

	"github.com/relgate/relgate/internal/qerr"
)

// Envelope is the wire form of a command: {"type": tag, "args": payload}.
type Envelope struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

// decoders maps every non-bulk tag to a constructor for its variant.
// Bulk is handled separately because its args are themselves a sequence
// of envelopes. ValidateRegistry checks at startup that this map covers
// exactly the sealed taxonomy.
var decoders = map[string]func() Command{
	"track_table":                func() Command { return &TrackTable{} },
	"untrack_table":              func() Command { return &UntrackTable{} },
	"track_function":             func() Command { return &TrackFunction{} },
	"untrack_function":           func() Command { return &UntrackFunction{} },
	"create_object_relationship": func() Command { return &CreateObjectRelationship{} },
	"create_array_relationship":  func() Command { return &CreateArrayRelationship{} },
	"drop_relationship":          func() Command { return &DropRelationship{} },
	"set_relationship_comment":   func() Command { return &SetRelationshipComment{} },
	"rename_relationship":        func() Command { return &RenameRelationship{} },
	"create_insert_permission":   func() Command { return &CreateInsertPermission{} },
	"create_select_permission":   func() Command { return &CreateSelectPermission{} },
	"create_update_permission":   func() Command { return &CreateUpdatePermission{} },
	"create_delete_permission":   func() Command { return &CreateDeletePermission{} },
	"drop_insert_permission":     func() Command { return &DropInsertPermission{} },
	"drop_select_permission":     func() Command { return &DropSelectPermission{} },
	"drop_update_permission":     func() Command { return &DropUpdatePermission{} },
	"drop_delete_permission":     func() Command { return &DropDeletePermission{} },
	"set_permission_comment":     func() Command { return &SetPermissionComment{} },
	"insert":                     func() Command { return &Insert{} },
	"select":                     func() Command { return &Select{} },
	"update":                     func() Command { return &Update{} },
	"delete":                     func() Command { return &Delete{} },
	"count":                      func() Command { return &Count{} },
	"add_remote_schema":          func() Command { return &AddRemoteSchema{} },
	"remove_remote_schema":       func() Command { return &RemoveRemoteSchema{} },
	"create_event_trigger":       func() Command { return &CreateEventTrigger{} },
	"delete_event_trigger":       func() Command { return &DeleteEventTrigger{} },
	"deliver_event":              func() Command { return &DeliverEvent{} },
	"create_query_template":      func() Command { return &CreateQueryTemplate{} },
	"drop_query_template":        func() Command { return &DropQueryTemplate{} },
	"execute_query_template":     func() Command { return &ExecuteQueryTemplate{} },
	"set_query_template_comment": func() Command { return &SetQueryTemplateComment{} },
	"run_sql":                    func() Command { return &RunSQL{} },
	"replace_metadata":           func() Command { return &ReplaceMetadata{} },
	"export_metadata":            func() Command { return &ExportMetadata{} },
	"clear_metadata":             func() Command { return &ClearMetadata{} },
	"reload_metadata":            func() Command { return &ReloadMetadata{} },
	"dump_internal_state":        func() Command { return &DumpInternalState{} },
}

const bulkTag = "bulk"

// Decode parses a tagged wire value into exactly one command variant.
// An unrecognized tag or malformed payload fails with a parse error
// before any transaction is opened.
func Decode(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, qerr.Wrap(qerr.CodeParseFailed, "not a valid query envelope", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope decodes an already-split envelope.
func DecodeEnvelope(env Envelope) (Command, error) {
	if env.Type == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeParseFailed, "missing command type"), "type")
	}

	if env.Type == bulkTag {
		var elems []json.RawMessage
		if err := json.Unmarshal(env.Args, &elems); err != nil {
			return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, "bulk args must be an array of queries", err), "args")
		}
		b := &Bulk{Commands: make([]Command, 0, len(elems))}
		for i, raw := range elems {
			c, err := Decode(raw)
			if err != nil {
				return nil, qerr.WithField(qerr.WithIndex(err, i), "args")
			}
			b.Commands = append(b.Commands, c)
		}
		return b, nil
	}

	mk, ok := decoders[env.Type]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeParseFailed, "unknown query type %q", env.Type), "type")
	}

	c := mk()
	args := env.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, c); err != nil {
		return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, fmt.Sprintf("malformed args for %s", env.Type), err), "args")
	}
	return c, nil
}

// Encode renders a command back into its tagged wire form. Encode and
// Decode are inverse for every non-bulk variant; a bulk encodes its
// elements recursively into a JSON array of envelopes.
func Encode(c Command) ([]byte, error) {
	var args []byte
	var err error

	if b, ok := c.(*Bulk); ok {
		elems := make([]json.RawMessage, 0, len(b.Commands))
		for _, sub := range b.Commands {
			enc, err := Encode(sub)
			if err != nil {
				return nil, err
			}
			elems = append(elems, enc)
		}
		args, err = json.Marshal(elems)
	} else {
		args, err = json.Marshal(c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", c.Tag(), err)
	}

	return json.Marshal(Envelope{Type: c.Tag(), Args: args})
}

// Tags returns the full set of wire tags, bulk included.
func Tags() []string {
	tags := make([]string, 0, len(decoders)+1)
	for t := range decoders {
		tags = append(tags, t)
	}
	return append(tags, bulkTag)
}

// ValidateRegistry verifies that the decoder registry and the sealed
// command set agree: every registered constructor produces a command
// whose Tag matches its registry key. Called once at startup; a
// mismatch means a variant was added without a decoder arm.
func ValidateRegistry() error {
	for tag, mk := range decoders {
		if got := mk().Tag(); got != tag {
			return fmt.Errorf("command registry mismatch: tag %q decodes to variant tagged %q", tag, got)
		}
	}
	return nil
}
