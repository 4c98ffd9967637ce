package query

// NeedsReload reports whether a successful execution of c changed the
// shared catalog, meaning other instances must invalidate and rebuild
// their schema cache. The policy is fixed per variant, not inferred:
// commands that only touch row data or are pure reads never require a
// reload, while anything that can alter tracked catalog structure does.
// Raw SQL is treated conservatively as always reload-requiring since
// arbitrary SQL may alter the catalog.
func NeedsReload(c Command) bool {
	return c.needsReload()
}

func (*TrackTable) needsReload() bool      { return true }
func (*UntrackTable) needsReload() bool    { return true }
func (*TrackFunction) needsReload() bool   { return true }
func (*UntrackFunction) needsReload() bool { return true }

func (*CreateObjectRelationship) needsReload() bool { return true }
func (*CreateArrayRelationship) needsReload() bool  { return true }
func (*DropRelationship) needsReload() bool         { return true }
func (*RenameRelationship) needsReload() bool       { return true }
func (*SetRelationshipComment) needsReload() bool   { return false }

func (*CreateInsertPermission) needsReload() bool { return true }
func (*CreateSelectPermission) needsReload() bool { return true }
func (*CreateUpdatePermission) needsReload() bool { return true }
func (*CreateDeletePermission) needsReload() bool { return true }
func (*DropInsertPermission) needsReload() bool   { return true }
func (*DropSelectPermission) needsReload() bool   { return true }
func (*DropUpdatePermission) needsReload() bool   { return true }
func (*DropDeletePermission) needsReload() bool   { return true }
func (*SetPermissionComment) needsReload() bool   { return false }

func (*Insert) needsReload() bool { return false }
func (*Select) needsReload() bool { return false }
func (*Update) needsReload() bool { return false }
func (*Delete) needsReload() bool { return false }
func (*Count) needsReload() bool  { return false }

func (*AddRemoteSchema) needsReload() bool    { return true }
func (*RemoveRemoteSchema) needsReload() bool { return true }

func (*CreateEventTrigger) needsReload() bool { return true }
func (*DeleteEventTrigger) needsReload() bool { return true }
func (*DeliverEvent) needsReload() bool       { return false }

func (*CreateQueryTemplate) needsReload() bool     { return true }
func (*DropQueryTemplate) needsReload() bool       { return true }
func (*ExecuteQueryTemplate) needsReload() bool    { return false }
func (*SetQueryTemplateComment) needsReload() bool { return false }

func (*RunSQL) needsReload() bool { return true }

func (*ReplaceMetadata) needsReload() bool { return true }
func (*ExportMetadata) needsReload() bool  { return false }
func (*ClearMetadata) needsReload() bool   { return true }
func (*ReloadMetadata) needsReload() bool  { return true }

func (*DumpInternalState) needsReload() bool { return false }

// A bulk requires a reload iff any contained command individually does.
func (b *Bulk) needsReload() bool {
	for _, c := range b.Commands {
		if c.needsReload() {
			return true
		}
	}
	return false
}
