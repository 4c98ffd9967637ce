package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedCache() *Cache {
	c := NewCache()
	users := TableKey{Schema: "public", Name: "users"}
	orders := TableKey{Schema: "public", Name: "orders"}

	c.TrackTable(users)
	c.TrackTable(orders)
	c.Tables[orders].Relationships["user"] = &Relationship{
		Name:  "user",
		Kind:  ObjectRelationship,
		Using: json.RawMessage(`{"foreign_key_constraint_on":"user_id"}`),
	}
	c.Tables[orders].Permissions[PermissionKey{Role: "customer", Verb: "select"}] = &Permission{
		Role:       "customer",
		Verb:       "select",
		Definition: json.RawMessage(`{"filter":{}}`),
	}
	c.Functions[TableKey{Schema: "public", Name: "user_count"}] = &FunctionInfo{
		Function: TableKey{Schema: "public", Name: "user_count"},
	}
	c.RemoteSchemas["billing"] = &RemoteSchemaInfo{
		Name: "billing",
		URL:  "https://billing.internal/graphql",
		Raw:  json.RawMessage(`{"url":"https://billing.internal/graphql"}`),
	}
	c.Triggers["order_placed"] = &TriggerInfo{
		Name:    "order_placed",
		Table:   orders,
		Webhook: "https://hooks.internal/orders",
	}
	c.Templates["top_orders"] = &TemplateInfo{
		Name:     "top_orders",
		Template: json.RawMessage(`{"type":"select","args":{"table":"orders"}}`),
	}
	return c
}

func TestCloneIsDeep(t *testing.T) {
	orig := populatedCache()
	clone := orig.Clone()

	require.Equal(t, orig, clone)

	orders := TableKey{Schema: "public", Name: "orders"}

	// Mutating every layer of the clone must leave the original alone.
	clone.TrackTable(TableKey{Schema: "public", Name: "invoices"})
	clone.Tables[orders].Relationships["user"].Name = "owner"
	clone.Tables[orders].Permissions[PermissionKey{Role: "customer", Verb: "select"}].Role = "anyone"
	clone.Tables[orders].Relationships["items"] = &Relationship{Name: "items", Kind: ArrayRelationship}
	delete(clone.Functions, TableKey{Schema: "public", Name: "user_count"})
	clone.RemoteSchemas["billing"].URL = "https://elsewhere"
	clone.Triggers["order_placed"].Webhook = "https://elsewhere"
	clone.Templates["top_orders"].Template = json.RawMessage(`{}`)

	assert.Len(t, orig.Tables, 2)
	assert.Equal(t, "user", orig.Tables[orders].Relationships["user"].Name)
	assert.Equal(t, "customer", orig.Tables[orders].Permissions[PermissionKey{Role: "customer", Verb: "select"}].Role)
	assert.Len(t, orig.Tables[orders].Relationships, 1)
	assert.Contains(t, orig.Functions, TableKey{Schema: "public", Name: "user_count"})
	assert.Equal(t, "https://billing.internal/graphql", orig.RemoteSchemas["billing"].URL)
	assert.Equal(t, "https://hooks.internal/orders", orig.Triggers["order_placed"].Webhook)
	assert.JSONEq(t, `{"type":"select","args":{"table":"orders"}}`, string(orig.Templates["top_orders"].Template))
}

func TestCloneRawIndependence(t *testing.T) {
	orig := populatedCache()
	clone := orig.Clone()

	orders := TableKey{Schema: "public", Name: "orders"}
	raw := clone.Tables[orders].Relationships["user"].Using
	for i := range raw {
		raw[i] = 'x'
	}

	assert.JSONEq(t, `{"foreign_key_constraint_on":"user_id"}`,
		string(orig.Tables[orders].Relationships["user"].Using))
}

func TestUntrackTableDropsDependentTriggers(t *testing.T) {
	c := populatedCache()
	orders := TableKey{Schema: "public", Name: "orders"}

	c.UntrackTable(orders)

	assert.Nil(t, c.Table(orders))
	assert.NotContains(t, c.Triggers, "order_placed")
	// Unrelated state survives.
	assert.NotNil(t, c.Table(TableKey{Schema: "public", Name: "users"}))
	assert.Contains(t, c.Templates, "top_orders")
}
