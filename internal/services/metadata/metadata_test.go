package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

func testService() *Service {
	log := logger.New("metadata-test", "test")
	log.DisableConsoleOutput()
	return NewService(log)
}

func exportCache() *schema.Cache {
	c := schema.NewCache()
	orders := schema.TableKey{Schema: "public", Name: "orders"}
	users := schema.TableKey{Schema: "public", Name: "users"}

	c.TrackTable(orders)
	c.TrackTable(users)
	c.Tables[orders].Relationships["user"] = &schema.Relationship{
		Name:  "user",
		Kind:  schema.ObjectRelationship,
		Using: json.RawMessage(`{"foreign_key_constraint_on":"user_id"}`),
	}
	c.Tables[users].Relationships["orders"] = &schema.Relationship{
		Name:  "orders",
		Kind:  schema.ArrayRelationship,
		Using: json.RawMessage(`{"foreign_key_constraint_on":{"table":"orders","column":"user_id"}}`),
	}
	c.Tables[orders].Permissions[schema.PermissionKey{Role: "customer", Verb: "select"}] = &schema.Permission{
		Role:       "customer",
		Verb:       "select",
		Definition: json.RawMessage(`{"filter":{"user_id":"x-relgate-user-id"}}`),
	}
	c.Functions[schema.TableKey{Schema: "public", Name: "user_count"}] = &schema.FunctionInfo{
		Function: schema.TableKey{Schema: "public", Name: "user_count"},
	}
	c.Triggers["order_placed"] = &schema.TriggerInfo{
		Name:    "order_placed",
		Table:   orders,
		Webhook: "https://hooks.internal/orders",
	}
	c.Templates["top_orders"] = &schema.TemplateInfo{
		Name:     "top_orders",
		Template: json.RawMessage(`{"type":"select","args":{"table":"orders"}}`),
	}
	return c
}

func TestExport(t *testing.T) {
	s := testService()
	out, err := s.Export(exportCache())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(out, &doc))

	require.Len(t, doc.Tables, 2)
	// Tables sort by qualified name.
	assert.Equal(t, "orders", doc.Tables[0].Table.Name)
	assert.Equal(t, "users", doc.Tables[1].Table.Name)

	require.Len(t, doc.Tables[0].ObjectRelationships, 1)
	assert.Equal(t, "user", doc.Tables[0].ObjectRelationships[0].Name)
	require.Len(t, doc.Tables[1].ArrayRelationships, 1)

	require.Len(t, doc.Tables[0].SelectPermissions, 1)
	assert.Equal(t, "customer", doc.Tables[0].SelectPermissions[0].Role)
	assert.Empty(t, doc.Tables[0].InsertPermissions)

	// The trigger lands on its table, not at the top level.
	require.Len(t, doc.Tables[0].EventTriggers, 1)
	assert.Equal(t, "order_placed", doc.Tables[0].EventTriggers[0].Name)
	assert.Empty(t, doc.Tables[1].EventTriggers)

	require.Len(t, doc.Functions, 1)
	assert.Equal(t, "user_count", doc.Functions[0].Name)
	require.Len(t, doc.QueryTemplates, 1)
	assert.Equal(t, "top_orders", doc.QueryTemplates[0].Name)
}

func TestExportIsDeterministic(t *testing.T) {
	s := testService()
	cache := exportCache()

	first, err := s.Export(cache)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Export(cache)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestExportEmptyCache(t *testing.T) {
	s := testService()
	out, err := s.Export(schema.NewCache())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Empty(t, doc.Tables)
	assert.Empty(t, doc.Functions)
}
