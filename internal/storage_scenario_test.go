package internal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/eav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenarioSchemas struct {
	registry *eav.Registry
	employee *eav.Schema
	badge    *eav.Schema
}

func newScenarioSchemas(t *testing.T) scenarioSchemas {
	t.Helper()
	r := eav.NewRegistry()
	employee, err := r.DefineSchema("Employee",
		eav.F("firstname", eav.String(16)),
		eav.F("lastname", eav.String(16)),
		eav.F("age", eav.Integer),
	)
	require.NoError(t, err)
	badge, err := r.DefineSchema("Badge",
		eav.F("code", eav.UUID),
		eav.F("issued", eav.DateTime),
		eav.F("active", eav.Boolean),
		eav.F("score", eav.Float),
		eav.F("level", eav.Enum("level", "junior", "senior")),
		eav.F("note", eav.Text()),
		eav.F("serial", eav.BigInteger),
	)
	require.NoError(t, err)
	return scenarioSchemas{registry: r, employee: employee, badge: badge}
}

// rowCounter counts committed rows of entity id in a value table.
type rowCounter func(t *testing.T, table string, id int64) int

// runStorageScenario drives the Employee lifecycle through a Session
// against storage and checks every value kind survives a round trip.
func runStorageScenario(t *testing.T, storage eav.Storage, countRows rowCounter) {
	t.Helper()
	ctx := context.Background()
	fx := newScenarioSchemas(t)
	r := fx.registry

	require.NoError(t, r.CreateAll(ctx, storage))
	// bootstrap is idempotent
	require.NoError(t, r.CreateAll(ctx, storage))

	ada, err := fx.employee.New(map[string]any{"firstname": "Ada", "lastname": "Lovelace", "age": 36})
	require.NoError(t, err)

	code := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	issued := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	badge, err := fx.badge.New(map[string]any{
		"code":   code,
		"issued": issued,
		"active": true,
		"score":  0.5,
		"level":  "senior",
		"note":   "first programmer",
		"serial": int64(1) << 40,
	})
	require.NoError(t, err)

	writer := eav.NewSession(r, storage)
	require.NoError(t, writer.Add(ada))
	require.NoError(t, writer.Add(badge))
	require.NoError(t, writer.Commit(ctx))
	require.NoError(t, writer.Close(ctx))
	require.NotZero(t, ada.ID())
	require.NotZero(t, badge.ID())
	assert.NotEqual(t, ada.ID(), badge.ID())

	reader := eav.NewSession(r, storage)
	loaded, err := reader.Get(ctx, fx.employee, ada.ID())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstname": "Ada", "lastname": "Lovelace", "age": int64(36)}, loaded.Values())

	lb, err := reader.Load(ctx, badge.ID())
	require.NoError(t, err)
	assert.Same(t, fx.badge, lb.Schema())
	gotCode, _, err := eav.FieldValue[uuid.UUID](lb, "code")
	require.NoError(t, err)
	assert.Equal(t, code, gotCode)
	gotIssued, _, err := eav.FieldValue[time.Time](lb, "issued")
	require.NoError(t, err)
	assert.True(t, issued.Equal(gotIssued), "issued = %v", gotIssued)
	values := lb.Values()
	assert.Equal(t, true, values["active"])
	assert.Equal(t, 0.5, values["score"])
	assert.Equal(t, "senior", values["level"])
	assert.Equal(t, "first programmer", values["note"])
	assert.Equal(t, int64(1)<<40, values["serial"])
	require.NoError(t, reader.Close(ctx))

	// clearing a field removes its row, updating rewrites in place
	editor := eav.NewSession(r, storage)
	loaded, err = editor.Get(ctx, fx.employee, ada.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Set("lastname", nil))
	require.NoError(t, loaded.Set("age", 37))
	require.NoError(t, editor.Commit(ctx))
	require.NoError(t, editor.Close(ctx))
	assert.Equal(t, 1, countRows(t, "value_string_16", ada.ID()))
	assert.Equal(t, 1, countRows(t, "value_integer", ada.ID()))

	check := eav.NewSession(r, storage)
	loaded, err = check.Get(ctx, fx.employee, ada.ID())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstname": "Ada", "age": int64(37)}, loaded.Values())

	// deleting the entity removes its rows from every value table
	require.NoError(t, check.Delete(loaded))
	require.NoError(t, check.Commit(ctx))
	require.NoError(t, check.Close(ctx))
	for _, table := range r.Tables() {
		assert.Zero(t, countRows(t, table.Name, ada.ID()), table.Name)
	}
	assert.Equal(t, 1, countRows(t, "value_uuid", badge.ID()))

	final := eav.NewSession(r, storage)
	defer final.Close(ctx)
	_, err = final.Get(ctx, fx.employee, ada.ID())
	assert.True(t, eav.IsNotFound(err))
	_, err = final.Get(ctx, fx.employee, badge.ID())
	assert.True(t, eav.IsNotFound(err))
}
