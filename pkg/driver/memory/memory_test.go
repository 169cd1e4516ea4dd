package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/driver/drivertest"
	"github.com/strata-dev/strata/pkg/driver/memory"
)

func TestConformance(t *testing.T) {
	drivertest.Run(t, func(t *testing.T) driver.Driver {
		return memory.New()
	})
}

func TestSeedClonesInput(t *testing.T) {
	d := memory.New()
	rec := api.Record{api.IDField: "a1", "name": "original"}
	d.Seed("things", rec)

	rec["name"] = "mutated"

	got, err := d.FindOne(context.Background(), "things", "a1")
	require.NoError(t, err)
	assert.Equal(t, "original", got["name"])
}

func TestFindReturnsCopies(t *testing.T) {
	d := memory.New()
	d.Seed("things", api.Record{api.IDField: "a1", "name": "original"})

	out, err := d.Find(context.Background(), "things", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	out[0]["name"] = "mutated"

	got, err := d.FindOne(context.Background(), "things", "a1")
	require.NoError(t, err)
	assert.Equal(t, "original", got["name"])
}

func TestCreateGeneratesID(t *testing.T) {
	d := memory.New()
	created, err := d.Create(context.Background(), "things", api.Record{"name": "anon"})
	require.NoError(t, err)
	id, ok := created.ID()
	require.True(t, ok)
	assert.NotEmpty(t, id)
}
