package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestQuantityDecodeHook(t *testing.T) {
	hook := QuantityDecodeHook()

	out, err := hook(reflect.TypeOf(""), reflect.TypeOf(resource.Quantity{}), "8Mi")
	require.NoError(t, err)
	q := out.(resource.Quantity)
	assert.Equal(t, int64(8*1024*1024), q.Value())

	out, err = hook(reflect.TypeOf(0), reflect.TypeOf(resource.Quantity{}), 1000)
	require.NoError(t, err)
	q = out.(resource.Quantity)
	assert.Equal(t, int64(1000), q.Value())

	// Other target types pass through untouched
	out, err = hook(reflect.TypeOf(""), reflect.TypeOf(""), "8Mi")
	require.NoError(t, err)
	assert.Equal(t, "8Mi", out)
}

func TestNatsEnumHooks(t *testing.T) {
	out, err := RetentionPolicyHookFunc()(reflect.TypeOf(""), reflect.TypeOf(nats.LimitsPolicy), "WorkQueue")
	require.NoError(t, err)
	assert.Equal(t, nats.WorkQueuePolicy, out)

	out, err = DiscardPolicyHookFunc()(reflect.TypeOf(""), reflect.TypeOf(nats.DiscardOld), "new")
	require.NoError(t, err)
	assert.Equal(t, nats.DiscardNew, out)

	out, err = StorageTypeHookFunc()(reflect.TypeOf(""), reflect.TypeOf(nats.FileStorage), "memory")
	require.NoError(t, err)
	assert.Equal(t, nats.MemoryStorage, out)

	_, err = StorageTypeHookFunc()(reflect.TypeOf(""), reflect.TypeOf(nats.FileStorage), "tape")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	type cfg struct {
		Name    string        `validate:"required"`
		Workers int           `validate:"gte=0"`
		Every   time.Duration `validate:"gt=0"`
	}
	assert.NoError(t, Validate(cfg{Name: "x", Every: time.Second}))
	assert.Error(t, Validate(cfg{Every: time.Second}))
	assert.Error(t, Validate(cfg{Name: "x", Workers: -1, Every: time.Second}))
}

func TestValidate_Identifier(t *testing.T) {
	type cfg struct {
		Table string `validate:"identifier"`
	}
	tests := map[string]bool{
		"session_events":       true,
		"_staging":             true,
		"Events2":              true,
		"":                     false,
		"2fa_events":           false,
		"db.table":             false,
		"events; DROP TABLE x": false,
		"events' OR '1'='1":    false,
		"angulak-like-events":  false,
	}
	for table, valid := range tests {
		t.Run(table, func(t *testing.T) {
			err := Validate(cfg{Table: table})
			if valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
