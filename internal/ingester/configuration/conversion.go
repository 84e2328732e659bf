package configuration

import (
	"runtime"

	"github.com/G-Research/eventhouse/internal/ingester/batcher"
	"github.com/G-Research/eventhouse/internal/ingester/model"
	"github.com/G-Research/eventhouse/internal/ingester/pool"
)

func (c EventhouseConfiguration) BatcherConfig() batcher.Config {
	return batcher.Config{
		MaxRows:       c.Batch.MaxRows,
		MaxBytes:      c.Batch.MaxBytes.Value(),
		FlushInterval: c.Batch.FlushInterval,
		DrainTimeout:  c.Batch.DrainTimeout,
		NakDelay:      c.Batch.NakDelay,
		InsertTimeout: c.Batch.InsertTimeout,
	}
}

// EffectiveWorkers is the configured worker count, or one derived from the available cores if none was configured
func (c EventhouseConfiguration) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return pool.DefaultWorkers(runtime.GOMAXPROCS(0))
}

func (c EventhouseConfiguration) ExtraRoutes() map[string]model.Route {
	routes := make(map[string]model.Route, len(c.Routes))
	for _, route := range c.Routes {
		routes[route.Subject] = model.Route{Table: route.Table, Schema: route.Schema}
	}
	return routes
}
