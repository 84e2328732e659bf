package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/eventhouse/internal/common/config"
)

// Validate checks struct tags and then the rules that span fields.  Tag errors are returned as they are so that
// config.LogValidationErrors can report them field by field.
func (c EventhouseConfiguration) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}

	var result *multierror.Error
	if err := c.Logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Batch.MaxBytes.Value() <= 0 {
		result = multierror.Append(result, errors.Errorf("batch.maxBytes must be positive but is %s", c.Batch.MaxBytes.String()))
	}
	if c.Batch.DrainTimeout <= c.Nats.PullTimeout {
		result = multierror.Append(result, errors.Errorf(
			"batch.drainTimeout (%s) must be longer than nats.pullTimeout (%s) so that in-flight pulls can be drained",
			c.Batch.DrainTimeout, c.Nats.PullTimeout))
	}
	seen := map[string]bool{}
	for _, route := range c.Routes {
		if seen[route.Subject] {
			result = multierror.Append(result, errors.Errorf("subject %s is routed more than once", route.Subject))
		}
		seen[route.Subject] = true
	}
	return result.ErrorOrNil()
}
