package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// CloseResource closes a connection on the way out of the process.  There is nothing left to do with a failure at
// that point, so it is logged against the resource's name and dropped.
func CloseResource(name string, c io.Closer) {
	log.WithField("resource", name).Debug("Closing")
	if err := c.Close(); err != nil {
		log.WithField("resource", name).WithError(err).Warn("Did not shut down cleanly, unsettled messages will be redelivered")
	}
}
