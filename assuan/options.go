package assuan

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default server options
var DefaultOptions = Options{
	Logger:  &log.Logger,
	LineMax: 1000,
}

// Options are server options, see also DefaultOptions
type Options struct {
	Logger *zerolog.Logger // if nil logging is disabled

	LineMax int // longest accepted request line, in bytes

	// ReqsPerSec throttles request lines per connection; 0 disables.
	ReqsPerSec float64
	Burst      int // rate-limiter burst; 0 means 1
}
