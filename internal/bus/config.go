package bus

import "errors"

// Config holds configuration for the in-process bus
type Config struct {
	// Synchronous delivers every message inline on the publishing goroutine.
	// Workers and QueueSize are ignored when set.
	Synchronous bool

	// Workers is the number of delivery goroutines
	Workers int

	// QueueSize is the capacity of the delivery queue
	QueueSize int
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Synchronous {
		return nil
	}
	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}
	if c.QueueSize < 0 {
		return errors.New("queue size cannot be negative")
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}
