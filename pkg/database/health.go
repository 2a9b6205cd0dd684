package database

import (
	"context"
	"fmt"
	"time"
)

// Health verifies the run index is reachable. Used by the HTTP health
// endpoint and at startup.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("run index unreachable (%s): %w", c.dialect, err)
	}
	return nil
}
