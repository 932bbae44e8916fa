/*
Package slowmode stores the per-(channel, user) last-post timestamps that enforce
channel slow mode.

Timers are keyed by username rather than connection so that several sockets opened by
the same user share one cooldown. Acquire is a single critical section per key: the
check and the update of the timestamp happen atomically.
*/
package slowmode

import (
	"context"
	"time"
)

// Store records accepted posts and answers whether a new post is allowed.
type Store interface {
	// Acquire checks the cooldown for (channelID, username). When the previous accepted
	// post is at least interval old (or absent) it records now and returns ok=true.
	// Otherwise it leaves the timestamp untouched and returns the remaining wait.
	Acquire(ctx context.Context, channelID, username string, interval time.Duration, now time.Time) (remaining time.Duration, ok bool, err error)

	// Forget drops every timer of channelID.
	Forget(ctx context.Context, channelID string) error
}
