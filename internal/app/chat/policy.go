package chat

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/app/slowmode"
	"huddle/internal/app/store"
	"huddle/internal/pkg/errs"
)

// PolicyKind classifies a policy rejection.
type PolicyKind int

const (
	PermissionDenied PolicyKind = iota + 1
	SlowModeActive
	VoiceChannelFull
	NotFound
)

func (k PolicyKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case SlowModeActive:
		return "slow mode active"
	case VoiceChannelFull:
		return "voice channel full"
	case NotFound:
		return "not found"
	}
	return "unknown"
}

// PolicyError is returned when a channel rule rejects an action.
type PolicyError struct {
	Kind PolicyKind

	// RemainingSeconds is set for SlowModeActive.
	RemainingSeconds int
}

func (e *PolicyError) Error() string {
	if e.Kind == SlowModeActive {
		return fmt.Sprintf("policy: %s (%ds remaining)", e.Kind, e.RemainingSeconds)
	}
	return "policy: " + e.Kind.String()
}

// CustomError converts the rejection into the error sent on the wire.
func (e *PolicyError) CustomError() *errs.CustomError {
	switch e.Kind {
	case PermissionDenied:
		return errs.NewError(errs.ErrPermissionDenied)
	case SlowModeActive:
		return errs.NewError(errs.ErrSlowModeActive, e.RemainingSeconds)
	case VoiceChannelFull:
		return errs.NewError(errs.ErrVoiceChannelFull)
	case NotFound:
		return errs.NewError(errs.ErrChannelNotFound)
	}
	return errs.NewError(errs.ErrUnknown)
}

// PolicyEngine evaluates per-channel rules. Its only state is the slow-mode timer store.
type PolicyEngine struct {
	timers slowmode.Store
	now    func() time.Time
}

// NewPolicyEngine builds an engine on top of timers. A nil clock means time.Now.
func NewPolicyEngine(timers slowmode.Store, now func() time.Time) *PolicyEngine {
	if now == nil {
		now = time.Now
	}
	return &PolicyEngine{timers: timers, now: now}
}

// CheckMessage decides whether username may post to ch. privileged is the sender's
// owner-or-admin status. On acceptance in a slow-mode channel the user's timer is
// advanced; rejected attempts leave it untouched.
func (p *PolicyEngine) CheckMessage(ctx context.Context, ch store.Channel, username string, privileged bool) error {
	if ch.Settings.AdminOnly && !privileged {
		return &PolicyError{Kind: PermissionDenied}
	}

	if ch.Settings.SlowModeSeconds > 0 {
		interval := time.Duration(ch.Settings.SlowModeSeconds) * time.Second
		remaining, ok, err := p.timers.Acquire(ctx, ch.ID, username, interval, p.now())
		if err != nil {
			return fmt.Errorf("slow mode check: %w", err)
		}
		if !ok {
			return &PolicyError{Kind: SlowModeActive, RemainingSeconds: ceilSeconds(remaining)}
		}
	}

	return nil
}

// CheckVoiceCapacity rejects a join when a positive limit is already reached.
func (p *PolicyEngine) CheckVoiceCapacity(userLimit, occupancy int) error {
	if userLimit > 0 && occupancy >= userLimit {
		return &PolicyError{Kind: VoiceChannelFull}
	}
	return nil
}

// Forget drops the slow-mode timers of a deleted channel.
func (p *PolicyEngine) Forget(ctx context.Context, channelID string) error {
	return p.timers.Forget(ctx, channelID)
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
