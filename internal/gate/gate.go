package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/datadrive/doctype-engine/internal/models"
)

// PermissionSource answers capability lookups; in production this is the
// schema registry, in tests a stub.
type PermissionSource interface {
	Capabilities(ctx context.Context, roleIDs []uint64, docTypeID uint64) (models.Capability, error)
}

// Decision is the gate's verdict. Reason is only set on denial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Gate authorizes a bulk-upload attempt before any ingestion work runs. The
// checks are strictly ordered and the first failure is terminal for the
// request. The deadline clock runs in the business timezone, never the
// server's.
type Gate struct {
	perms PermissionSource
	loc   *time.Location
	now   func() time.Time
}

func New(perms PermissionSource, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{perms: perms, loc: loc, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func deny(reason string) Decision { return Decision{Reason: reason} }

// CanUploadNow runs the ordered check sequence:
// active doc type → uploads enabled → canUpload role → admin → bypassDeadline
// → no deadline configured → wall clock strictly before the deadline.
func (g *Gate) CanUploadNow(ctx context.Context, dt *models.DocType, user models.AuthUser) (Decision, error) {
	if dt == nil || !dt.IsActive {
		return deny("document type is not active"), nil
	}
	if !dt.IsUploadActive {
		return deny(fmt.Sprintf("uploads are disabled for %s", dt.Name)), nil
	}

	caps, err := g.perms.Capabilities(ctx, user.RoleIDs, dt.ID)
	if err != nil {
		return Decision{}, err
	}
	if !caps.CanUpload {
		return deny(fmt.Sprintf("you do not have upload permission for %s", dt.Name)), nil
	}
	if user.IsAdmin {
		return Decision{Allowed: true}, nil
	}
	if caps.BypassDeadline {
		return Decision{Allowed: true}, nil
	}
	if dt.UploadDeadlineHour == nil {
		return Decision{Allowed: true}, nil
	}

	now := g.now().In(g.loc)
	deadlineMinutes := *dt.UploadDeadlineHour*60 + dt.UploadDeadlineMinute
	nowMinutes := now.Hour()*60 + now.Minute()
	if nowMinutes < deadlineMinutes {
		return Decision{Allowed: true}, nil
	}
	return deny(fmt.Sprintf("upload deadline %02d:%02d has passed (current time %02d:%02d)",
		*dt.UploadDeadlineHour, dt.UploadDeadlineMinute, now.Hour(), now.Minute())), nil
}
