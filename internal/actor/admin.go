package actor

import (
	"context"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

// AdminActor is the single control-plane actor: phase schedule, publish
// flags, announcements and forced reconciliation all go through it, so
// administrative writes are serialized like everything else.
type AdminActor struct {
	sys  *System
	proc *proc
}

func newAdminActor(sys *System) *AdminActor {
	return &AdminActor{sys: sys, proc: newProc("admin")}
}

// SetPhaseSchedule installs a new schedule. The four boundaries must be
// strictly increasing; the schedule takes effect within the phase cache TTL.
func (a *AdminActor) SetPhaseSchedule(ctx context.Context, s *model.PhaseSchedule) error {
	if !(s.SelectionStartMs < s.SelectionEndMs &&
		s.SelectionEndMs <= s.SwapStartMs &&
		s.SwapStartMs < s.SwapEndMs) {
		return apperr.New("BAD_REQUEST", "schedule boundaries must be increasing", 400)
	}
	var err error
	cerr := a.proc.Call(ctx, func() {
		s.CreatedAtMs = a.sys.deps.nowMs()
		if err = a.sys.deps.Phases.Insert(ctx, s); err != nil {
			return
		}
		a.sys.deps.Phase.Invalidate()
		for _, role := range []model.Role{model.RoleStudent, model.RoleFaculty, model.RoleAdmin} {
			a.sys.deps.Hub.SendToRole(string(role), map[string]interface{}{
				"type":     "phase_schedule",
				"schedule": s,
			})
		}
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// PublishSubject flips a subject's published flag and re-materializes it so
// the key-value entry appears (or stops being aggregated) promptly.
func (a *AdminActor) PublishSubject(ctx context.Context, subjectID int, published bool) error {
	subj, err := a.sys.deps.Subjects.GetByID(ctx, subjectID)
	if err != nil {
		return err
	}
	if subj == nil {
		return apperr.Newf("SUBJECT_NOT_FOUND", 404, "subject %d not found", subjectID)
	}
	if err := a.sys.deps.Subjects.SetPublished(ctx, subjectID, published); err != nil {
		return err
	}
	if published {
		return a.sys.Subject(subjectID).Materialize(ctx)
	}
	return nil
}

// PublishSection flips a section's published flag.
func (a *AdminActor) PublishSection(ctx context.Context, sectionID int, published bool) error {
	sec, err := a.sys.deps.Sections.GetByID(ctx, sectionID)
	if err != nil {
		return err
	}
	if sec == nil {
		return apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", sectionID)
	}
	if err := a.sys.deps.Sections.SetPublished(ctx, sectionID, published); err != nil {
		return err
	}
	return a.sys.Subject(sec.SubjectID).Materialize(ctx)
}

// Announce stores a notification for a role or a single user and pushes it.
func (a *AdminActor) Announce(ctx context.Context, createdBy string, n *model.Notification) error {
	if n.Title == "" {
		return apperr.New("BAD_REQUEST", "title required", 400)
	}
	if n.AudienceRole == "" && n.AudienceUserID == "" {
		return apperr.New("BAD_REQUEST", "audience required", 400)
	}
	n.CreatedByUserID = createdBy
	n.CreatedAtMs = a.sys.deps.nowMs()
	if err := a.sys.deps.Notifications.Create(ctx, n); err != nil {
		return err
	}
	event := map[string]interface{}{"type": "notification", "notification": n}
	if n.AudienceUserID != "" {
		a.sys.deps.Hub.SendToUser(n.AudienceUserID, event)
	} else {
		a.sys.deps.Hub.SendToRole(string(n.AudienceRole), event)
	}
	return nil
}

// ReconcileReport summarizes one forced reconciliation sweep.
type ReconcileReport struct {
	Sections int      `json:"sections"`
	Changed  []int    `json:"changed"`
	Errors   []string `json:"errors,omitempty"`
}

// ReconcileAll sweeps every published section, repairing membership drift
// against the selection rows. Errors on individual sections do not stop the
// sweep.
func (a *AdminActor) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	secs, err := a.sys.deps.Sections.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Sections: len(secs), Changed: []int{}}
	for _, sec := range secs {
		changed, rerr := a.sys.Section(sec.ID).Reconcile(ctx)
		if rerr != nil {
			report.Errors = append(report.Errors, apperr.From(rerr).Error())
			continue
		}
		if changed {
			report.Changed = append(report.Changed, sec.ID)
		}
	}
	return report, nil
}
