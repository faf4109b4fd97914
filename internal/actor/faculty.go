package actor

import (
	"context"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

// FacultyActor serves one faculty member's view: the sections they teach and
// a channel to notify the students currently placed in them.
type FacultyActor struct {
	sys    *System
	userID string
	proc   *proc
}

func newFacultyActor(sys *System, userID string) *FacultyActor {
	return &FacultyActor{sys: sys, userID: userID, proc: newProc("faculty")}
}

// Sections returns the live status of every section this faculty teaches.
func (a *FacultyActor) Sections(ctx context.Context) ([]SectionStatus, error) {
	var (
		out []SectionStatus
		err error
	)
	cerr := a.proc.Call(ctx, func() {
		var secs []model.Section
		secs, err = a.sys.deps.Sections.ListByFaculty(ctx, a.userID)
		if err != nil {
			return
		}
		out = make([]SectionStatus, 0, len(secs))
		for _, sec := range secs {
			st, serr := a.sys.Section(sec.ID).Status(ctx)
			if serr != nil {
				err = serr
				return
			}
			out = append(out, *st)
		}
	})
	if cerr != nil {
		return nil, cerr
	}
	return out, err
}

// SectionStatus returns one owned section's status. Asking about a section
// taught by someone else is refused.
func (a *FacultyActor) SectionStatus(ctx context.Context, sectionID int) (*SectionStatus, error) {
	sec, err := a.sys.deps.Sections.GetByID(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", sectionID)
	}
	if sec.FacultyUserID != a.userID {
		return nil, apperr.New("FORBIDDEN", "not your section", 403)
	}
	return a.sys.Section(sectionID).Status(ctx)
}

// NotifySection stores and pushes a notification to every student currently
// placed in one of this faculty's sections.
func (a *FacultyActor) NotifySection(ctx context.Context, sectionID int, title, body string) (int, error) {
	st, err := a.SectionStatus(ctx, sectionID)
	if err != nil {
		return 0, err
	}
	now := a.sys.deps.nowMs()
	for _, m := range st.Members {
		n := &model.Notification{
			CreatedByUserID: a.userID,
			AudienceUserID:  m.UserID,
			Title:           title,
			Body:            body,
			CreatedAtMs:     now,
		}
		if err := a.sys.deps.Notifications.Create(ctx, n); err != nil {
			return 0, err
		}
		a.sys.deps.Hub.SendToUser(m.UserID, map[string]interface{}{
			"type":         "notification",
			"notification": n,
		})
	}
	return len(st.Members), nil
}
