package appointment

import (
	"fmt"
	"time"

	"github.com/clinic/clinic/internal/platform/notification"
)

// EventType names a lifecycle event applied to an appointment.
type EventType string

const (
	EvConfirm             EventType = "confirm"
	EvCancel              EventType = "cancel"
	EvMarkNoShow          EventType = "mark_no_show"
	EvComplete            EventType = "complete"
	EvReschedule          EventType = "reschedule"
	EvRequestCancellation EventType = "request_cancellation"
	EvApproveCancellation EventType = "approve_cancellation"
	EvRejectCancellation  EventType = "reject_cancellation"
	EvRequestReschedule   EventType = "request_reschedule"
	EvAcceptReschedule    EventType = "accept_reschedule"
	EvRejectReschedule    EventType = "reject_reschedule"
)

// Event carries an EventType plus the fields that type needs. Unused
// fields are ignored.
type Event struct {
	Type   EventType
	Actor  string
	Reason string
	Notes  string
	// Date and Time name the target slot for reschedule events.
	Date string
	Time string
}

// SideEffect names a patient-store mutation the caller must apply after
// persisting the transition.
type SideEffect int

const (
	EffectNone SideEffect = iota
	// EffectActivatePatient moves a "new" patient to "active".
	EffectActivatePatient
	// EffectRecordNoShow adds one strike to the patient.
	EffectRecordNoShow
)

// Change is the computed outcome of a transition: the updated document,
// the patient side effect, and the notification to emit. The caller owns
// persistence and delivery; nothing here touches a store.
type Change struct {
	Appt   Appointment
	Effect SideEffect
	Notify notification.EventType
	Extras map[string]string
}

// Transition applies ev to a copy of a and returns the resulting change.
// cutoff is the minimum lead time for patient-initiated requests. The
// input appointment is never mutated; an error means no change at all.
func Transition(a Appointment, ev Event, now time.Time, cutoff time.Duration) (Change, error) {
	if a.IsTerminal() {
		return Change{}, fmt.Errorf("%w: appointment is %s", ErrWrongState, a.Status)
	}

	// The struct copy still shares its embedded request records with the
	// caller; clone them so a rejected transition leaves the input intact.
	if a.CancellationRequest != nil {
		req := *a.CancellationRequest
		a.CancellationRequest = &req
	}
	if a.RescheduleRequest != nil {
		req := *a.RescheduleRequest
		a.RescheduleRequest = &req
	}

	switch ev.Type {
	case EvConfirm:
		return confirm(a, ev, now)
	case EvCancel:
		return cancel(a, ev, now)
	case EvMarkNoShow:
		return markNoShow(a, ev)
	case EvComplete:
		return complete(a)
	case EvReschedule:
		return staffReschedule(a, ev, now)
	case EvRequestCancellation:
		return requestCancellation(a, ev, now, cutoff)
	case EvApproveCancellation:
		return reviewCancellation(a, ev, now, true)
	case EvRejectCancellation:
		return reviewCancellation(a, ev, now, false)
	case EvRequestReschedule:
		return requestReschedule(a, ev, now, cutoff)
	case EvAcceptReschedule:
		return resolveReschedule(a, ev, now, true)
	case EvRejectReschedule:
		return resolveReschedule(a, ev, now, false)
	default:
		return Change{}, fmt.Errorf("%w: unknown event %q", ErrValidation, ev.Type)
	}
}

func confirm(a Appointment, ev Event, now time.Time) (Change, error) {
	extras := map[string]string{}
	switch a.Status {
	case StatusScheduled:
	case StatusReschedulePending:
		// Staff confirming without a decision from the patient implicitly
		// rejects the pending reschedule and restores the prior slot.
		revertReschedule(&a, ev.Actor, now)
		extras["reschedule_request"] = RequestRejected
	default:
		return Change{}, fmt.Errorf("%w: cannot confirm a %s appointment", ErrWrongState, a.Status)
	}
	a.Status = StatusConfirmed
	return Change{
		Appt:   a,
		Effect: EffectActivatePatient,
		Notify: notification.EventConfirmed,
		Extras: extras,
	}, nil
}

func cancel(a Appointment, ev Event, now time.Time) (Change, error) {
	if ev.Reason != "" {
		a.CancellationReason = &ev.Reason
	}
	switch {
	case a.CancellationRequest != nil && a.CancellationRequest.Status == RequestPending:
		approve(a.CancellationRequest, ev.Actor, ev.Notes, now)
	case a.BookingSource == SourcePortal:
		// Direct staff cancellation of a portal booking gets an
		// already-approved record so the audit trail reads the same as an
		// approved patient request.
		req := &ApprovalRequest{
			Status:      RequestApproved,
			Reason:      ev.Reason,
			RequestedBy: ev.Actor,
			RequestedAt: now,
			PriorStatus: a.Status,
		}
		approve(req, ev.Actor, ev.Notes, now)
		a.CancellationRequest = req
	}
	a.Status = StatusCancelled
	return Change{
		Appt:   a,
		Notify: notification.EventCancelled,
		Extras: map[string]string{"reason": ev.Reason},
	}, nil
}

func markNoShow(a Appointment, ev Event) (Change, error) {
	// Resubmitting an already recorded no-show must not add a strike.
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return Change{}, fmt.Errorf("%w: cannot mark a %s appointment as no-show", ErrWrongState, a.Status)
	}
	a.Status = StatusNoShow
	return Change{
		Appt:   a,
		Effect: EffectRecordNoShow,
		Notify: notification.EventNoShow,
	}, nil
}

func complete(a Appointment) (Change, error) {
	a.Status = StatusCompleted
	return Change{Appt: a, Notify: notification.EventCompleted}, nil
}

func staffReschedule(a Appointment, ev Event, now time.Time) (Change, error) {
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return Change{}, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrWrongState, a.Status)
	}

	if a.BookingSource == SourcePortal {
		// The patient gets the final say; the proposal is displayed as
		// the appointment's slot while the decision is pending.
		a.RescheduleRequest = &RescheduleApproval{
			ApprovalRequest: ApprovalRequest{
				Status:      RequestPending,
				Reason:      ev.Reason,
				RequestedBy: ev.Actor,
				RequestedAt: now,
				PriorStatus: a.Status,
			},
			ProposedDate: ev.Date,
			ProposedTime: ev.Time,
			PriorDate:    a.Date,
			PriorTime:    a.Time,
		}
		a.Date = ev.Date
		a.Time = ev.Time
		a.Status = StatusReschedulePending
		return Change{
			Appt:   a,
			Notify: notification.EventRescheduleRequested,
			Extras: map[string]string{"proposed_date": ev.Date, "proposed_time": ev.Time},
		}, nil
	}

	a.RescheduledFrom = &RescheduleSnapshot{
		Date:          a.Date,
		Time:          a.Time,
		Reason:        ev.Reason,
		RescheduledAt: now,
	}
	a.Date = ev.Date
	a.Time = ev.Time
	a.Status = StatusConfirmed
	return Change{
		Appt:   a,
		Effect: EffectActivatePatient,
		Notify: notification.EventRescheduled,
		Extras: map[string]string{"new_date": ev.Date, "new_time": ev.Time},
	}, nil
}

func requestCancellation(a Appointment, ev Event, now time.Time, cutoff time.Duration) (Change, error) {
	if a.BookingSource != SourcePortal {
		return Change{}, fmt.Errorf("%w: only portal bookings can request cancellation", ErrWrongState)
	}
	if a.CancellationRequest != nil && a.CancellationRequest.Status == RequestPending {
		return Change{}, fmt.Errorf("%w: cancellation already requested", ErrDuplicateRequest)
	}
	if err := checkCutoff(a, now, cutoff); err != nil {
		return Change{}, err
	}
	a.CancellationRequest = &ApprovalRequest{
		Status:      RequestPending,
		Reason:      ev.Reason,
		RequestedBy: ev.Actor,
		RequestedAt: now,
		PriorStatus: a.Status,
	}
	a.Status = StatusCancellationPending
	return Change{
		Appt:   a,
		Notify: notification.EventCancellationRequested,
		Extras: map[string]string{"reason": ev.Reason},
	}, nil
}

func reviewCancellation(a Appointment, ev Event, now time.Time, approved bool) (Change, error) {
	if a.Status != StatusCancellationPending || a.CancellationRequest == nil {
		return Change{}, fmt.Errorf("%w: no cancellation awaiting review", ErrWrongState)
	}
	req := a.CancellationRequest
	if approved {
		approve(req, ev.Actor, ev.Notes, now)
		if req.Reason != "" {
			a.CancellationReason = &req.Reason
		}
		a.Status = StatusCancelled
	} else {
		reject(req, ev.Actor, ev.Notes, now)
		a.Status = req.PriorStatus
	}
	return Change{
		Appt:   a,
		Notify: notification.EventCancellationResolved,
		Extras: map[string]string{"decision": req.Status, "notes": ev.Notes},
	}, nil
}

func requestReschedule(a Appointment, ev Event, now time.Time, cutoff time.Duration) (Change, error) {
	if a.BookingSource != SourcePortal {
		return Change{}, fmt.Errorf("%w: only portal bookings can request a reschedule", ErrWrongState)
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return Change{}, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrWrongState, a.Status)
	}
	if a.RescheduleRequest != nil && a.RescheduleRequest.Status == RequestPending {
		return Change{}, fmt.Errorf("%w: reschedule already requested", ErrDuplicateRequest)
	}
	if err := checkCutoff(a, now, cutoff); err != nil {
		return Change{}, err
	}
	a.RescheduleRequest = &RescheduleApproval{
		ApprovalRequest: ApprovalRequest{
			Status:      RequestPending,
			Reason:      ev.Reason,
			RequestedBy: ev.Actor,
			RequestedAt: now,
			PriorStatus: a.Status,
		},
		ProposedDate: ev.Date,
		ProposedTime: ev.Time,
		PriorDate:    a.Date,
		PriorTime:    a.Time,
	}
	a.Date = ev.Date
	a.Time = ev.Time
	a.Status = StatusReschedulePending
	return Change{
		Appt:   a,
		Notify: notification.EventRescheduleRequested,
		Extras: map[string]string{"proposed_date": ev.Date, "proposed_time": ev.Time},
	}, nil
}

func resolveReschedule(a Appointment, ev Event, now time.Time, accepted bool) (Change, error) {
	if a.Status != StatusReschedulePending || a.RescheduleRequest == nil {
		return Change{}, fmt.Errorf("%w: no reschedule awaiting a decision", ErrWrongState)
	}
	req := a.RescheduleRequest
	if accepted {
		approve(&req.ApprovalRequest, ev.Actor, ev.Notes, now)
		a.RescheduledFrom = &RescheduleSnapshot{
			Date:          req.PriorDate,
			Time:          req.PriorTime,
			Reason:        req.Reason,
			RescheduledAt: now,
		}
		a.Date = req.ProposedDate
		a.Time = req.ProposedTime
		a.Status = StatusConfirmed
		return Change{
			Appt:   a,
			Effect: EffectActivatePatient,
			Notify: notification.EventRescheduleResolved,
			Extras: map[string]string{"decision": RequestApproved, "new_date": a.Date, "new_time": a.Time},
		}, nil
	}

	revertReschedule(&a, ev.Actor, now)
	if ev.Notes != "" {
		notes := ev.Notes
		a.RescheduleRequest.AdminNotes = &notes
	}
	return Change{
		Appt:   a,
		Notify: notification.EventRescheduleResolved,
		Extras: map[string]string{"decision": RequestRejected},
	}, nil
}

// revertReschedule rejects the pending request and restores the slot and
// status it replaced.
func revertReschedule(a *Appointment, actor string, now time.Time) {
	req := a.RescheduleRequest
	reject(&req.ApprovalRequest, actor, "", now)
	a.Date = req.PriorDate
	a.Time = req.PriorTime
	a.Status = req.PriorStatus
}

func checkCutoff(a Appointment, now time.Time, cutoff time.Duration) error {
	start, err := a.StartsAt()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// Exactly the cutoff is still allowed; anything shorter is not.
	if start.Sub(now) < cutoff {
		return fmt.Errorf("%w: requests must be made at least %s before the appointment", ErrCutoff, cutoff)
	}
	return nil
}

func approve(req *ApprovalRequest, by, notes string, now time.Time) {
	req.Status = RequestApproved
	req.ReviewedBy = &by
	t := now
	req.ReviewedAt = &t
	if notes != "" {
		req.AdminNotes = &notes
	}
}

func reject(req *ApprovalRequest, by, notes string, now time.Time) {
	req.Status = RequestRejected
	req.ReviewedBy = &by
	t := now
	req.ReviewedAt = &t
	if notes != "" {
		req.AdminNotes = &notes
	}
}
