package swipe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/kanban"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
)

// ─── Applications ─────────────────────────────────────────────────────────────

// MoveApplication moves an application on the employer's kanban board.
// Withdrawal is reserved to the applicant.
func (s *Service) MoveApplication(ctx context.Context, employerID, appID, newStatusStr string) (*model.Application, error) {
	newStatus, err := kanban.ParseStatus(newStatusStr)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if kanban.IsWithdrawal(newStatus) {
		return nil, &ValidationError{Msg: "only the applicant can withdraw an application"}
	}

	app, err := s.store.FetchApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if employerID == "" || app.EmployerID != employerID {
		return nil, ErrNotFound
	}
	return s.moveApplication(ctx, app, newStatus)
}

// WithdrawApplication lets the applicant pull out of a non-terminal
// application.
func (s *Service) WithdrawApplication(ctx context.Context, seekerID, appID string) (*model.Application, error) {
	app, err := s.store.FetchApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if seekerID == "" || app.ApplicantID != seekerID {
		return nil, ErrNotFound
	}
	return s.moveApplication(ctx, app, model.ApplicationWithdrawn)
}

func (s *Service) moveApplication(ctx context.Context, app *model.Application, to model.ApplicationStatus) (*model.Application, error) {
	if !kanban.IsTransitionAllowed(app.Status, to) {
		return nil, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", app.Status, to),
		}
	}

	updated, err := s.store.UpdateApplicationStatus(ctx, app.ID, app.Status, to)
	if errors.Is(err, port.ErrNotFound) {
		return nil, &StaleError{Entity: "application", ID: app.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("moveApplication: %w", err)
	}

	s.log.Info("application moved",
		zap.String("application_id", app.ID), zap.String("from", string(app.Status)), zap.String("to", string(to)))
	s.publish(ctx, events.Event{
		Type:          events.ApplicationMoved,
		SeekerID:      updated.ApplicantID,
		EmployerID:    updated.EmployerID,
		JobID:         updated.JobID,
		ApplicationID: updated.ID,
		From:          string(app.Status),
		To:            string(to),
	})
	return updated, nil
}

// ListApplications returns applications matching filter, most recently
// updated first. An empty filter is rejected.
func (s *Service) ListApplications(ctx context.Context, filter port.ApplicationFilter) ([]model.Application, error) {
	if filter == (port.ApplicationFilter{}) {
		return nil, &ValidationError{Msg: "an applicant, employer or job id is required"}
	}
	apps, err := s.store.ListApplications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listApplications: %w", err)
	}
	return apps, nil
}
