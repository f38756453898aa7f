package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DistributionSummary reports what a single distribution run awarded.
type DistributionSummary struct {
	EventID             uuid.UUID     `json:"event_id"`
	AttendeesAwarded    int           `json:"attendees_awarded"`
	AttendeePointsTotal int           `json:"attendee_points_total"`
	LeadersAwarded      int           `json:"leaders_awarded"`
	LeaderPointsTotal   int           `json:"leader_points_total"`
	Leaders             []LeaderAward `json:"leaders"`
	Recalculated        bool          `json:"recalculated"`
	DistributedAt       time.Time     `json:"distributed_at"`
}

// LeaderAward is the per-leader line of a distribution run.
type LeaderAward struct {
	LeaderID   uuid.UUID `json:"leader_id"`
	GuestCount int       `json:"guest_count"`
	Points     int       `json:"points"`
}

// LeaderBonusPreview is a dry-run calculation for one leader; nothing is
// persisted.
type LeaderBonusPreview struct {
	LeaderID       uuid.UUID `json:"leader_id"`
	GuestCount     int64     `json:"guest_count"`
	PointsPerGuest int       `json:"points_per_guest"`
	TotalPoints    int       `json:"total_points"`
}

// BonusService awards loyalty points after an event closes: a flat amount per
// completed attendee, scaled by an optional universe multiplier, then a
// per-guest bonus to each referring leader. The whole run is one transaction
// holding a row lock on the event, so concurrent runs serialize and the
// points_distributed flag makes the second one a no-op.
type BonusService struct {
	repo *repositories.Repository

	// Multipliers scales attendee points per persona universe. Universes
	// absent from the map award at 1.0.
	Multipliers map[string]float64
}

func NewBonusService(repo *repositories.Repository) *BonusService {
	return &BonusService{repo: repo}
}

func (s *BonusService) Distribute(eventID uuid.UUID, force bool) (*DistributionSummary, error) {
	summary := &DistributionSummary{EventID: eventID, Recalculated: force}

	err := s.repo.WithTx(func(tx *repositories.Repository) error {
		event, err := tx.Events.GetByIDForUpdate(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewDomainError("event not found", ErrEventNotFound, err)
			}
			return NewDomainError("failed to lock event", ErrDatabase, err)
		}

		if event.EndedAt == nil {
			return NewDomainError("event has not ended yet", ErrEventNotEnded, nil)
		}
		if event.PointsDistributed && !force {
			return NewDomainError("points already distributed for this event", ErrAlreadyDistributed, nil)
		}

		if force {
			if err := s.rollback(tx, event); err != nil {
				return err
			}
		}

		attendees, err := s.awardAttendees(tx, event, summary)
		if err != nil {
			return err
		}
		if err := s.awardLeaders(tx, event, attendees, summary); err != nil {
			return err
		}

		if err := tx.Events.SetPointsDistributed(event.ID, true); err != nil {
			return NewDomainError("failed to mark event distributed", ErrDatabase, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary.DistributedAt = time.Now()
	logrus.WithFields(logrus.Fields{
		"event_id":        eventID,
		"attendees":       summary.AttendeesAwarded,
		"attendee_points": summary.AttendeePointsTotal,
		"leaders":         summary.LeadersAwarded,
		"leader_points":   summary.LeaderPointsTotal,
		"recalculated":    summary.Recalculated,
	}).Info("points distribution completed")

	return summary, nil
}

// rollback undoes a previous distribution so a forced run starts clean: every
// history row for the event is reversed out of the owning persona's balance
// and deleted, and attendee settlement flags are reset.
func (s *BonusService) rollback(tx *repositories.Repository, event *models.Event) error {
	rows, err := tx.History.ListByEvent(event.ID)
	if err != nil {
		return NewDomainError("failed to load point history", ErrDatabase, err)
	}

	reversed := map[uuid.UUID]int{}
	for _, row := range rows {
		reversed[row.PersonaID] += row.Points
	}
	for personaID, points := range reversed {
		if points == 0 {
			continue
		}
		if err := tx.Personas.IncrementBalance(personaID, -points); err != nil {
			return NewDomainError("failed to reverse persona balance", ErrDatabase, err)
		}
	}

	deleted, err := tx.History.DeleteByEvent(event.ID)
	if err != nil {
		return NewDomainError("failed to delete point history", ErrDatabase, err)
	}
	if err := tx.Attendees.ResetPoints(event.ID); err != nil {
		return NewDomainError("failed to reset attendee points", ErrDatabase, err)
	}
	if err := tx.Events.SetPointsDistributed(event.ID, false); err != nil {
		return NewDomainError("failed to clear distributed flag", ErrDatabase, err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"history_rows": deleted,
		"personas":     len(reversed),
	}).Warn("previous distribution rolled back for recalculation")
	return nil
}

func (s *BonusService) awardAttendees(tx *repositories.Repository, event *models.Event, summary *DistributionSummary) ([]models.EventAttendee, error) {
	attendees, err := tx.Attendees.ListCompletedUnsettled(event.ID)
	if err != nil {
		return nil, NewDomainError("failed to list completed attendees", ErrDatabase, err)
	}

	for i := range attendees {
		att := &attendees[i]
		points := s.attendeePoints(event.BonusPointsForAttendee, att.Persona.UniverseType)

		history := &models.BonusPointHistory{
			PersonaID:   att.PersonaID,
			EventID:     event.ID,
			Kind:        models.PointKindAttendance,
			Points:      points,
			Description: fmt.Sprintf("Attendance at event: %s", event.Detail),
		}
		if err := tx.History.Create(history); err != nil {
			return nil, NewDomainError("failed to record attendance points", ErrDatabase, err)
		}
		if points > 0 {
			if err := tx.Personas.IncrementBalance(att.PersonaID, points); err != nil {
				return nil, NewDomainError("failed to credit attendee balance", ErrDatabase, err)
			}
		}
		if err := tx.Attendees.SettlePoints(att.ID, points); err != nil {
			return nil, NewDomainError("failed to settle attendee record", ErrDatabase, err)
		}

		summary.AttendeesAwarded++
		summary.AttendeePointsTotal += points
	}
	return attendees, nil
}

func (s *BonusService) awardLeaders(tx *repositories.Repository, event *models.Event, attendees []models.EventAttendee, summary *DistributionSummary) error {
	// Group completed guests by their referring leader. Attribution was
	// fixed at record creation, so this grouping is stable across reruns.
	guests := map[uuid.UUID][]uuid.UUID{}
	for _, att := range attendees {
		if att.ReferringLeaderID == nil {
			continue
		}
		guests[*att.ReferringLeaderID] = append(guests[*att.ReferringLeaderID], att.PersonaID)
	}

	for leaderID, guestIDs := range guests {
		points := len(guestIDs) * event.BonusPointsForLeader

		meta, err := json.Marshal(map[string]interface{}{
			"guest_count":      len(guestIDs),
			"points_per_guest": event.BonusPointsForLeader,
			"guest_ids":        guestIDs,
		})
		if err != nil {
			return NewDomainError("failed to encode leader bonus metadata", ErrIntegrity, err)
		}

		history := &models.BonusPointHistory{
			PersonaID:   leaderID,
			EventID:     event.ID,
			Kind:        models.PointKindLeaderBonus,
			Points:      points,
			Description: fmt.Sprintf("Leader bonus for %d guests at event: %s", len(guestIDs), event.Detail),
			Metadata:    string(meta),
		}
		if err := tx.History.Create(history); err != nil {
			return NewDomainError("failed to record leader bonus", ErrDatabase, err)
		}
		if points > 0 {
			if err := tx.Personas.IncrementBalance(leaderID, points); err != nil {
				return NewDomainError("failed to credit leader balance", ErrDatabase, err)
			}
		}

		summary.LeadersAwarded++
		summary.LeaderPointsTotal += points
		summary.Leaders = append(summary.Leaders, LeaderAward{
			LeaderID:   leaderID,
			GuestCount: len(guestIDs),
			Points:     points,
		})
	}
	return nil
}

// LeaderPreview computes what a leader would receive if distribution ran now.
func (s *BonusService) LeaderPreview(eventID, leaderID uuid.UUID) (*LeaderBonusPreview, error) {
	event, err := s.repo.Events.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("event not found", ErrEventNotFound, err)
		}
		return nil, NewDomainError("failed to load event", ErrDatabase, err)
	}

	count, err := s.repo.Attendees.CountCompletedByLeader(eventID, leaderID)
	if err != nil {
		return nil, NewDomainError("failed to count leader guests", ErrDatabase, err)
	}

	return &LeaderBonusPreview{
		LeaderID:       leaderID,
		GuestCount:     count,
		PointsPerGuest: event.BonusPointsForLeader,
		TotalPoints:    int(count) * event.BonusPointsForLeader,
	}, nil
}

// attendeePoints applies the universe multiplier, rounding half-up.
func (s *BonusService) attendeePoints(base int, universe string) int {
	mult, ok := s.Multipliers[universe]
	if !ok || mult <= 0 {
		return base
	}
	return int(math.Floor(float64(base)*mult + 0.5))
}
