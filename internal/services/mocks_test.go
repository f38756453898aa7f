package services

import (
	"strings"
	"time"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is a shared in-memory backing for the mock repositories. It keeps
// the same uniqueness and conditional-update semantics the SQL layer relies
// on, so transition races can be simulated in tests.
type memStore struct {
	qrCodes   map[uuid.UUID]*models.QrCode
	attendees map[uuid.UUID]*models.EventAttendee
	events    map[uuid.UUID]*models.Event
	campaigns map[uuid.UUID]*models.Campaign
	personas  map[uuid.UUID]*models.Persona
	history   []*models.BonusPointHistory
	users     map[uuid.UUID]*models.User
}

func newMemStore() *memStore {
	return &memStore{
		qrCodes:   make(map[uuid.UUID]*models.QrCode),
		attendees: make(map[uuid.UUID]*models.EventAttendee),
		events:    make(map[uuid.UUID]*models.Event),
		campaigns: make(map[uuid.UUID]*models.Campaign),
		personas:  make(map[uuid.UUID]*models.Persona),
		users:     make(map[uuid.UUID]*models.User),
	}
}

// newTestRepo builds a Repository over the in-memory store. The nil database
// makes WithTx run its callback directly.
func newTestRepo() (*repositories.Repository, *memStore) {
	store := newMemStore()
	repo := &repositories.Repository{
		QrCodes:   &memQrCodeRepo{store},
		Attendees: &memAttendeeRepo{store},
		Events:    &memEventRepo{store},
		Personas:  &memPersonaRepo{store},
		History:   &memHistoryRepo{store},
		Users:     &memUserRepo{store},
	}
	return repo, store
}

// Fixture helpers.

func (m *memStore) addCampaign() *models.Campaign {
	c := &models.Campaign{ID: uuid.New(), Name: "Campaign", IsActive: true}
	m.campaigns[c.ID] = c
	return c
}

func (m *memStore) addEvent(campaignID uuid.UUID) *models.Event {
	e := &models.Event{
		ID:                     uuid.New(),
		CampaignID:             campaignID,
		Detail:                 "Town hall",
		StartsAt:               time.Now().Add(-2 * time.Hour),
		GracePeriodHours:       1,
		BonusPointsForAttendee: 50,
		BonusPointsForLeader:   10,
	}
	m.events[e.ID] = e
	return e
}

func (m *memStore) addPersona(universe string) *models.Persona {
	p := &models.Persona{
		ID:           uuid.New(),
		Name:         "Persona " + uuid.NewString()[:8],
		Cedula:       uuid.NewString()[:10],
		UniverseType: universe,
		IsLeader:     universe == models.UniverseLeader,
	}
	m.personas[p.ID] = p
	return p
}

func (m *memStore) addQrCode(campaignID uuid.UUID, eventID *uuid.UUID, qrType, code string, owner *uuid.UUID) *models.QrCode {
	qr := &models.QrCode{
		ID:             uuid.New(),
		CampaignID:     campaignID,
		EventID:        eventID,
		Type:           qrType,
		Code:           code,
		OwnerPersonaID: owner,
		Active:         true,
	}
	m.qrCodes[qr.ID] = qr
	return qr
}

func (m *memStore) findAttendee(eventID, personaID uuid.UUID) *models.EventAttendee {
	for _, a := range m.attendees {
		if a.EventID == eventID && a.PersonaID == personaID {
			return a
		}
	}
	return nil
}

// QR code repo

type memQrCodeRepo struct{ store *memStore }

func (r *memQrCodeRepo) Create(qr *models.QrCode) error {
	for _, existing := range r.store.qrCodes {
		if existing.Code == qr.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *qr
	r.store.qrCodes[qr.ID] = &cp
	return nil
}

func (r *memQrCodeRepo) GetByID(id uuid.UUID) (*models.QrCode, error) {
	qr, ok := r.store.qrCodes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *qr
	return &cp, nil
}

func (r *memQrCodeRepo) GetByCode(code string) (*models.QrCode, error) {
	for _, qr := range r.store.qrCodes {
		if qr.Code == code {
			cp := *qr
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memQrCodeRepo) IncrementScanCount(id uuid.UUID) error {
	qr, ok := r.store.qrCodes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	qr.ScanCount++
	return nil
}

func (r *memQrCodeRepo) UpdateImagePath(id uuid.UUID, path string) error {
	qr, ok := r.store.qrCodes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	qr.ImagePath = path
	return nil
}

func (r *memQrCodeRepo) Deactivate(id uuid.UUID) error {
	qr, ok := r.store.qrCodes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	qr.Active = false
	return nil
}

func (r *memQrCodeRepo) DeactivateEventCodes(eventID uuid.UUID) (int64, error) {
	var n int64
	for _, qr := range r.store.qrCodes {
		if qr.EventID != nil && *qr.EventID == eventID && qr.Active {
			qr.Active = false
			n++
		}
	}
	return n, nil
}

func (r *memQrCodeRepo) SetCampaignTypeActive(campaignID uuid.UUID, qrType string, active bool) (int64, error) {
	var n int64
	for _, qr := range r.store.qrCodes {
		if qr.CampaignID == campaignID && qr.Type == qrType && qr.Active != active {
			qr.Active = active
			n++
		}
	}
	return n, nil
}

func (r *memQrCodeRepo) FindEventCode(eventID uuid.UUID, qrType string, ownerPersonaID *uuid.UUID) (*models.QrCode, error) {
	for _, qr := range r.store.qrCodes {
		if qr.EventID == nil || *qr.EventID != eventID || qr.Type != qrType || !qr.Active {
			continue
		}
		if ownerPersonaID == nil && qr.OwnerPersonaID == nil {
			cp := *qr
			return &cp, nil
		}
		if ownerPersonaID != nil && qr.OwnerPersonaID != nil && *qr.OwnerPersonaID == *ownerPersonaID {
			cp := *qr
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memQrCodeRepo) FindCampaignCode(campaignID uuid.UUID, qrType string, ownerPersonaID uuid.UUID) (*models.QrCode, error) {
	for _, qr := range r.store.qrCodes {
		if qr.CampaignID == campaignID && qr.EventID == nil && qr.Type == qrType &&
			qr.OwnerPersonaID != nil && *qr.OwnerPersonaID == ownerPersonaID && qr.Active {
			cp := *qr
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memQrCodeRepo) ListCampaignCodes(campaignID uuid.UUID, qrType string) ([]models.QrCode, error) {
	var out []models.QrCode
	for _, qr := range r.store.qrCodes {
		if qr.CampaignID == campaignID && qr.EventID == nil && qr.Type == qrType {
			out = append(out, *qr)
		}
	}
	return out, nil
}

// Attendee repo

type memAttendeeRepo struct{ store *memStore }

func (r *memAttendeeRepo) Create(a *models.EventAttendee) error {
	if r.store.findAttendee(a.EventID, a.PersonaID) != nil {
		return gorm.ErrDuplicatedKey
	}
	cp := *a
	r.store.attendees[a.ID] = &cp
	return nil
}

func (r *memAttendeeRepo) Get(eventID, personaID uuid.UUID) (*models.EventAttendee, error) {
	a := r.store.findAttendee(eventID, personaID)
	if a == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAttendeeRepo) MarkEntered(eventID, personaID uuid.UUID, at time.Time) (bool, error) {
	a := r.store.findAttendee(eventID, personaID)
	if a == nil || a.Status != models.AttendanceRegistered || a.EnteredAt != nil {
		return false, nil
	}
	entered := at
	a.Status = models.AttendanceEntered
	a.EnteredAt = &entered
	return true, nil
}

func (r *memAttendeeRepo) MarkExited(eventID, personaID uuid.UUID, at time.Time, durationMinutes int) (bool, error) {
	a := r.store.findAttendee(eventID, personaID)
	if a == nil || a.Status != models.AttendanceEntered || a.ExitedAt != nil {
		return false, nil
	}
	exited := at
	a.Status = models.AttendanceCompleted
	a.ExitedAt = &exited
	a.DurationMinutes = durationMinutes
	return true, nil
}

func (r *memAttendeeRepo) ForceCompleteEntered(eventID uuid.UUID, at time.Time, note string) (int64, error) {
	var n int64
	for _, a := range r.store.attendees {
		if a.EventID != eventID || a.Status != models.AttendanceEntered || a.ExitedAt != nil {
			continue
		}
		exited := at
		a.Status = models.AttendanceCompleted
		a.ExitedAt = &exited
		a.SystemClosed = true
		a.Notes = note
		if a.EnteredAt != nil {
			minutes := int(at.Sub(*a.EnteredAt).Minutes())
			if minutes < 0 {
				minutes = 0
			}
			a.DurationMinutes = minutes
		}
		n++
	}
	return n, nil
}

func (r *memAttendeeRepo) ListCompletedUnsettled(eventID uuid.UUID) ([]models.EventAttendee, error) {
	var out []models.EventAttendee
	for _, a := range r.store.attendees {
		if a.EventID == eventID && a.Status == models.AttendanceCompleted && !a.PointsSettled {
			cp := *a
			if p, ok := r.store.personas[a.PersonaID]; ok {
				cp.Persona = *p
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *memAttendeeRepo) CountCompletedByLeader(eventID, leaderID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range r.store.attendees {
		if a.EventID == eventID && a.Status == models.AttendanceCompleted &&
			a.ReferringLeaderID != nil && *a.ReferringLeaderID == leaderID {
			n++
		}
	}
	return n, nil
}

func (r *memAttendeeRepo) SettlePoints(id uuid.UUID, points int) error {
	a, ok := r.store.attendees[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.PointsAwarded = points
	a.PointsSettled = true
	return nil
}

func (r *memAttendeeRepo) ResetPoints(eventID uuid.UUID) error {
	for _, a := range r.store.attendees {
		if a.EventID == eventID {
			a.PointsAwarded = 0
			a.PointsSettled = false
		}
	}
	return nil
}

func (r *memAttendeeRepo) ListByEvent(eventID uuid.UUID, offset, limit int) ([]models.EventAttendee, int64, error) {
	var out []models.EventAttendee
	for _, a := range r.store.attendees {
		if a.EventID == eventID {
			cp := *a
			if p, ok := r.store.personas[a.PersonaID]; ok {
				cp.Persona = *p
			}
			out = append(out, cp)
		}
	}
	return out, int64(len(out)), nil
}

// Event repo

type memEventRepo struct{ store *memStore }

func (r *memEventRepo) Create(event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	cp := *event
	r.store.events[event.ID] = &cp
	return nil
}

func (r *memEventRepo) GetByID(id uuid.UUID) (*models.Event, error) {
	e, ok := r.store.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memEventRepo) GetByIDForUpdate(id uuid.UUID) (*models.Event, error) {
	return r.GetByID(id)
}

func (r *memEventRepo) ListByCampaign(campaignID uuid.UUID) ([]models.Event, error) {
	var out []models.Event
	for _, e := range r.store.events {
		if e.CampaignID == campaignID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memEventRepo) MarkEnded(id uuid.UUID, at time.Time) (bool, error) {
	e, ok := r.store.events[id]
	if !ok || e.EndedAt != nil {
		return false, nil
	}
	ended := at
	e.EndedAt = &ended
	return true, nil
}

func (r *memEventRepo) SetAutoCloseScheduled(id uuid.UUID, scheduled bool) error {
	e, ok := r.store.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.AutoCloseScheduled = scheduled
	return nil
}

func (r *memEventRepo) SetPointsDistributionScheduled(id uuid.UUID, scheduled bool) error {
	e, ok := r.store.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.PointsDistributionScheduled = scheduled
	return nil
}

func (r *memEventRepo) SetPointsDistributed(id uuid.UUID, distributed bool) error {
	e, ok := r.store.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.PointsDistributed = distributed
	return nil
}

func (r *memEventRepo) CreateCampaign(campaign *models.Campaign) error {
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	cp := *campaign
	r.store.campaigns[campaign.ID] = &cp
	return nil
}

func (r *memEventRepo) GetCampaignByID(id uuid.UUID) (*models.Campaign, error) {
	c, ok := r.store.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

// Persona repo

type memPersonaRepo struct{ store *memStore }

func (r *memPersonaRepo) Create(persona *models.Persona) error {
	for _, p := range r.store.personas {
		if p.Cedula == persona.Cedula {
			return gorm.ErrDuplicatedKey
		}
	}
	if persona.ID == uuid.Nil {
		persona.ID = uuid.New()
	}
	cp := *persona
	r.store.personas[persona.ID] = &cp
	return nil
}

func (r *memPersonaRepo) GetByID(id uuid.UUID) (*models.Persona, error) {
	p, ok := r.store.personas[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPersonaRepo) FindByCedulaOrPhone(cedula, phone string) (*models.Persona, error) {
	for _, p := range r.store.personas {
		if (cedula != "" && p.Cedula == cedula) || (phone != "" && p.Phone == phone) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPersonaRepo) ListByUniverse(universeType string) ([]models.Persona, error) {
	var out []models.Persona
	for _, p := range r.store.personas {
		if p.UniverseType == universeType {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPersonaRepo) IncrementBalance(id uuid.UUID, delta int) error {
	p, ok := r.store.personas[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.LoyaltyBalance += delta
	return nil
}

// History repo

type memHistoryRepo struct{ store *memStore }

func (r *memHistoryRepo) Create(entry *models.BonusPointHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	cp := *entry
	r.store.history = append(r.store.history, &cp)
	return nil
}

func (r *memHistoryRepo) DeleteByEvent(eventID uuid.UUID) (int64, error) {
	var kept []*models.BonusPointHistory
	var n int64
	for _, h := range r.store.history {
		if h.EventID == eventID {
			n++
			continue
		}
		kept = append(kept, h)
	}
	r.store.history = kept
	return n, nil
}

func (r *memHistoryRepo) ListByEvent(eventID uuid.UUID) ([]models.BonusPointHistory, error) {
	var out []models.BonusPointHistory
	for _, h := range r.store.history {
		if h.EventID == eventID {
			out = append(out, *h)
		}
	}
	return out, nil
}

// User repo

type memUserRepo struct{ store *memStore }

func (r *memUserRepo) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range r.store.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) GetUserByID(id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	u, ok := r.store.users[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) CreateUser(user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	r.store.users[user.ID] = &cp
	return nil
}

// Recording task queue and notifier for scheduler tests.

type publishedTask struct {
	msg   TaskMessage
	delay time.Duration
}

type memTaskQueue struct {
	published []publishedTask
	failNext  error
}

func (q *memTaskQueue) PublishDelayed(msg TaskMessage, delay time.Duration) error {
	if q.failNext != nil {
		err := q.failNext
		q.failNext = nil
		return err
	}
	q.published = append(q.published, publishedTask{msg: msg, delay: delay})
	return nil
}

type memNotifier struct {
	events []string
}

func (n *memNotifier) Notify(eventType string, payload interface{}) {
	n.events = append(n.events, eventType)
}
