// Package meeting orchestrates video meeting rooms hosted by a third-party video provider.
package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

// Room statuses
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound = core.NewNotFoundError("meeting room")

	ErrNotJoinable  = core.NewValidationError(errors.New("this meeting is over"))
	ErrNotScheduled = core.NewValidationError(errors.New("only scheduled meetings can be cancelled"))
	ErrAlreadyEnded = core.NewValidationError(errors.New("this meeting has already ended"))
	ErrNotHost      = core.NewForbiddenError("only the host can manage this meeting")
)

type Room struct {
	ID              string    `json:"id" db:"id"`
	OrgID           string    `json:"-" db:"org_id"`
	HostID          string    `json:"host_id" db:"host_id"`
	Title           string    `json:"title" db:"title"`
	ProviderName    string    `json:"provider_name" db:"provider_name"`
	URL             string    `json:"url" db:"url"`
	Status          string    `json:"status" db:"status"`
	ScheduledFor    time.Time `json:"scheduled_for" db:"scheduled_for"`
	MaxParticipants int       `json:"max_participants" db:"max_participants"`
	StartedAt       null.Time `json:"started_at" db:"started_at"`
	EndedAt         null.Time `json:"ended_at" db:"ended_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type NewRoom struct {
	Title           string    `json:"title" validate:"required,max=200"`
	ScheduledFor    time.Time `json:"scheduled_for"`
	MaxParticipants int       `json:"max_participants" validate:"min=0,max=1000"`
}

func (nr *NewRoom) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	return validate.Struct(nr)
}

type JoinInfo struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IsOwner   bool      `json:"is_owner"`
}

type (
	// ProviderRoom is a room created on the video provider.
	ProviderRoom struct {
		Name string
		URL  string
	}

	RoomParams struct {
		MaxParticipants int
		ExpiresAt       time.Time
	}

	TokenParams struct {
		RoomName  string
		UserName  string
		UserID    string
		IsOwner   bool
		ExpiresAt time.Time
	}

	Provider interface {
		Name() string
		CreateRoom(ctx context.Context, params RoomParams) (ProviderRoom, error)
		DeleteRoom(ctx context.Context, name string) error
		CreateToken(ctx context.Context, params TokenParams) (string, error)
	}

	Repository interface {
		CreateRoom(ctx context.Context, r Room, exec ...core.DBExecutor) (Room, error)
		UpdateRoom(ctx context.Context, r Room, exec ...core.DBExecutor) (Room, error)
		GetRoom(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Room, error)
		// QueryRooms filters on status when not empty, soonest first.
		QueryRooms(ctx context.Context, orgID, status string, exec ...core.DBExecutor) ([]Room, error)
	}

	Service interface {
		Create(ctx context.Context, host user.User, nr NewRoom) (Room, error)
		Join(ctx context.Context, usr user.User, id string) (JoinInfo, error)
		End(ctx context.Context, usr user.User, id string) (Room, error)
		Cancel(ctx context.Context, usr user.User, id string) (Room, error)
		Get(ctx context.Context, orgID, id string) (Room, error)
		Query(ctx context.Context, orgID, status string) ([]Room, error)
	}

	service struct {
		repo     Repository
		provider Provider
		roomTTL  time.Duration
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, provider Provider, conf *core.Config, logger core.Logger) Service {
	ttl := conf.Video.RoomTTL
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &service{
		repo:     repo,
		provider: provider,
		roomTTL:  ttl,
		logger:   logger,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// providerRoomName is the room name of the provider, the last path segment of its URL.
func providerRoomName(r Room) string {
	for i := len(r.URL) - 1; i >= 0; i-- {
		if r.URL[i] == '/' {
			return r.URL[i+1:]
		}
	}
	return r.URL
}

func (svc *service) canManage(usr user.User, r Room) bool {
	return r.HostID == usr.ID || usr.IsAdmin()
}

// Create opens the provider room first; nothing is stored when the provider fails.
func (svc *service) Create(ctx context.Context, host user.User, nr NewRoom) (Room, error) {
	now := svc.nowFunc()
	if nr.ScheduledFor.IsZero() || nr.ScheduledFor.Before(now) {
		nr.ScheduledFor = now
	}

	pr, err := svc.provider.CreateRoom(ctx, RoomParams{
		MaxParticipants: nr.MaxParticipants,
		ExpiresAt:       nr.ScheduledFor.Add(svc.roomTTL),
	})
	if err != nil {
		return Room{}, core.NewUpstreamError("video provider", err)
	}

	r, err := svc.repo.CreateRoom(ctx, Room{
		OrgID:           host.OrgID,
		HostID:          host.ID,
		Title:           nr.Title,
		ProviderName:    svc.provider.Name(),
		URL:             pr.URL,
		Status:          StatusScheduled,
		ScheduledFor:    nr.ScheduledFor.UTC(),
		MaxParticipants: nr.MaxParticipants,
		CreatedAt:       now,
	})
	return r, errors.Wrap(err, "saving meeting room")
}

// Join returns a meeting token for usr. The host joining a scheduled room makes it live.
func (svc *service) Join(ctx context.Context, usr user.User, id string) (JoinInfo, error) {
	r, err := svc.repo.GetRoom(ctx, usr.OrgID, id)
	if err != nil {
		return JoinInfo{}, err
	}
	if r.Status != StatusScheduled && r.Status != StatusLive {
		return JoinInfo{}, ErrNotJoinable
	}

	owner := svc.canManage(usr, r)
	expiresAt := r.ScheduledFor.Add(svc.roomTTL)
	if now := svc.nowFunc(); expiresAt.Before(now) {
		expiresAt = now.Add(svc.roomTTL)
	}
	name := usr.Name
	if name == "" {
		name = usr.Username
	}
	token, err := svc.provider.CreateToken(ctx, TokenParams{
		RoomName:  providerRoomName(r),
		UserName:  name,
		UserID:    usr.ID,
		IsOwner:   owner,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return JoinInfo{}, core.NewUpstreamError("video provider", err)
	}

	if r.Status == StatusScheduled && r.HostID == usr.ID {
		r.Status = StatusLive
		r.StartedAt = null.TimeFrom(svc.nowFunc())
		if _, err := svc.repo.UpdateRoom(ctx, r); err != nil {
			return JoinInfo{}, errors.Wrap(err, "starting meeting")
		}
	}
	return JoinInfo{URL: r.URL, Token: token, ExpiresAt: expiresAt, IsOwner: owner}, nil
}

// End closes the room; a provider failure to delete it is only logged.
func (svc *service) End(ctx context.Context, usr user.User, id string) (Room, error) {
	r, err := svc.repo.GetRoom(ctx, usr.OrgID, id)
	if err != nil {
		return Room{}, err
	}
	if !svc.canManage(usr, r) {
		return Room{}, ErrNotHost
	}
	if r.Status == StatusEnded || r.Status == StatusCancelled {
		return Room{}, ErrAlreadyEnded
	}

	if err := svc.provider.DeleteRoom(ctx, providerRoomName(r)); err != nil {
		svc.logger.Error(fmt.Sprintf("deleting provider room of meeting %s: %v", r.ID, err), err, usr)
	}
	r.Status = StatusEnded
	r.EndedAt = null.TimeFrom(svc.nowFunc())
	r, err = svc.repo.UpdateRoom(ctx, r)
	return r, errors.Wrap(err, "ending meeting")
}

func (svc *service) Cancel(ctx context.Context, usr user.User, id string) (Room, error) {
	r, err := svc.repo.GetRoom(ctx, usr.OrgID, id)
	if err != nil {
		return Room{}, err
	}
	if !svc.canManage(usr, r) {
		return Room{}, ErrNotHost
	}
	if r.Status != StatusScheduled {
		return Room{}, ErrNotScheduled
	}

	if err := svc.provider.DeleteRoom(ctx, providerRoomName(r)); err != nil {
		svc.logger.Error(fmt.Sprintf("deleting provider room of meeting %s: %v", r.ID, err), err, usr)
	}
	r.Status = StatusCancelled
	r.EndedAt = null.TimeFrom(svc.nowFunc())
	r, err = svc.repo.UpdateRoom(ctx, r)
	return r, errors.Wrap(err, "cancelling meeting")
}

func (svc *service) Get(ctx context.Context, orgID, id string) (Room, error) {
	return svc.repo.GetRoom(ctx, orgID, id)
}

func (svc *service) Query(ctx context.Context, orgID, status string) ([]Room, error) {
	rooms, err := svc.repo.QueryRooms(ctx, orgID, core.CleanString(status, true /* lower */))
	return rooms, errors.Wrap(err, "querying meetings")
}
