package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
)

var roomColumns = []string{
	"id", "org_id", "host_id", "title", "provider_name", "url", "status",
	"scheduled_for", "max_participants", "started_at", "ended_at", "created_at",
}

type meetingRepository struct {
	base
}

var _ meeting.Repository = (*meetingRepository)(nil) // interface compliance check

func NewMeetingRepository(exec core.DBExecutor) *meetingRepository {
	return &meetingRepository{base{exec: exec}}
}

func (repo meetingRepository) CreateRoom(ctx context.Context, r meeting.Room, exec ...core.DBExecutor) (meeting.Room, error) {
	r.ID = uuid.New().String()
	q := psql.Insert("meeting_rooms").
		Columns(roomColumns...).
		Values(
			r.ID, r.OrgID, r.HostID, r.Title, r.ProviderName, r.URL, r.Status,
			r.ScheduledFor.UTC(), r.MaxParticipants, r.StartedAt, r.EndedAt, r.CreatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return meeting.Room{}, errors.Wrap(err, "inserting meeting room")
	}
	return r, nil
}

func (repo meetingRepository) UpdateRoom(ctx context.Context, r meeting.Room, exec ...core.DBExecutor) (meeting.Room, error) {
	q := psql.Update("meeting_rooms").
		SetMap(map[string]interface{}{
			"title":            r.Title,
			"status":           r.Status,
			"scheduled_for":    r.ScheduledFor.UTC(),
			"max_participants": r.MaxParticipants,
			"started_at":       r.StartedAt,
			"ended_at":         r.EndedAt,
		}).
		Where(sq.Eq{"id": r.ID, "org_id": r.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return meeting.Room{}, errors.Wrap(err, "updating meeting room")
	}
	if n == 0 {
		return meeting.Room{}, meeting.ErrNotFound
	}
	return r, nil
}

func (repo meetingRepository) GetRoom(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (meeting.Room, error) {
	if !validID(id) {
		return meeting.Room{}, meeting.ErrNotFound
	}
	q := psql.Select(roomColumns...).From("meeting_rooms").Where(sq.Eq{"id": id, "org_id": orgID})
	var r meeting.Room
	if err := get(ctx, repo.getExec(exec), &r, q); err != nil {
		return meeting.Room{}, trapNoRows(err, meeting.ErrNotFound, "finding meeting room")
	}
	return r, nil
}

func (repo meetingRepository) QueryRooms(ctx context.Context, orgID, status string, exec ...core.DBExecutor) ([]meeting.Room, error) {
	q := psql.Select(roomColumns...).From("meeting_rooms").Where(sq.Eq{"org_id": orgID}).OrderBy("scheduled_for")
	if status != "" {
		q = q.Where(sq.Eq{"status": status})
	}
	rooms := make([]meeting.Room, 0)
	if err := sel(ctx, repo.getExec(exec), &rooms, q); err != nil {
		return nil, errors.Wrap(err, "querying meeting rooms")
	}
	return rooms, nil
}
