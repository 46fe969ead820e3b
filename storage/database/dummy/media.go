package dummydb

import (
	"context"
	"sort"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
)

type meetingRepository struct {
	db *DB
}

var _ meeting.Repository = (*meetingRepository)(nil) // interface compliance check

func NewMeetingRepository(db *DB) meeting.Repository {
	return &meetingRepository{db: db}
}

func (repo *meetingRepository) CreateRoom(_ context.Context, r meeting.Room, _ ...core.DBExecutor) (meeting.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r.ID = newID()
	repo.db.rooms[r.ID] = r
	return r, nil
}

func (repo *meetingRepository) UpdateRoom(_ context.Context, r meeting.Room, _ ...core.DBExecutor) (meeting.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rooms[r.ID]; !ok {
		return meeting.Room{}, meeting.ErrNotFound
	}
	repo.db.rooms[r.ID] = r
	return r, nil
}

func (repo *meetingRepository) GetRoom(_ context.Context, orgID, id string, _ ...core.DBExecutor) (meeting.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.rooms[id]; ok && r.OrgID == orgID {
		return r, nil
	}
	return meeting.Room{}, meeting.ErrNotFound
}

func (repo *meetingRepository) QueryRooms(_ context.Context, orgID, status string, _ ...core.DBExecutor) ([]meeting.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rooms := make([]meeting.Room, 0)
	for _, r := range repo.db.rooms {
		if r.OrgID == orgID && (status == "" || r.Status == status) {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ScheduledFor.Before(rooms[j].ScheduledFor) })
	return rooms, nil
}

type fileRepository struct {
	db *DB
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *DB) file.Repository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(_ context.Context, f file.File, _ ...core.DBExecutor) (file.File, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f.ID = newID()
	repo.db.files[f.ID] = f
	return f, nil
}

func (repo *fileRepository) GetFile(_ context.Context, filter file.GetFilter, _ ...core.DBExecutor) (file.File, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.files[filter.ID]; ok && (filter.OrgID == "" || f.OrgID == filter.OrgID) {
		return f, nil
	}
	return file.File{}, file.ErrNotFound
}

func (repo *fileRepository) QueryFiles(_ context.Context, orgID, ownerID string, _ ...core.DBExecutor) ([]file.File, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	files := make([]file.File, 0)
	for _, f := range repo.db.files {
		if f.OrgID == orgID && (ownerID == "" || f.OwnerID == ownerID) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	return files, nil
}

func (repo *fileRepository) DeleteFile(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.files[id]; !ok {
		return file.ErrNotFound
	}
	delete(repo.db.files, id)
	for token, s := range repo.db.shares {
		if s.FileID == id {
			delete(repo.db.shares, token)
		}
	}
	return nil
}

func (repo *fileRepository) CreateShare(_ context.Context, s file.Share, _ ...core.DBExecutor) (file.Share, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = newID()
	repo.db.shares[s.Token] = s
	return s, nil
}

func (repo *fileRepository) GetShare(_ context.Context, token string, _ ...core.DBExecutor) (file.Share, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.shares[token]; ok {
		return s, nil
	}
	return file.Share{}, file.ErrShareNotFound
}
