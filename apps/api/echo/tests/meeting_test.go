package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
	"github.com/onlineimmigrant/move-plan-next-sub025/testutil"
)

func roomName(r meeting.Room) string {
	return r.URL[len("https://video.test/"):]
}

func Test_meetingApi(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	coTeacher := testutil.CreateUser(t, usrRepo, f.org.ID, "Co", "acme_co", "acme.co@test.cd", "pwd", []string{user.RoleTeacher}, true)
	host := getToken(t, f.teacher)

	tests := []httpTest{
		{name: "auth required", path: "/api/meetings", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "empty", path: "/api/meetings", token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/meetings", token: getToken(t, f.student),
			body: marchallObj(t, meeting.NewRoom{Title: "Nope"}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "title required", method: http.MethodPost, path: "/api/meetings", token: host,
			body: marchallObj(t, meeting.NewRoom{}), wantCode: http.StatusBadRequest, wantData: []byte(`{"title":"this field is required"}`),
		},
	}
	runHTTPTests(t, tests)

	create := func(t *testing.T, title string) meeting.Room {
		rec := do(http.MethodPost, "/api/meetings", host, marchallObj(t, meeting.NewRoom{Title: title, MaxParticipants: 10}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var r meeting.Room
		decode(t, rec, &r)
		return r
	}

	room := create(t, "Algebra 101")
	t.Run("created", func(t *testing.T) {
		assert.Equal(t, meeting.StatusScheduled, room.Status)
		assert.Equal(t, f.teacher.ID, room.HostID)
		assert.Equal(t, "fake", room.ProviderName)
		assert.WithinDuration(t, time.Now(), room.ScheduledFor, time.Minute, "past or empty dates are moved to now")
	})

	t.Run("student joins as participant", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/meetings/"+room.ID+"/join", getToken(t, f.student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var info meeting.JoinInfo
		decode(t, rec, &info)
		assert.Equal(t, room.URL, info.URL)
		assert.Equal(t, "tok-"+roomName(room)+"-"+f.student.ID+"-false", info.Token)
		assert.False(t, info.IsOwner)
		assert.True(t, info.ExpiresAt.After(time.Now()))

		rec = do(http.MethodGet, "/api/meetings/"+room.ID, host)
		var r meeting.Room
		decode(t, rec, &r)
		assert.Equal(t, meeting.StatusScheduled, r.Status, "only the host starts the meeting")
	})

	t.Run("host joins as owner and starts the meeting", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/meetings/"+room.ID+"/join", host)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var info meeting.JoinInfo
		decode(t, rec, &info)
		assert.True(t, info.IsOwner)
		assert.Equal(t, "tok-"+roomName(room)+"-"+f.teacher.ID+"-true", info.Token)

		rec = do(http.MethodGet, "/api/meetings?status=LIVE", host)
		var rooms []meeting.Room
		decode(t, rec, &rooms)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
		assert.True(t, rooms[0].StartedAt.Valid)
	})

	t.Run("live meetings cannot be cancelled", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/meetings/"+room.ID+"/cancel", host)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"only scheduled meetings can be cancelled"}`, rec.Body.String())
	})

	tests = []httpTest{
		{name: "other org", path: "/api/meetings/" + room.ID, token: getToken(t, other.teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "meeting room not found"})},
		{name: "other org cannot join", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/join", token: getToken(t, other.student), wantCode: http.StatusNotFound},
		{
			name: "end: not the host", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/end", token: getToken(t, coTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "only the host can manage this meeting"}),
		},
		{name: "end: student", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/end", token: getToken(t, f.student), wantCode: http.StatusForbidden},
		{name: "end", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/end", token: host, wantCode: http.StatusOK},
		{
			name: "end twice", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/end", token: host,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this meeting has already ended"}),
		},
		{
			name: "join ended", method: http.MethodPost, path: "/api/meetings/" + room.ID + "/join", token: getToken(t, f.student),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this meeting is over"}),
		},
	}
	runHTTPTests(t, tests)

	t.Run("provider room is deleted", func(t *testing.T) {
		video.mu.Lock()
		defer video.mu.Unlock()
		assert.Contains(t, video.deleted, roomName(room))
		assert.False(t, video.rooms[roomName(room)])
	})

	t.Run("admins cancel scheduled meetings", func(t *testing.T) {
		later := create(t, "Geometry")
		rec := do(http.MethodPost, "/api/meetings/"+later.ID+"/cancel", getToken(t, f.admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var r meeting.Room
		decode(t, rec, &r)
		assert.Equal(t, meeting.StatusCancelled, r.Status)
		assert.True(t, r.EndedAt.Valid)
	})
}
