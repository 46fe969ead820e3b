package sqlxrepos

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

const (
	orgID  = "5c3b1a4e-8f5d-4a52-9d2f-0a6a1d2e3f40"
	userID = "8d0f5b1e-2c7a-4e9b-b1d3-6f4a2c9e7b10"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUserRepository_GetUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	selectSQL := `SELECT id, org_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login FROM "user"`

	t.Run("by id", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewUserRepository(db)

		rows := sqlmock.NewRows(userColumns).
			AddRow(userID, orgID, "Jane", "janedoe", "jane@x.com", true, "{admin:owner,teacher:}", []byte("hash"), now, now, nil)
		mock.ExpectQuery(q(selectSQL + ` WHERE id = $1 LIMIT 1`)).WithArgs(userID).WillReturnRows(rows)

		usr, err := repo.GetUser(ctx, user.GetFilter{ID: userID})
		require.NoError(t, err)
		assert.Equal(t, userID, usr.ID)
		assert.Equal(t, orgID, usr.OrgID)
		assert.Equal(t, []string{"admin:owner", "teacher:"}, usr.Roles)
		assert.True(t, usr.Active())
		assert.True(t, usr.LastLogin.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by username or email", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(q(selectSQL + ` WHERE (username = $1 OR email = $2) LIMIT 1`)).
			WithArgs("jane@x.com", "jane@x.com").
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "jane@x.com"})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewUserRepository(db)

		_, err := repo.GetUser(ctx, user.GetFilter{ID: "42"})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_CheckUsernameUniqueness(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantErr error
	}{
		{name: "free", rows: sqlmock.NewRows([]string{"username", "email"})},
		{name: "username taken", rows: sqlmock.NewRows([]string{"username", "email"}).AddRow("janedoe", "other@x.com"), wantErr: user.ErrUsernameExists},
		{name: "email taken", rows: sqlmock.NewRows([]string{"username", "email"}).AddRow(nil, "jane@x.com"), wantErr: user.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewUserRepository(db)

			mock.ExpectQuery(q(`SELECT username, email FROM "user" WHERE (username = $1 OR email = $2) AND id NOT IN ($3) LIMIT 1`)).
				WithArgs("janedoe", "jane@x.com", userID).
				WillReturnRows(tt.rows)

			err := repo.CheckUsernameUniqueness(ctx, "janedoe", "jane@x.com", []user.User{{ID: userID}})
			assert.Equal(t, tt.wantErr, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_CreateUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(q(`INSERT INTO "user" (id,org_id,name,username,email,is_active,roles,password_hash,created_at,updated_at,last_login)`)).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "user_email_key"})

	_, err := repo.CreateUser(context.Background(), user.User{OrgID: orgID, Email: "jane@x.com"})
	assert.Equal(t, user.ErrEmailExists, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_QueryUsers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	active := true

	mock.ExpectQuery(q(`FROM "user" WHERE org_id = $1 AND (name ILIKE $2 OR username ILIKE $3 OR email ILIKE $4) AND (EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE $5)) AND (is_active = $6 OR is_active IS NULL) ORDER BY name DESC`)).
		WithArgs(orgID, "%ja%", "%ja%", "%ja%", "admin:%", true).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userID, orgID, "Jane", nil, nil, nil, "{admin:}", nil, nil, nil, nil))

	users, err := repo.QueryUsers(context.Background(), &user.QueryFilter{
		OrgID:    orgID,
		Search:   "ja",
		Roles:    []string{"admin:"},
		IsActive: &active,
	}, []core.DBOrdering{{Field: "name"}, {Field: "password_hash"}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Jane", users[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewSettingRepository(db)

		mock.ExpectExec(q(`INSERT INTO settings (org_id,key,value,is_public,updated_at) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (org_id, key) DO UPDATE`)).
			WithArgs(orgID, "site.title", []byte(`"Acme"`), true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s, err := repo.UpsertSetting(ctx, setting.Setting{OrgID: orgID, Key: "site.title", Value: json.RawMessage(`"Acme"`), IsPublic: true})
		require.NoError(t, err)
		assert.False(t, s.UpdatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete missing", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewSettingRepository(db)

		mock.ExpectExec(q(`DELETE FROM settings WHERE key = $1 AND org_id = $2`)).
			WithArgs("nope", orgID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Equal(t, setting.ErrNotFound, repo.DeleteSetting(ctx, orgID, "nope"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBlogRepository_QueryPosts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM posts WHERE (org_id = $1 AND status = $2 AND $3 = ANY(tags))`)).
		WithArgs(orgID, blog.StatusPublished, "go").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(q(`FROM posts WHERE (org_id = $1 AND status = $2 AND $3 = ANY(tags)) ORDER BY created_at DESC LIMIT 10 OFFSET 10`)).
		WithArgs(orgID, blog.StatusPublished, "go").
		WillReturnRows(sqlmock.NewRows(postColumns).
			AddRow("p1", orgID, nil, "Go tips", "go-tips", "", "<p>hi</p>", blog.StatusPublished, "{go,tips}", 1, now, now, now))

	posts, total, err := repo.QueryPosts(context.Background(), blog.QueryFilter{
		OrgID:      orgID,
		Status:     blog.StatusPublished,
		Tag:        "go",
		Pagination: core.Pagination{Page: 2, PageSize: 10},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, posts, 1)
	assert.Equal(t, []string{"go", "tips"}, posts[0].Tags)
	assert.False(t, posts[0].AuthorID.Valid)
	assert.True(t, posts[0].PublishedAt.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("add recipients skips duplicates", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewCampaignRepository(db)

		mock.ExpectExec(q(`INSERT INTO campaign_recipients (id,campaign_id,email,name,data,status,error,sent_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8),($9,$10,$11,$12,$13,$14,$15,$16) ON CONFLICT (campaign_id, email) DO NOTHING`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.AddRecipients(ctx, "c1", []campaign.Recipient{
			{Email: "a@x.com", Data: map[string]interface{}{"plan": "pro"}},
			{Email: "b@x.com"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recipients decode data", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewCampaignRepository(db)

		mock.ExpectQuery(q(`FROM campaign_recipients WHERE campaign_id = $1 AND status IN ($2) ORDER BY email`)).
			WithArgs("c1", campaign.RecipientPending).
			WillReturnRows(sqlmock.NewRows(recipientColumns).
				AddRow("r1", "c1", "a@x.com", "Ann", []byte(`{"plan":"pro"}`), campaign.RecipientPending, "", nil))

		rcps, err := repo.QueryRecipients(ctx, "c1", []string{campaign.RecipientPending})
		require.NoError(t, err)
		require.Len(t, rcps, 1)
		assert.Equal(t, "pro", rcps[0].Data["plan"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status change only from allowed statuses", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewCampaignRepository(db)
		at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectExec(q(`UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3 AND org_id = $4 AND status IN ($5,$6)`)).
			WithArgs(campaign.StatusSending, at, userID, orgID, campaign.StatusDraft, campaign.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q(`UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3 AND org_id = $4 AND status IN ($5,$6)`)).
			WithArgs(campaign.StatusSending, at, userID, orgID, campaign.StatusDraft, campaign.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 0))

		from := []string{campaign.StatusDraft, campaign.StatusFailed}
		ok, err := repo.SetCampaignStatus(ctx, orgID, userID, campaign.StatusSending, from, at)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetCampaignStatus(ctx, orgID, userID, campaign.StatusSending, from, at)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("template in use", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewCampaignRepository(db)

		mock.ExpectExec(q(`DELETE FROM email_templates`)).
			WillReturnError(&pq.Error{Code: foreignKeyViolation})

		assert.Equal(t, campaign.ErrTemplateInUse, repo.DeleteTemplate(ctx, orgID, userID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQuizRepository_CreateQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("commits question and choices", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewQuizRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(q(`INSERT INTO questions (id,quiz_id,prompt,kind,points,position)`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q(`INSERT INTO choices (id,question_id,label,is_correct,position) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10)`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		qs, err := repo.CreateQuestion(ctx, quiz.Question{
			QuizID: "qz",
			Prompt: "2+2?",
			Kind:   quiz.KindSingle,
			Points: 1,
			Choices: []quiz.Choice{
				{Label: "4", IsCorrect: true},
				{Label: "5"},
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, qs.ID)
		for i, c := range qs.Choices {
			assert.Equal(t, qs.ID, c.QuestionID)
			assert.Equal(t, i, c.Position)
			assert.NotEmpty(t, c.ID)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewQuizRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(q(`INSERT INTO questions`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q(`INSERT INTO choices`)).WillReturnError(errors.New("boom"))
		mock.ExpectRollback()

		_, err := repo.CreateQuestion(ctx, quiz.Question{QuizID: "qz", Choices: []quiz.Choice{{Label: "a"}}})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQuizRepository_GetAttempt(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQuizRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(q(`FROM attempts WHERE id = $1`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(attemptColumns).
			AddRow(userID, "qz", "u1", quiz.StatusSubmitted, now, nil, now, 2, 3, 66, true))
	mock.ExpectQuery(q(`SELECT question_id, choice_ids FROM attempt_answers WHERE attempt_id = $1 ORDER BY question_id`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"question_id", "choice_ids"}).AddRow("q1", "{c1,c2}"))

	a, err := repo.GetAttempt(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 66, a.Percent)
	assert.False(t, a.DeadlineAt.Valid)
	assert.Equal(t, []quiz.Answer{{QuestionID: "q1", ChoiceIDs: []string{"c1", "c2"}}}, a.Answers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func tableSchema() table.Schema {
	return table.Schema{
		Table:      "products",
		PrimaryKey: []string{"id"},
		Columns: []table.Column{
			{Name: "id", DataType: "uuid", Default: null.StringFrom("gen_random_uuid()"), AutoGenerated: true},
			{Name: "org_id", DataType: "uuid"},
			{Name: "name", DataType: "text"},
			{Name: "meta", DataType: "jsonb", Nullable: true},
			{Name: "tags", DataType: "ARRAY", Nullable: true},
		},
	}
}

func TestTableRepository_Introspect(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTableRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(q(`FROM information_schema.columns`)).
		WithArgs("products").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "is_identity", "is_generated", "ordinal_position"}).
			AddRow("id", "uuid", false, "gen_random_uuid()", false, false, 1).
			AddRow("name", "text", false, nil, false, false, 2))
	mock.ExpectQuery(q(`tc.constraint_type = 'PRIMARY KEY'`)).
		WithArgs("products").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(q(`tc.constraint_type = 'FOREIGN KEY'`)).
		WithArgs("products").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "ref_table", "ref_column"}).AddRow("org_id", "organizations", "id"))

	cols, err := repo.IntrospectColumns(ctx, "products")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "gen_random_uuid()", cols[0].Default.String)
	assert.False(t, cols[1].Default.Valid)

	pk, err := repo.IntrospectPrimaryKey(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)

	fks, err := repo.IntrospectForeignKeys(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []table.ForeignKey{{Column: "org_id", RefTable: "organizations", RefColumn: "id"}}, fks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepository_QueryRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTableRepository(db)

	rq := table.RowQuery{
		Scope:         &table.Scope{Column: "org_id", Value: orgID},
		Filters:       map[string]string{"name": "Pro"},
		Search:        "pr",
		SearchColumns: []string{"name"},
		Ordering:      []core.DBOrdering{{Field: "name", Ascending: true}},
		Limit:         25,
	}
	where := `WHERE ("org_id" = $1 AND "name"::text = $2 AND ("name" ILIKE $3))`
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "products" ` + where)).
		WithArgs(orgID, "Pro", "%pr%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q(`SELECT * FROM "products" ` + where + ` ORDER BY "name" ASC LIMIT 25 OFFSET 0`)).
		WithArgs(orgID, "Pro", "%pr%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "meta", "tags"}).
			AddRow([]byte(userID), []byte(orgID), []byte("Pro"), []byte(`{"a":1}`), []byte("{x,y}")))

	rows, total, err := repo.QueryRows(context.Background(), tableSchema(), rq)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, userID, rows[0]["id"])
	assert.Equal(t, "Pro", rows[0]["name"])
	assert.Equal(t, json.RawMessage(`{"a":1}`), rows[0]["meta"])
	assert.Equal(t, []string{"x", "y"}, rows[0]["tags"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepository_Writes(t *testing.T) {
	ctx := context.Background()
	scope := &table.Scope{Column: "org_id", Value: orgID}

	t.Run("insert", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectQuery(q(`INSERT INTO "products" ("meta","name","org_id") VALUES ($1,$2,$3) RETURNING *`)).
			WithArgs(`{"a":1}`, "Pro", orgID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow([]byte(userID), []byte("Pro")))

		row, err := repo.InsertRow(ctx, tableSchema(), table.Row{"name": "Pro", "org_id": orgID, "meta": map[string]interface{}{"a": 1}})
		require.NoError(t, err)
		assert.Equal(t, userID, row["id"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert keeps big integers exact", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)
		s := tableSchema()
		s.Columns = append(s.Columns, table.Column{Name: "stock", DataType: "bigint"})

		mock.ExpectQuery(q(`INSERT INTO "products" ("meta","name","stock") VALUES ($1,$2,$3) RETURNING *`)).
			WithArgs(`{"n":9007199254740993}`, "Pro", "9007199254740993").
			WillReturnRows(sqlmock.NewRows([]string{"id", "stock"}).AddRow([]byte(userID), int64(9007199254740993)))

		row, err := repo.InsertRow(ctx, s, table.Row{
			"name":  "Pro",
			"stock": json.Number("9007199254740993"),
			"meta":  map[string]interface{}{"n": json.Number("9007199254740993")},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(9007199254740993), row["stock"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert conflict", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectQuery(q(`INSERT INTO "products"`)).
			WillReturnError(&pq.Error{Code: uniqueViolation, Detail: "Key (slug)=(pro) already exists."})

		_, err := repo.InsertRow(ctx, tableSchema(), table.Row{"name": "Pro"})
		var conflict *core.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Contains(t, conflict.Error(), "already exists")
	})

	t.Run("insert null violation", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectQuery(q(`INSERT INTO "products"`)).
			WillReturnError(&pq.Error{Code: notNullViolation, Column: "name", Message: "null value in column"})

		_, err := repo.InsertRow(ctx, tableSchema(), table.Row{"org_id": orgID})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "name", verr.Fields[0].Field)
	})

	t.Run("get malformed pk", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectQuery(q(`SELECT * FROM "products" WHERE "id" = $1 AND "org_id" = $2`)).
			WithArgs("nope", orgID).
			WillReturnError(&pq.Error{Code: invalidText})

		_, err := repo.GetRow(ctx, tableSchema(), "nope", scope)
		assert.Equal(t, table.ErrRowNotFound, err)
	})

	t.Run("update", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectQuery(q(`UPDATE "products" SET "name" = $1, "tags" = $2 WHERE "id" = $3 AND "org_id" = $4 RETURNING *`)).
			WithArgs("Max", "{\"a\",\"b\"}", userID, orgID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow([]byte(userID), []byte("Max")))

		row, err := repo.UpdateRow(ctx, tableSchema(), userID, scope, table.Row{"name": "Max", "tags": []interface{}{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, "Max", row["name"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTableRepository(db)

		mock.ExpectExec(q(`DELETE FROM "products" WHERE "id" IN ($1,$2) AND "org_id" = $3`)).
			WithArgs("a", "b", orgID).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.DeleteRows(ctx, tableSchema(), []string{"a", "b"}, scope)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTableRepository_QueryOptions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTableRepository(db)

	schema := table.Schema{Table: "organizations", PrimaryKey: []string{"id"}, Columns: []table.Column{{Name: "id"}, {Name: "name"}}}
	mock.ExpectQuery(q(`SELECT "id" AS value, "name"::text AS label FROM "organizations" WHERE "id" = $1 AND "name"::text ILIKE $2 ORDER BY "name"::text LIMIT 100`)).
		WithArgs(orgID, "%ac%").
		WillReturnRows(sqlmock.NewRows([]string{"value", "label"}).AddRow([]byte(orgID), "Acme"))

	opts, err := repo.QueryOptions(context.Background(), schema, "id", "name", &table.Scope{Column: "id", Value: orgID}, "ac", 100)
	require.NoError(t, err)
	assert.Equal(t, []table.Option{{Value: orgID, Label: "Acme"}}, opts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
