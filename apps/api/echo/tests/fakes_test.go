package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
)

// Payment processor

const webhookSignature = "t=1,v1=valid"

type fakeGateway struct {
	mu        sync.Mutex
	customers map[string]billing.GatewayCustomer // by email
	seq       int
}

var _ billing.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{customers: make(map[string]billing.GatewayCustomer)}
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers = make(map[string]billing.GatewayCustomer)
	g.seq = 0
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *fakeGateway) FindCustomerByEmail(_ context.Context, email string) (billing.GatewayCustomer, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[email]
	return c, ok, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email, _ string, _ map[string]string) (billing.GatewayCustomer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := billing.GatewayCustomer{ID: g.nextID("cus"), Email: email}
	g.customers[email] = c
	return c, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, _ billing.SubscriptionParams) (billing.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return billing.GatewaySubscription{
		ID:               g.nextID("sub"),
		Status:           "incomplete",
		LatestInvoiceID:  g.nextID("in"),
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	}, nil
}

func (g *fakeGateway) GetInvoice(_ context.Context, id string) (billing.GatewayInvoice, error) {
	return billing.GatewayInvoice{
		ID:                        id,
		PaymentIntentID:           "pi_" + id,
		PaymentIntentClientSecret: "secret_" + id,
		AmountDue:                 1500,
		Currency:                  "usd",
	}, nil
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, params billing.PaymentIntentParams) (billing.GatewayPaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("pi")
	return billing.GatewayPaymentIntent{ID: id, ClientSecret: "secret_" + id, Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id string, atPeriodEnd bool) (billing.GatewaySubscription, error) {
	status := "canceled"
	if atPeriodEnd {
		status = "active"
	}
	return billing.GatewaySubscription{ID: id, Status: status, CancelAtPeriodEnd: atPeriodEnd}, nil
}

// ParseWebhook accepts JSON encoded billing.Event payloads signed with webhookSignature.
func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	if signature != webhookSignature {
		return billing.Event{}, errors.New("no signatures found matching the expected signature")
	}
	var evt billing.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return billing.Event{}, err
	}
	return evt, nil
}

// Video provider

type fakeProvider struct {
	mu      sync.Mutex
	rooms   map[string]bool
	deleted []string
}

var _ meeting.Provider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{rooms: make(map[string]bool)}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateRoom(_ context.Context, _ meeting.RoomParams) (meeting.ProviderRoom, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := "room-" + uuid.New().String()[:8]
	p.rooms[name] = true
	return meeting.ProviderRoom{Name: name, URL: "https://video.test/" + name}, nil
}

func (p *fakeProvider) DeleteRoom(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, name)
	p.deleted = append(p.deleted, name)
	return nil
}

func (p *fakeProvider) CreateToken(_ context.Context, params meeting.TokenParams) (string, error) {
	return fmt.Sprintf("tok-%s-%s-%t", params.RoomName, params.UserID, params.IsOwner), nil
}

// Blob storage

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (s *fakeStorage) reset() {
	s.mu.Lock()
	s.blobs = make(map[string][]byte)
	s.mu.Unlock()
}

func (s *fakeStorage) Upload(_ context.Context, name, _ string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.blobs[name] = b
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) Download(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, errors.New("BlobNotFound")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.blobs, name)
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/files/%s?se=%d", name, int(ttl.Seconds())), nil
}

func (s *fakeStorage) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	return ok
}

// fakeTrimmer copies the input untouched.
type fakeTrimmer struct{}

func (fakeTrimmer) Trim(_ context.Context, input, output string, _, _ time.Duration) error {
	b, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, b, 0o600)
}

// Generic tables: a single "notes" table scoped by org_id.

type fakeTableRepo struct {
	mu   sync.Mutex
	rows []table.Row
}

var _ table.Repository = (*fakeTableRepo)(nil)

func newFakeTableRepo() *fakeTableRepo { return &fakeTableRepo{} }

func (repo *fakeTableRepo) reset() {
	repo.mu.Lock()
	repo.rows = nil
	repo.mu.Unlock()
}

func (repo *fakeTableRepo) IntrospectColumns(_ context.Context, tbl string, _ ...core.DBExecutor) ([]table.Column, error) {
	if tbl != "notes" {
		return nil, nil
	}
	return []table.Column{
		{Name: "id", DataType: "uuid", Default: null.StringFrom("gen_random_uuid()"), Position: 1},
		{Name: "org_id", DataType: "uuid", Position: 2},
		{Name: "title", DataType: "text", Position: 3},
		{Name: "pinned", DataType: "boolean", Nullable: true, Position: 4},
	}, nil
}

func (repo *fakeTableRepo) IntrospectPrimaryKey(context.Context, string, ...core.DBExecutor) ([]string, error) {
	return []string{"id"}, nil
}

func (repo *fakeTableRepo) IntrospectForeignKeys(context.Context, string, ...core.DBExecutor) ([]table.ForeignKey, error) {
	return nil, nil
}

func inScope(row table.Row, scope *table.Scope) bool {
	return scope == nil || fmt.Sprint(row[scope.Column]) == scope.Value
}

func copyRow(row table.Row) table.Row {
	cp := make(table.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}

func (repo *fakeTableRepo) QueryRows(_ context.Context, _ table.Schema, q table.RowQuery, _ ...core.DBExecutor) ([]table.Row, int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	matches := make([]table.Row, 0)
	for _, row := range repo.rows {
		if !inScope(row, q.Scope) {
			continue
		}
		ok := true
		for col, val := range q.Filters {
			if fmt.Sprint(row[col]) != val {
				ok = false
			}
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(fmt.Sprint(row["title"])), strings.ToLower(q.Search)) {
			ok = false
		}
		if ok {
			matches = append(matches, copyRow(row))
		}
	}

	total := len(matches)
	start := int(q.Offset)
	if start > total {
		start = total
	}
	end := start + int(q.Limit)
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (repo *fakeTableRepo) find(pk string, scope *table.Scope) int {
	for i, row := range repo.rows {
		if fmt.Sprint(row["id"]) == pk && inScope(row, scope) {
			return i
		}
	}
	return -1
}

func (repo *fakeTableRepo) GetRow(_ context.Context, _ table.Schema, pk string, scope *table.Scope, _ ...core.DBExecutor) (table.Row, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if i := repo.find(pk, scope); i >= 0 {
		return copyRow(repo.rows[i]), nil
	}
	return nil, table.ErrRowNotFound
}

func (repo *fakeTableRepo) InsertRow(_ context.Context, _ table.Schema, row table.Row, _ ...core.DBExecutor) (table.Row, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	row = copyRow(row)
	row["id"] = uuid.New().String()
	if _, ok := row["pinned"]; !ok {
		row["pinned"] = nil
	}
	repo.rows = append(repo.rows, row)
	return copyRow(row), nil
}

func (repo *fakeTableRepo) UpdateRow(_ context.Context, _ table.Schema, pk string, scope *table.Scope, row table.Row, _ ...core.DBExecutor) (table.Row, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	i := repo.find(pk, scope)
	if i < 0 {
		return nil, table.ErrRowNotFound
	}
	for k, v := range row {
		repo.rows[i][k] = v
	}
	return copyRow(repo.rows[i]), nil
}

func (repo *fakeTableRepo) DeleteRows(_ context.Context, _ table.Schema, pks []string, scope *table.Scope, _ ...core.DBExecutor) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	n := 0
	for _, pk := range pks {
		if i := repo.find(pk, scope); i >= 0 {
			repo.rows = append(repo.rows[:i], repo.rows[i+1:]...)
			n++
		}
	}
	return n, nil
}

func (repo *fakeTableRepo) QueryOptions(context.Context, table.Schema, string, string, *table.Scope, string, uint64, ...core.DBExecutor) ([]table.Option, error) {
	return []table.Option{}, nil
}
