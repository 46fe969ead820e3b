// Package dummydb keeps every repository in memory; used by the API tests and local demos.
package dummydb

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

// DB guards all tables with a single lock.
type DB struct {
	sync.RWMutex

	users    map[string]user.User
	orgs     map[string]org.Organization
	settings map[string]setting.Setting // keyed by org_id/key

	products     map[string]pricing.Product
	plans        map[string]pricing.Plan
	features     map[string]pricing.Feature
	planFeatures map[string]map[string]bool // plan_id -> feature_id set

	customers     map[string]billing.Customer // keyed by user_id
	transactions  map[string]billing.Transaction
	subscriptions map[string]billing.Subscription

	posts     map[string]blog.Post
	quizzes   map[string]quiz.Quiz // questions are stored separately
	questions map[string]quiz.Question
	attempts  map[string]quiz.Attempt

	templates  map[string]campaign.Template
	campaigns  map[string]campaign.Campaign
	recipients map[string]campaign.Recipient

	rooms  map[string]meeting.Room
	files  map[string]file.File
	shares map[string]file.Share // keyed by token
}

func Open() *DB {
	return &DB{
		users:         make(map[string]user.User),
		orgs:          make(map[string]org.Organization),
		settings:      make(map[string]setting.Setting),
		products:      make(map[string]pricing.Product),
		plans:         make(map[string]pricing.Plan),
		features:      make(map[string]pricing.Feature),
		planFeatures:  make(map[string]map[string]bool),
		customers:     make(map[string]billing.Customer),
		transactions:  make(map[string]billing.Transaction),
		subscriptions: make(map[string]billing.Subscription),
		posts:         make(map[string]blog.Post),
		quizzes:       make(map[string]quiz.Quiz),
		questions:     make(map[string]quiz.Question),
		attempts:      make(map[string]quiz.Attempt),
		templates:     make(map[string]campaign.Template),
		campaigns:     make(map[string]campaign.Campaign),
		recipients:    make(map[string]campaign.Recipient),
		rooms:         make(map[string]meeting.Room),
		files:         make(map[string]file.File),
		shares:        make(map[string]file.Share),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := Open()
	db.Lock()
	defer db.Unlock()
	db.users, db.orgs, db.settings = fresh.users, fresh.orgs, fresh.settings
	db.products, db.plans, db.features, db.planFeatures = fresh.products, fresh.plans, fresh.features, fresh.planFeatures
	db.customers, db.transactions, db.subscriptions = fresh.customers, fresh.transactions, fresh.subscriptions
	db.posts, db.quizzes, db.questions, db.attempts = fresh.posts, fresh.quizzes, fresh.questions, fresh.attempts
	db.templates, db.campaigns, db.recipients = fresh.templates, fresh.campaigns, fresh.recipients
	db.rooms, db.files, db.shares = fresh.rooms, fresh.files, fresh.shares
}

func newID() string {
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func contains(values []string, v string) bool {
	for _, val := range values {
		if val == v {
			return true
		}
	}
	return false
}

// less compares two already extracted field values, honouring the ordering direction.
func less(a, b interface{}, ord core.DBOrdering) bool {
	var lt, gt bool
	switch av := a.(type) {
	case string:
		bv := b.(string)
		lt, gt = av < bv, av > bv
	case int64:
		bv := b.(int64)
		lt, gt = av < bv, av > bv
	case bool:
		bv := b.(bool)
		lt, gt = !av && bv, av && !bv
	}
	if ord.Ascending {
		return lt
	}
	return gt
}

// lessBy builds a sort.SliceStable less func from orderings; value extracts a field of the i-th item.
func lessBy(orderings []core.DBOrdering, value func(i int, field string) interface{}) func(i, j int) bool {
	return func(i, j int) bool {
		for _, ord := range orderings {
			a, b := value(i, ord.Field), value(j, ord.Field)
			if less(a, b, ord) {
				return true
			}
			if less(b, a, ord) {
				return false
			}
		}
		return false
	}
}
