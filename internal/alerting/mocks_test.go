package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/repository"
)

// mockRepo is an in-memory AlertingRepository for engine tests.
type mockRepo struct {
	mu         sync.Mutex
	rules      map[uint]*entities.AlertRule
	nextID     uint
	deliveries []entities.AlertDelivery
	prefs      map[string]*entities.UserAlertPreferences

	getPrefsErr error
	recordErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		rules:  make(map[uint]*entities.AlertRule),
		nextID: 1,
		prefs:  make(map[string]*entities.UserAlertPreferences),
	}
}

func (m *mockRepo) ListRules(_ context.Context, filter repository.RuleFilter) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for _, rule := range m.rules {
		if filter.Metric != "" && rule.Metric != filter.Metric {
			continue
		}
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *rule)
	}
	return out, nil
}

func (m *mockRepo) GetRule(_ context.Context, id uint) (*entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, repository.ErrRuleNotFound
	}
	clone := *rule
	return &clone, nil
}

func (m *mockRepo) CreateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.nextID
	m.nextID++
	clone := *rule
	m.rules[rule.ID] = &clone
	return nil
}

func (m *mockRepo) UpdateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return repository.ErrRuleNotFound
	}
	clone := *rule
	m.rules[rule.ID] = &clone
	return nil
}

func (m *mockRepo) ToggleRule(_ context.Context, id uint, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return repository.ErrRuleNotFound
	}
	rule.IsActive = active
	return nil
}

func (m *mockRepo) ListDueRules(_ context.Context, now time.Time) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []entities.AlertRule
	for _, rule := range m.rules {
		if rule.IsActive && !rule.NextRunAt.After(now) {
			due = append(due, *rule)
		}
	}
	return due, nil
}

func (m *mockRepo) RescheduleRule(_ context.Context, id uint, nextRunAt time.Time, triggeredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return repository.ErrRuleNotFound
	}
	rule.NextRunAt = nextRunAt
	if triggeredAt != nil {
		at := *triggeredAt
		rule.LastTriggeredAt = &at
	}
	return nil
}

func (m *mockRepo) RecordDelivery(_ context.Context, delivery *entities.AlertDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	delivery.ID = uint(len(m.deliveries) + 1)
	m.deliveries = append(m.deliveries, *delivery)
	return nil
}

func (m *mockRepo) ListDeliveries(_ context.Context, filter repository.DeliveryFilter) ([]entities.AlertDelivery, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertDelivery
	for _, d := range m.deliveries {
		if filter.RuleID != 0 && d.RuleID != filter.RuleID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (m *mockRepo) DeleteDeliveriesBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []entities.AlertDelivery
	var deleted int64
	for _, d := range m.deliveries {
		if d.DeliveredAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	m.deliveries = kept
	return deleted, nil
}

func (m *mockRepo) GetPreferences(_ context.Context, userID string) (*entities.UserAlertPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getPrefsErr != nil {
		return nil, m.getPrefsErr
	}
	prefs, ok := m.prefs[userID]
	if !ok {
		return nil, nil
	}
	clone := *prefs
	return &clone, nil
}

func (m *mockRepo) SavePreferences(_ context.Context, prefs *entities.UserAlertPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *prefs
	m.prefs[prefs.UserID] = &clone
	return nil
}

func (m *mockRepo) deliveriesFor(ruleID uint) []entities.AlertDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertDelivery
	for _, d := range m.deliveries {
		if d.RuleID == ruleID {
			out = append(out, d)
		}
	}
	return out
}

// mockProvider returns canned values per metric. A missing entry means the
// metric is unavailable.
type mockProvider struct {
	mu     sync.Mutex
	values map[string]float64
	bands  map[string]Band
	errs   map[string]error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		values: make(map[string]float64),
		bands:  make(map[string]Band),
		errs:   make(map[string]error),
	}
}

func (p *mockProvider) MetricValue(_ context.Context, query MetricQuery) (*float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[query.Metric]; ok {
		return nil, err
	}
	value, ok := p.values[query.Metric]
	if !ok {
		return nil, nil
	}
	return &value, nil
}

func (p *mockProvider) ForecastBand(_ context.Context, query MetricQuery) (*Band, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	band, ok := p.bands[query.Metric]
	if !ok {
		return nil, nil
	}
	return &band, nil
}

// valueOnlyProvider implements MetricProvider without the band lookup.
type valueOnlyProvider struct {
	value float64
}

func (p *valueOnlyProvider) MetricValue(context.Context, MetricQuery) (*float64, error) {
	v := p.value
	return &v, nil
}

// mockNotifier records sends and simulates disabled channels or failures.
type mockNotifier struct {
	mu       sync.Mutex
	emails   []string
	smses    []string
	emailOff bool
	smsOff   bool
	emailErr error
	smsErr   error
}

func (n *mockNotifier) SendEmail(_ context.Context, to, _, _ string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.emailErr != nil {
		return false, n.emailErr
	}
	if n.emailOff {
		return false, nil
	}
	n.emails = append(n.emails, to)
	return true, nil
}

func (n *mockNotifier) SendSMS(_ context.Context, to, _ string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.smsErr != nil {
		return false, n.smsErr
	}
	if n.smsOff {
		return false, nil
	}
	n.smses = append(n.smses, to)
	return true, nil
}

type mockSlack struct {
	mu    sync.Mutex
	posts []string
	err   error
}

func (s *mockSlack) SendMessage(_ context.Context, webhookURL, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.posts = append(s.posts, webhookURL)
	return nil
}

type mockWebhook struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (w *mockWebhook) Send(_ context.Context, targetURL, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.sends = append(w.sends, targetURL)
	return nil
}
