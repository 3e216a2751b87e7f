package service

import (
	"context"
	"sync"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/gateway"
)

// memOrders is an in-memory OrderRepository with the same versioned
// update semantics as the Postgres implementation.
type memOrders struct {
	mu      sync.Mutex
	byID    map[string]entity.Order
	creates int
	updates int
}

func newMemOrders() *memOrders {
	return &memOrders{byID: make(map[string]entity.Order)}
}

func (m *memOrders) Get(_ context.Context, id string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (m *memOrders) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.byID {
		if order.PaymentResult.GatewayOrderID == gatewayOrderID {
			return cloneOrder(order), nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *memOrders) Create(_ context.Context, order *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.byID[order.ID] = *cloneOrder(*order)
	return nil
}

func (m *memOrders) Update(_ context.Context, order *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[order.ID]
	if !ok {
		return entity.ErrNotFound
	}
	if stored.Version != order.Version {
		return entity.ErrVersionConflict
	}
	m.updates++
	order.Version++
	m.byID[order.ID] = *cloneOrder(*order)
	return nil
}

func (m *memOrders) FindByUser(_ context.Context, userID string) ([]entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []entity.Order
	for _, order := range m.byID {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *memOrders) FindAll(_ context.Context) ([]entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []entity.Order
	for _, order := range m.byID {
		orders = append(orders, order)
	}
	return orders, nil
}

func cloneOrder(o entity.Order) *entity.Order {
	items := make([]entity.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	return &o
}

// fakeGateway records calls and returns canned responses.
type fakeGateway struct {
	mu           sync.Mutex
	orderID      string
	refundID     string
	refundStatus string
	failCreate   error
	failRefund   error

	createCalls []createCall
	refundCalls []refundCall
}

type createCall struct {
	amount   int64
	currency string
	receipt  string
}

type refundCall struct {
	paymentID string
	amount    int64
	notes     map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orderID: "order_abc", refundID: "rfnd_1", refundStatus: "processed"}
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (gateway.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate != nil {
		return gateway.GatewayOrder{}, g.failCreate
	}
	g.createCalls = append(g.createCalls, createCall{amount: amount, currency: currency, receipt: receipt})
	return gateway.GatewayOrder{ID: g.orderID, Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount int64, notes map[string]string) (gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund != nil {
		return gateway.Refund{}, g.failRefund
	}
	g.refundCalls = append(g.refundCalls, refundCall{paymentID: paymentID, amount: amount, notes: notes})
	return gateway.Refund{ID: g.refundID, Amount: amount, Status: g.refundStatus}, nil
}

// memEventLog collects appended events.
type memEventLog struct {
	mu     sync.Mutex
	events []entity.Event
}

func (l *memEventLog) Append(_ context.Context, _ string, event entity.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *memEventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var types []string
	for _, e := range l.events {
		types = append(types, e.EventType())
	}
	return types
}

// memPublisher collects published topics.
type memPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *memPublisher) PublishEvent(_ context.Context, topic string, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

// memDedup is an in-memory WebhookDedup.
type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDedup() *memDedup {
	return &memDedup{seen: make(map[string]bool)}
}

func (d *memDedup) MarkProcessed(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
