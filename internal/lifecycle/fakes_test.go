package lifecycle_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

type resKey struct{ order, product int64 }

// shop is an in-memory stand-in for the Postgres repos. WithTx snapshots
// every table and restores it when fn fails; nested calls join the outer
// transaction.
type shop struct {
	depth     int
	statusErr error
	nextID    int64
	products  map[int64]orders.Product
	orders    map[int64]orders.Order
	items     map[int64][]orders.OrderItem
	carts     map[int64]cart.Snapshot
	res       map[resKey]orders.Reservation
	users     map[int64]orders.Contact
}

func newShop() *shop {
	return &shop{
		products: map[int64]orders.Product{},
		orders:   map[int64]orders.Order{},
		items:    map[int64][]orders.OrderItem{},
		carts:    map[int64]cart.Snapshot{},
		res:      map[resKey]orders.Reservation{},
		users:    map[int64]orders.Contact{},
	}
}

func (s *shop) addProduct(id int64, name string, price int64, stock int) {
	s.products[id] = orders.Product{ID: id, Name: name, Price: price, Stock: stock, Active: true}
}

func (s *shop) addToCart(userID, productID int64, qty int) {
	c := s.carts[userID]
	c.CartID, c.UserID = userID+1000, userID
	p := s.products[productID]
	c.Lines = append(c.Lines, cart.Line{
		ProductID: productID, ProductName: p.Name, Quantity: qty, Price: p.Price, LivePrice: p.Price,
	})
	s.carts[userID] = c
}

func (s *shop) stock(id int64) int { return s.products[id].Stock }

func (s *shop) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.depth > 0 {
		return fn(ctx)
	}
	products, ords, items, carts, res := maps.Clone(s.products), maps.Clone(s.orders), maps.Clone(s.items), maps.Clone(s.carts), maps.Clone(s.res)
	s.depth++
	err := fn(ctx)
	s.depth--
	if err != nil {
		s.products, s.orders, s.items, s.carts, s.res = products, ords, items, carts, res
	}
	return err
}

// orders.Writer

func (s *shop) InsertOrder(_ context.Context, o *orders.Order) error {
	s.nextID++
	o.ID = s.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = *o
	return nil
}

func (s *shop) InsertItems(_ context.Context, orderID int64, items []orders.OrderItem) ([]orders.OrderItem, error) {
	out := slices.Clone(items)
	for i := range out {
		out[i].ID = int64(i + 1)
		out[i].OrderID = orderID
	}
	s.items[orderID] = out
	return out, nil
}

// lifecycle.OrderStore

func (s *shop) FindByID(_ context.Context, id int64) (orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.NotFound("order", id)
	}
	o.Items = s.items[id]
	return o, nil
}

func (s *shop) FindByToken(_ context.Context, token string) (orders.Order, error) {
	for _, o := range s.orders {
		if o.GatewayToken == token {
			return o, nil
		}
	}
	return orders.Order{}, orders.NotFound("order", token)
}

func (s *shop) List(_ context.Context, f orders.ListFilter) (orders.Page, error) {
	pg := orders.Page{Page: f.Page, Limit: f.Limit}
	ids := make([]int64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		o := s.orders[id]
		if (f.UserID != 0 && o.UserID != f.UserID) || (f.Status != "" && o.Status != f.Status) {
			continue
		}
		pg.Orders = append(pg.Orders, o)
	}
	pg.Total = len(pg.Orders)
	return pg, nil
}

func (s *shop) update(id int64, fn func(o *orders.Order)) error {
	o, ok := s.orders[id]
	if !ok {
		return orders.NotFound("order", id)
	}
	fn(&o)
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return nil
}

func (s *shop) SetGatewayToken(_ context.Context, id int64, token string) error {
	return s.update(id, func(o *orders.Order) { o.GatewayToken = token })
}

func (s *shop) SetStatus(_ context.Context, id int64, st orders.Status) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	return s.update(id, func(o *orders.Order) { o.Status = st })
}

func (s *shop) SetPayment(_ context.Context, id int64, ps orders.PaymentStatus, gatewayStatus string) error {
	return s.update(id, func(o *orders.Order) {
		o.PaymentStatus = ps
		if gatewayStatus != "" {
			o.GatewayStatus = gatewayStatus
		}
	})
}

func (s *shop) SettlePayment(_ context.Context, id int64, from, to orders.PaymentStatus, gatewayStatus string) (bool, error) {
	o, ok := s.orders[id]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	return true, s.SetPayment(context.Background(), id, to, gatewayStatus)
}

func (s *shop) SetNotes(_ context.Context, id int64, notes string) error {
	return s.update(id, func(o *orders.Order) { o.Notes = notes })
}

func (s *shop) StatsBuckets(_ context.Context, since time.Time) ([]orders.StatsBucket, error) {
	type k struct {
		st orders.Status
		ps orders.PaymentStatus
	}
	agg := map[k]*orders.StatsBucket{}
	for _, o := range s.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		b := agg[k{o.Status, o.PaymentStatus}]
		if b == nil {
			b = &orders.StatsBucket{Status: o.Status, PaymentStatus: o.PaymentStatus}
			agg[k{o.Status, o.PaymentStatus}] = b
		}
		b.Count++
		b.Amount += o.TotalAmount
	}
	out := make([]orders.StatsBucket, 0, len(agg))
	for _, b := range agg {
		out = append(out, *b)
	}
	return out, nil
}

// lifecycle.CartStore

func (s *shop) Snapshot(_ context.Context, userID int64) (cart.Snapshot, error) {
	c, ok := s.carts[userID]
	if !ok {
		return cart.Snapshot{UserID: userID}, nil
	}
	c.Lines = slices.Clone(c.Lines)
	return c, nil
}

func (s *shop) Clear(_ context.Context, cartID int64) error {
	for uid, c := range s.carts {
		if c.CartID == cartID {
			c.Lines = nil
			s.carts[uid] = c
		}
	}
	return nil
}

// inventory.Store

func (s *shop) FindProduct(_ context.Context, id int64) (orders.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, orders.NotFound("product", id)
	}
	return p, nil
}

func (s *shop) OrderItems(_ context.Context, orderID int64) ([]orders.ItemQty, error) {
	var out []orders.ItemQty
	for _, it := range s.items[orderID] {
		out = append(out, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out, nil
}

func (s *shop) ReservedItems(_ context.Context, orderID int64) ([]orders.ItemQty, error) {
	var out []orders.ItemQty
	for k, r := range s.res {
		if k.order == orderID && r.Status == orders.ReservationReserved {
			out = append(out, orders.ItemQty{ProductID: k.product, Qty: r.Qty})
		}
	}
	return out, nil
}

func (s *shop) TakeStock(_ context.Context, productID int64, qty int) (orders.Product, bool, error) {
	p, ok := s.products[productID]
	if !ok {
		return orders.Product{}, false, orders.NotFound("product", productID)
	}
	if p.Stock < qty {
		return p, false, nil
	}
	p.Stock -= qty
	s.products[productID] = p
	return p, true, nil
}

func (s *shop) PutStock(_ context.Context, productID int64, qty int) (bool, error) {
	p, ok := s.products[productID]
	if !ok {
		return false, nil
	}
	p.Stock += qty
	s.products[productID] = p
	return true, nil
}

func (s *shop) RecordReservation(_ context.Context, orderID, productID int64, qty int) (bool, error) {
	k := resKey{orderID, productID}
	if _, ok := s.res[k]; ok {
		return false, nil
	}
	s.res[k] = orders.Reservation{OrderID: orderID, ProductID: productID, Qty: qty, Status: orders.ReservationReserved}
	return true, nil
}

func (s *shop) MarkReleased(_ context.Context, orderID, productID int64) (bool, error) {
	k := resKey{orderID, productID}
	r, ok := s.res[k]
	if !ok || r.Status != orders.ReservationReserved {
		return false, nil
	}
	r.Status = orders.ReservationReleased
	s.res[k] = r
	return true, nil
}

// lifecycle.Contacts

func (s *shop) Contact(_ context.Context, userID int64) (orders.Contact, error) {
	c, ok := s.users[userID]
	if !ok {
		return orders.Contact{}, orders.NotFound("user", userID)
	}
	return c, nil
}

type refundCall struct {
	token  string
	amount int64
}

type fakeGateway struct {
	createErr    error
	commitStatus string
	statusErr    error
	refundErr    error
	beforeCommit func()
	creates      []payment.CreateRequest
	commits      int
	refunds      []refundCall
}

func (g *fakeGateway) Method() string { return "webpay" }

func (g *fakeGateway) Create(_ context.Context, req payment.CreateRequest) (payment.CreateResponse, error) {
	g.creates = append(g.creates, req)
	if g.createErr != nil {
		return payment.CreateResponse{}, g.createErr
	}
	tok := "tok-" + req.BuyOrder
	return payment.CreateResponse{Token: tok, RedirectURL: "https://pay.example/init?token_ws=" + tok}, nil
}

func (g *fakeGateway) Commit(_ context.Context, token string) (payment.CommitResponse, error) {
	if f := g.beforeCommit; f != nil {
		g.beforeCommit = nil
		f()
	}
	g.commits++
	return payment.CommitResponse{Status: g.commitStatus, AuthorizationCode: "1213", ResponseCode: 0}, nil
}

func (g *fakeGateway) Status(_ context.Context, token string) (payment.StatusResponse, error) {
	if g.statusErr != nil {
		return payment.StatusResponse{}, g.statusErr
	}
	return payment.StatusResponse{Status: payment.StatusInitialized}, nil
}

func (g *fakeGateway) Refund(_ context.Context, token string, amount int64) (payment.RefundResponse, error) {
	if g.refundErr != nil {
		return payment.RefundResponse{}, g.refundErr
	}
	g.refunds = append(g.refunds, refundCall{token, amount})
	return payment.RefundResponse{Type: "REVERSED", NullifiedAmount: amount}, nil
}

type outbox struct{ sent []notify.Message }

func (o *outbox) Notify(_ context.Context, m notify.Message) error {
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) kinds() []notify.Kind {
	out := make([]notify.Kind, 0, len(o.sent))
	for _, m := range o.sent {
		out = append(out, m.Kind)
	}
	return out
}

// memGuard is an in-process callback guard. beforeAcquire, when set, runs
// once ahead of the next Acquire; failing makes it behave like an
// unreachable Redis.
type memGuard struct {
	held          map[string]bool
	failing       bool
	beforeAcquire func()
}

var errGuardDown = errors.New("guard store unavailable")

func (g *memGuard) Acquire(_ context.Context, token string) (bool, error) {
	if f := g.beforeAcquire; f != nil {
		g.beforeAcquire = nil
		f()
	}
	if g.failing {
		return false, errGuardDown
	}
	if g.held[token] {
		return false, nil
	}
	g.held[token] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, token string) error {
	delete(g.held, token)
	return nil
}

type memCache struct {
	entries map[int64]redisx.StatusEntry
	gets    int
}

func (c *memCache) Put(_ context.Context, e redisx.StatusEntry) error {
	c.entries[e.OrderID] = e
	return nil
}

func (c *memCache) Get(_ context.Context, id int64) (redisx.StatusEntry, bool, error) {
	c.gets++
	e, ok := c.entries[id]
	return e, ok, nil
}

var errGatewayDown = errors.New("gateway down")

const (
	buyerID    = 7
	adminEmail = "admin@shop.example"
)

var (
	buyer    = auth.Principal{UserID: buyerID, Email: "ana@example.com", Role: auth.RoleCustomer}
	stranger = auth.Principal{UserID: 99, Role: auth.RoleCustomer}
	admin    = auth.Principal{UserID: 1, Email: adminEmail, Role: auth.RoleAdmin}
)

type harness struct {
	shop  *shop
	gw    *fakeGateway
	mail  *outbox
	guard *memGuard
	cache *memCache
	m     *lifecycle.Manager
}

func newHarness(t *testing.T, frontendURL string) *harness {
	t.Helper()
	h := &harness{
		shop:  newShop(),
		gw:    &fakeGateway{commitStatus: payment.StatusAuthorized},
		mail:  &outbox{},
		guard: &memGuard{held: map[string]bool{}},
		cache: &memCache{entries: map[int64]redisx.StatusEntry{}},
	}
	h.shop.users[buyerID] = orders.Contact{UserID: buyerID, Email: "ana@example.com", Name: "Ana"}
	orch := payment.NewOrchestrator(h.gw, frontendURL, nil, nil)
	h.m = lifecycle.New(lifecycle.Deps{
		Tx:         h.shop,
		Orders:     h.shop,
		Carts:      h.shop,
		Ledger:     inventory.NewLedger(h.shop, nil),
		Builder:    orders.NewBuilder(h.shop, orch.Method(), nil),
		Payments:   orch,
		Notifier:   h.mail,
		Contacts:   h.shop,
		Guard:      h.guard,
		Cache:      h.cache,
		AdminEmail: adminEmail,
	})
	return h
}

func shipping() orders.ShippingAddress {
	return orders.ShippingAddress{Street: "Av. Siempre Viva 742", City: "Santiago", State: "RM", ZipCode: "8320000", Country: "CL"}
}

func checkoutReq() lifecycle.CheckoutRequest {
	return lifecycle.CheckoutRequest{Shipping: shipping(), Notes: "leave at door"}
}

// paidOrder runs a checkout for qty units of product 9 and confirms it.
func (h *harness) paidOrder(t *testing.T, price int64, qty int) orders.Order {
	t.Helper()
	h.shop.addProduct(9, "Mug", price, 10)
	h.shop.addToCart(buyerID, 9, qty)
	res, err := h.m.Checkout(context.Background(), buyer, checkoutReq())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	pr, err := h.m.ConfirmPayment(context.Background(), res.Token)
	if err != nil || !pr.Authorized {
		t.Fatalf("confirm: authorized=%v err=%v", pr.Authorized, err)
	}
	return pr.Order
}
