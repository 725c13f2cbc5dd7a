package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/database"
	"storefront/internal/models"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type fakeProducts struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
	// failDecrementAt makes the nth DecrementStock call (1 based) report an
	// unmatched guard.
	failDecrementAt int
	decrements      int
	increments      int
}

func newFakeProducts(products ...*models.Product) *fakeProducts {
	f := &fakeProducts{products: map[primitive.ObjectID]*models.Product{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProducts) copyOf(p *models.Product) *models.Product {
	c := *p
	c.Variants = append([]models.Variant(nil), p.Variants...)
	return &c
}

func (f *fakeProducts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return f.copyOf(p), nil
}

func (f *fakeProducts) List(_ context.Context, q database.ProductQuery) ([]models.Product, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Product, 0)
	for _, p := range f.products {
		if p.IsDeleted || (!q.IncludeInactive && !p.IsActive) {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		out = append(out, *f.copyOf(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, int64(len(out)), nil
}

func (f *fakeProducts) Insert(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = primitive.NewObjectID()
	f.products[p.ID] = f.copyOf(p)
	return nil
}

func (f *fakeProducts) Update(_ context.Context, id primitive.ObjectID, c database.ProductChanges) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return nil, database.ErrNotFound
	}
	if c.Title != nil {
		p.Title = *c.Title
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.Category != nil {
		p.Category = *c.Category
	}
	if c.Label != nil {
		p.Label = *c.Label
	}
	if c.Tags != nil {
		p.Tags = *c.Tags
	}
	return f.copyOf(p), nil
}

func (f *fakeProducts) SoftDelete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return database.ErrNotFound
	}
	p.IsDeleted, p.IsActive = true, false
	return nil
}

func (f *fakeProducts) SetActive(_ context.Context, id primitive.ObjectID, active bool) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return nil, database.ErrNotFound
	}
	p.IsActive = active
	return f.copyOf(p), nil
}

func (f *fakeProducts) UpdateVariant(_ context.Context, productID, variantID primitive.ObjectID, c database.VariantChanges) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, database.ErrNotFound
	}
	v, ok := p.FindVariant(variantID)
	if !ok {
		return nil, database.ErrNotFound
	}
	if c.Stock != nil {
		v.Stock = *c.Stock
	}
	if c.MRP != nil {
		v.Price.MRP = *c.MRP
	}
	if c.Price != nil {
		v.Price.SellingPrice = *c.Price
	}
	return f.copyOf(p), nil
}

func (f *fakeProducts) DecrementStock(_ context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrements++
	if f.failDecrementAt == f.decrements {
		return false, nil
	}
	p, ok := f.products[productID]
	if !ok || !p.Purchasable() {
		return false, nil
	}
	v, ok := p.FindVariant(variantID)
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	p.Sales += qty
	return true, nil
}

func (f *fakeProducts) IncrementStock(_ context.Context, productID, variantID primitive.ObjectID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments++
	p, ok := f.products[productID]
	if !ok {
		return database.ErrNotFound
	}
	v, ok := p.FindVariant(variantID)
	if !ok {
		return database.ErrNotFound
	}
	v.Stock += qty
	p.Sales -= qty
	return nil
}

func (f *fakeProducts) Stats(_ context.Context, top int64) (*models.ProductStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.ProductStats{}
	live := make([]models.Product, 0)
	var ratings float64
	for _, p := range f.products {
		if p.IsDeleted {
			continue
		}
		live = append(live, *f.copyOf(p))
		stats.TotalProducts++
		if p.IsActive {
			stats.ActiveProducts++
		}
		stats.TotalSales += int64(p.Sales)
		stats.TotalReviews += int64(p.TotalReviews)
		ratings += p.AvgRating
	}
	if stats.TotalProducts > 0 {
		stats.AverageRating = ratings / float64(stats.TotalProducts)
	}
	stats.TopSelling = topProducts(live, top, func(a, b models.Product) bool { return a.Sales > b.Sales })
	stats.TopRated = topProducts(live, top, func(a, b models.Product) bool { return a.AvgRating > b.AvgRating })
	return stats, nil
}

func topProducts(products []models.Product, n int64, less func(a, b models.Product) bool) []models.Product {
	sorted := append([]models.Product(nil), products...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if int64(len(sorted)) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (f *fakeProducts) stock(productID, variantID primitive.ObjectID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := f.products[productID].FindVariant(variantID)
	return v.Stock
}

// snapshot copies every product by value. restore writes the copies back
// through the existing pointers so tests holding a product see the rollback.
func (f *fakeProducts) snapshot() map[primitive.ObjectID]models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[primitive.ObjectID]models.Product, len(f.products))
	for id, p := range f.products {
		out[id] = *f.copyOf(p)
	}
	return out
}

func (f *fakeProducts) restore(saved map[primitive.ObjectID]models.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range saved {
		if current, ok := f.products[id]; ok {
			*current = p
		}
	}
}

type fakeCoupons struct {
	mu      sync.Mutex
	coupons map[primitive.ObjectID]*models.Coupon
	// beforeRedeem lets a test change the stored coupon after the order was
	// priced but before the guarded increment runs.
	beforeRedeem func(c *models.Coupon)
}

func newFakeCoupons(coupons ...*models.Coupon) *fakeCoupons {
	f := &fakeCoupons{coupons: map[primitive.ObjectID]*models.Coupon{}}
	for _, c := range coupons {
		if c.ID.IsZero() {
			c.ID = primitive.NewObjectID()
		}
		f.coupons[c.ID] = c
	}
	return f
}

func (f *fakeCoupons) Insert(_ context.Context, c *models.Coupon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.coupons {
		if existing.Code == c.Code {
			return errors.Wrap(database.ErrDuplicate, "insert coupon")
		}
	}
	c.ID = primitive.NewObjectID()
	stored := *c
	f.coupons[c.ID] = &stored
	return nil
}

func (f *fakeCoupons) FindByID(_ context.Context, id primitive.ObjectID) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCoupons) FindActiveByCode(_ context.Context, code string) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.coupons {
		if c.Code == code && c.Active {
			copied := *c
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeCoupons) Save(_ context.Context, c *models.Coupon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.coupons[c.ID]
	if !ok {
		return database.ErrNotFound
	}
	for id, other := range f.coupons {
		if id != c.ID && other.Code == c.Code {
			return errors.Wrap(database.ErrDuplicate, "save coupon")
		}
	}
	used := existing.UsedCount
	stored := *c
	stored.UsedCount = used
	f.coupons[c.ID] = &stored
	return nil
}

func (f *fakeCoupons) ListValid(_ context.Context, now time.Time) ([]models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Coupon, 0)
	for _, c := range f.coupons {
		if c.Active && !c.Expired(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCoupons) Deactivate(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok {
		return database.ErrNotFound
	}
	c.Active = false
	return nil
}

func (f *fakeCoupons) Redeem(_ context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if ok && f.beforeRedeem != nil {
		f.beforeRedeem(c)
	}
	if !ok || !c.Active || c.Exhausted() || c.Expired(now) {
		return false, nil
	}
	c.UsedCount++
	return true, nil
}

func (f *fakeCoupons) Release(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.coupons[id]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}

func (f *fakeCoupons) snapshot() map[primitive.ObjectID]models.Coupon {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[primitive.ObjectID]models.Coupon, len(f.coupons))
	for id, c := range f.coupons {
		out[id] = *c
	}
	return out
}

func (f *fakeCoupons) restore(saved map[primitive.ObjectID]models.Coupon) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range saved {
		if current, ok := f.coupons[id]; ok {
			*current = c
		}
	}
}

func (f *fakeCoupons) used(id primitive.ObjectID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coupons[id].UsedCount
}

type fakeOrders struct {
	mu      sync.Mutex
	orders  map[primitive.ObjectID]*models.Order
	numbers map[string]bool
	// insertErr, when set, is returned by every Insert.
	insertErr error
	// failUpdateWith is returned by the next Update when set.
	failUpdateWith error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[primitive.ObjectID]*models.Order{}, numbers: map[string]bool{}}
}

func (f *fakeOrders) Insert(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.numbers[o.OrderNumber] {
		return errors.Wrap(database.ErrDuplicate, "insert order")
	}
	f.numbers[o.OrderNumber] = true
	o.ID = primitive.NewObjectID()
	stored := *o
	f.orders[o.ID] = &stored
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (f *fakeOrders) List(_ context.Context, q database.OrderQuery) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, 0)
	for _, o := range f.orders {
		if q.UserID != nil && o.UserID != *q.UserID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if q.From != nil && o.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && o.CreatedAt.After(*q.To) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrders) Update(_ context.Context, id primitive.ObjectID, expected string, c database.OrderChanges) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateWith != nil {
		err := f.failUpdateWith
		f.failUpdateWith = nil
		return nil, err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if expected != "" && o.Status != expected {
		return nil, database.ErrStatusConflict
	}
	if c.Status != nil {
		o.Status = *c.Status
	}
	if c.Address != nil {
		o.Address = *c.Address
	}
	if c.CustomerNote != nil {
		o.CustomerNote = *c.CustomerNote
	}
	if c.GiftOptions != nil {
		o.GiftOptions = c.GiftOptions
	}
	if c.PaymentID != nil {
		o.PaymentID = c.PaymentID
	}
	if c.ShippingCost != nil {
		o.Shipping.Cost = *c.ShippingCost
	}
	if c.ShippingMethod != nil {
		o.Shipping.Method = *c.ShippingMethod
	}
	if c.TrackingNumber != nil {
		o.Shipping.TrackingNumber = *c.TrackingNumber
	}
	if c.PayableAmount != nil {
		o.PayableAmount = *c.PayableAmount
	}
	if c.EstimatedDeliveryDate != nil {
		o.EstimatedDeliveryDate = *c.EstimatedDeliveryDate
	}
	if c.AdminNote != nil {
		o.AdminNote = *c.AdminNote
	}
	if c.Refund != nil {
		o.Refund = *c.Refund
	}
	if c.SettlementPaymentID != nil {
		o.SettlementPaymentID = c.SettlementPaymentID
	}
	o.OrderTracking = append(o.OrderTracking, c.PushTracking...)
	copied := *o
	return &copied, nil
}

func (f *fakeOrders) status(id primitive.ObjectID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

func (f *fakeOrders) snapshot() (map[primitive.ObjectID]*models.Order, map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make(map[primitive.ObjectID]*models.Order, len(f.orders))
	for id, o := range f.orders {
		copied := *o
		orders[id] = &copied
	}
	numbers := make(map[string]bool, len(f.numbers))
	for n := range f.numbers {
		numbers[n] = true
	}
	return orders, numbers
}

func (f *fakeOrders) restore(orders map[primitive.ObjectID]*models.Order, numbers map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders, f.numbers = orders, numbers
}

type fakePayments struct {
	mu        sync.Mutex
	payments  map[primitive.ObjectID]*models.Payment
	insertErr error
	replaces  int
}

func newFakePayments(payments ...*models.Payment) *fakePayments {
	f := &fakePayments{payments: map[primitive.ObjectID]*models.Payment{}}
	for _, p := range payments {
		f.payments[p.ID] = p
	}
	return f
}

func (f *fakePayments) Insert(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	p.ID = primitive.NewObjectID()
	stored := *p
	f.payments[p.ID] = &stored
	return nil
}

func (f *fakePayments) FindByID(_ context.Context, id primitive.ObjectID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakePayments) Replace(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payments[p.ID]; !ok {
		return database.ErrNotFound
	}
	f.replaces++
	stored := *p
	f.payments[p.ID] = &stored
	return nil
}

func (f *fakePayments) List(_ context.Context, q database.PaymentQuery) ([]models.Payment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Payment, 0)
	for _, p := range f.payments {
		if q.Status != "" && p.PaymentStatus != q.Status {
			continue
		}
		if q.Method != "" && p.PaymentMethod != q.Method {
			continue
		}
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (f *fakePayments) all() []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Payment, 0, len(f.payments))
	for _, p := range f.payments {
		out = append(out, *p)
	}
	return out
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[primitive.ObjectID]*models.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Insert(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return errors.Wrap(database.ErrDuplicate, "insert user")
		}
	}
	u.ID = primitive.NewObjectID()
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *u
	copied.Addresses = append([]models.SavedAddress{}, u.Addresses...)
	return &copied, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) SetAddresses(_ context.Context, id primitive.ObjectID, addresses []models.SavedAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.Addresses = append([]models.SavedAddress{}, addresses...)
	return nil
}

func (f *fakeUsers) List(_ context.Context, q database.UserQuery) ([]models.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]models.User, 0)
	for _, u := range f.users {
		if q.Active != nil && u.IsActive != *q.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Email+" "+u.FullName.FirstName+" "+u.FullName.LastName), search) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	total := int64(len(out))
	if q.Limit > 0 {
		start := (q.Page - 1) * q.Limit
		if start < 0 {
			start = 0
		}
		if start > total {
			start = total
		}
		end := start + q.Limit
		if end > total {
			end = total
		}
		out = out[start:end]
	}
	return out, total, nil
}

type fakeAdmins struct {
	admins map[string]*models.Admin
}

func (f *fakeAdmins) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	a, ok := f.admins[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (f *fakeAdmins) Insert(_ context.Context, a *models.Admin) error {
	if _, ok := f.admins[a.Email]; ok {
		return errors.Wrap(database.ErrDuplicate, "insert admin")
	}
	a.ID = primitive.NewObjectID()
	f.admins[a.Email] = a
	return nil
}

type fakeRefreshTokens struct {
	tokens map[primitive.ObjectID]*models.RefreshToken
}

func (f *fakeRefreshTokens) Insert(_ context.Context, t *models.RefreshToken) error {
	t.ID = primitive.NewObjectID()
	stored := *t
	f.tokens[t.ID] = &stored
	return nil
}

func (f *fakeRefreshTokens) FindActive(_ context.Context, hash string) (*models.RefreshToken, error) {
	for _, t := range f.tokens {
		if t.TokenHash == hash && !t.Revoked {
			copied := *t
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) error {
	if t, ok := f.tokens[id]; ok {
		t.Revoked = true
		t.ReplacedByToken = replacedBy
	}
	return nil
}

func (f *fakeRefreshTokens) RevokeByHash(_ context.Context, hash string) (bool, error) {
	for _, t := range f.tokens {
		if t.TokenHash == hash && !t.Revoked {
			t.Revoked = true
			return true, nil
		}
	}
	return false, nil
}

// fakeTx runs one transaction at a time and rolls the order, product and
// coupon fakes back when fn fails.
type fakeTx struct {
	mu       sync.Mutex
	products *fakeProducts
	coupons  *fakeCoupons
	orders   *fakeOrders
	calls    int
	aborts   int
}

func (tx *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.calls++

	products := tx.products.snapshot()
	coupons := tx.coupons.snapshot()
	orders, numbers := tx.orders.snapshot()
	if err := fn(ctx); err != nil {
		tx.aborts++
		tx.products.restore(products)
		tx.coupons.restore(coupons)
		tx.orders.restore(orders, numbers)
		return err
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
}

func (n *recordingNotifier) OrderPlaced(order models.Order, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.OrderNumber)
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func productWithVariant(stock int, mrp, price float64) (*models.Product, primitive.ObjectID) {
	variantID := primitive.NewObjectID()
	return &models.Product{
		ID:          primitive.NewObjectID(),
		Title:       "Cotton Shirt",
		Description: "Plain shirt",
		Category:    "apparel",
		IsActive:    true,
		Variants: []models.Variant{{
			ID:    variantID,
			Stock: stock,
			Price: models.VariantPrice{MRP: mrp, SellingPrice: price},
		}},
	}, variantID
}

func validAddress() *models.Address {
	return &models.Address{
		FlatNo:  "12B",
		Street:  "MG Road",
		City:    "Pune",
		State:   "MH",
		Pincode: "411001",
		Country: "IN",
	}
}
