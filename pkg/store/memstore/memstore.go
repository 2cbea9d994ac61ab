// Package memstore is an in-memory store.Store used for local development and tests.
//
// All state sits behind one mutex. Transaction holds that mutex for the
// whole callback and restores a snapshot when the callback fails, so
// transactions are serialized and all-or-nothing.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	reviewmodel "go-storefront/apps/review/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/store"

	"github.com/google/uuid"
)

type data struct {
	seq   int64
	order map[string]int64 // 插入顺序

	accounts      map[string]usermodel.Account
	roles         map[string]usermodel.UserRole // account_id/role
	addresses     map[string]usermodel.Address
	vendors       map[string]productmodel.Vendor
	categories    map[string]productmodel.Category
	products      map[string]productmodel.Product
	variants      map[string]productmodel.Variant
	inventory     map[string]productmodel.Inventory
	reviews       map[string]reviewmodel.Review
	carts         map[string]cartmodel.Cart
	cartItems     map[string]cartmodel.CartItem
	orders        map[string]ordermodel.Order
	orderItems    map[string]ordermodel.OrderItem
	payments      map[string]ordermodel.Payment
	notifications map[string]ordermodel.Notification
}

func newData() *data {
	return &data{
		order:         map[string]int64{},
		accounts:      map[string]usermodel.Account{},
		roles:         map[string]usermodel.UserRole{},
		addresses:     map[string]usermodel.Address{},
		vendors:       map[string]productmodel.Vendor{},
		categories:    map[string]productmodel.Category{},
		products:      map[string]productmodel.Product{},
		variants:      map[string]productmodel.Variant{},
		inventory:     map[string]productmodel.Inventory{},
		reviews:       map[string]reviewmodel.Review{},
		carts:         map[string]cartmodel.Cart{},
		cartItems:     map[string]cartmodel.CartItem{},
		orders:        map[string]ordermodel.Order{},
		orderItems:    map[string]ordermodel.OrderItem{},
		payments:      map[string]ordermodel.Payment{},
		notifications: map[string]ordermodel.Notification{},
	}
}

// clone 值类型的浅拷贝即可，记录内的指针字段不会被原地修改
func (d *data) clone() *data {
	return &data{
		seq:           d.seq,
		order:         maps.Clone(d.order),
		accounts:      maps.Clone(d.accounts),
		roles:         maps.Clone(d.roles),
		addresses:     maps.Clone(d.addresses),
		vendors:       maps.Clone(d.vendors),
		categories:    maps.Clone(d.categories),
		products:      maps.Clone(d.products),
		variants:      maps.Clone(d.variants),
		inventory:     maps.Clone(d.inventory),
		reviews:       maps.Clone(d.reviews),
		carts:         maps.Clone(d.carts),
		cartItems:     maps.Clone(d.cartItems),
		orders:        maps.Clone(d.orders),
		orderItems:    maps.Clone(d.orderItems),
		payments:      maps.Clone(d.payments),
		notifications: maps.Clone(d.notifications),
	}
}

func (d *data) track(id string) {
	d.seq++
	d.order[id] = d.seq
}

type Store struct {
	mu   *sync.Mutex
	d    *data
	inTx bool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{mu: &sync.Mutex{}, d: newData(), now: time.Now}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, inTx: true, now: s.now}
	defer func() {
		if r := recover(); r != nil {
			*s.d = *snap
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		*s.d = *snap
	}
	return err
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// sortBySeq 按插入顺序排序，desc 为倒序
func sortBySeq[T any](d *data, items []T, id func(T) string, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := d.order[id(items[i])], d.order[id(items[j])]
		if desc {
			return a > b
		}
		return a < b
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ---- accounts ----

func (s *Store) CreateAccount(ctx context.Context, a *usermodel.Account) error {
	defer s.lock()()
	ensureID(&a.ID)
	for _, existing := range s.d.accounts {
		if existing.Email == a.Email {
			return store.ErrDuplicate
		}
	}
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.d.accounts[a.ID] = *a
	s.d.track(a.ID)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*usermodel.Account, error) {
	defer s.lock()()
	a, ok := s.d.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*usermodel.Account, error) {
	defer s.lock()()
	for _, a := range s.d.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateAccount(ctx context.Context, a *usermodel.Account) error {
	defer s.lock()()
	existing, ok := s.d.accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range s.d.accounts {
		if id != a.ID && other.Email == a.Email {
			return store.ErrDuplicate
		}
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now()
	s.d.accounts[a.ID] = *a
	return nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	defer s.lock()()
	return int64(len(s.d.accounts)), nil
}

func (s *Store) AddRole(ctx context.Context, r *usermodel.UserRole) error {
	defer s.lock()()
	if _, ok := s.d.accounts[r.AccountID]; !ok {
		return store.ErrNotFound
	}
	key := r.AccountID + "/" + r.RoleName
	if _, ok := s.d.roles[key]; ok {
		return store.ErrDuplicate
	}
	ensureID(&r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.d.roles[key] = *r
	return nil
}

func (s *Store) ListRoles(ctx context.Context, accountID string) ([]string, error) {
	defer s.lock()()
	var roles []string
	for _, r := range s.d.roles {
		if r.AccountID == accountID {
			roles = append(roles, r.RoleName)
		}
	}
	sort.Strings(roles)
	return roles, nil
}

func (s *Store) CreateAddress(ctx context.Context, a *usermodel.Address) error {
	defer s.lock()()
	ensureID(&a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.d.addresses[a.ID] = *a
	s.d.track(a.ID)
	return nil
}

func (s *Store) GetAddress(ctx context.Context, id string) (*usermodel.Address, error) {
	defer s.lock()()
	a, ok := s.d.addresses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListAddresses(ctx context.Context, accountID string) ([]usermodel.Address, error) {
	defer s.lock()()
	out := []usermodel.Address{}
	for _, a := range s.d.addresses {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sortBySeq(s.d, out, func(a usermodel.Address) string { return a.ID }, false)
	return out, nil
}

func (s *Store) ClearDefaultAddress(ctx context.Context, accountID string) error {
	defer s.lock()()
	for id, a := range s.d.addresses {
		if a.AccountID == accountID && a.IsDefault {
			a.IsDefault = false
			s.d.addresses[id] = a
		}
	}
	return nil
}

func (s *Store) SetDefaultAddress(ctx context.Context, accountID, addressID string) error {
	defer s.lock()()
	a, ok := s.d.addresses[addressID]
	if !ok || a.AccountID != accountID {
		return store.ErrNotFound
	}
	a.IsDefault = true
	s.d.addresses[addressID] = a
	return nil
}

// ---- catalog ----

func (s *Store) CreateVendor(ctx context.Context, v *productmodel.Vendor) error {
	defer s.lock()()
	ensureID(&v.ID)
	for _, existing := range s.d.vendors {
		if existing.Slug == v.Slug {
			return store.ErrDuplicate
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	s.d.vendors[v.ID] = *v
	s.d.track(v.ID)
	return nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (*productmodel.Vendor, error) {
	defer s.lock()()
	v, ok := s.d.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]productmodel.Vendor, error) {
	defer s.lock()()
	out := make([]productmodel.Vendor, 0, len(s.d.vendors))
	for _, v := range s.d.vendors {
		out = append(out, v)
	}
	sortBySeq(s.d, out, func(v productmodel.Vendor) string { return v.ID }, false)
	return out, nil
}

func (s *Store) ListVendorIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	defer s.lock()()
	var ids []string
	for _, v := range s.d.vendors {
		if v.OwnerID == ownerID {
			ids = append(ids, v.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *productmodel.Category) error {
	defer s.lock()()
	ensureID(&c.ID)
	for _, existing := range s.d.categories {
		if existing.Slug == c.Slug {
			return store.ErrDuplicate
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.d.categories[c.ID] = *c
	s.d.track(c.ID)
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*productmodel.Category, error) {
	defer s.lock()()
	c, ok := s.d.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]productmodel.Category, error) {
	defer s.lock()()
	out := make([]productmodel.Category, 0, len(s.d.categories))
	for _, c := range s.d.categories {
		out = append(out, c)
	}
	sortBySeq(s.d, out, func(c productmodel.Category) string { return c.ID }, false)
	return out, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *productmodel.Category) error {
	defer s.lock()()
	existing, ok := s.d.categories[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range s.d.categories {
		if id != c.ID && other.Slug == c.Slug {
			return store.ErrDuplicate
		}
	}
	c.CreatedAt = existing.CreatedAt
	s.d.categories[c.ID] = *c
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.d.categories[id]; !ok {
		return store.ErrNotFound
	}
	for cid, c := range s.d.categories {
		if c.ParentID != nil && *c.ParentID == id {
			c.ParentID = nil
			s.d.categories[cid] = c
		}
	}
	for pid, p := range s.d.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
			s.d.products[pid] = p
		}
	}
	delete(s.d.categories, id)
	return nil
}

func (s *Store) productSlugOrSKUTaken(p *productmodel.Product) bool {
	for id, other := range s.d.products {
		if id == p.ID {
			continue
		}
		if other.Slug == p.Slug {
			return true
		}
		if p.SKU != nil && other.SKU != nil && *other.SKU == *p.SKU {
			return true
		}
	}
	return false
}

func (s *Store) variantSKUTaken(sku string) bool {
	for _, v := range s.d.variants {
		if v.SKU == sku {
			return true
		}
	}
	return false
}

// putVariant 写入规格和对应库存，调用方已持有锁
func (s *Store) putVariant(v *productmodel.Variant, now time.Time) {
	ensureID(&v.ID)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	inv := productmodel.Inventory{}
	if v.Inventory != nil {
		inv = *v.Inventory
	}
	inv.VariantID = v.ID
	inv.UpdatedAt = now
	v.Inventory = &inv

	stored := *v
	stored.Inventory = nil
	s.d.variants[v.ID] = stored
	s.d.inventory[v.ID] = inv
	s.d.track(v.ID)
}

func (s *Store) CreateProduct(ctx context.Context, p *productmodel.Product) error {
	defer s.lock()()
	ensureID(&p.ID)
	if s.productSlugOrSKUTaken(p) {
		return store.ErrDuplicate
	}
	skus := map[string]bool{}
	for _, v := range p.Variants {
		if skus[v.SKU] || s.variantSKUTaken(v.SKU) {
			return store.ErrDuplicate
		}
		skus[v.SKU] = true
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	for i := range p.Variants {
		p.Variants[i].ProductID = p.ID
		s.putVariant(&p.Variants[i], now)
	}
	stored := *p
	stored.Variants = nil
	s.d.products[p.ID] = stored
	s.d.track(p.ID)
	return nil
}

// assembleProduct 调用方已持有锁
func (s *Store) assembleProduct(p productmodel.Product) productmodel.Product {
	p.Variants = []productmodel.Variant{}
	for _, v := range s.d.variants {
		if v.ProductID == p.ID {
			inv := s.d.inventory[v.ID]
			v.Inventory = &inv
			p.Variants = append(p.Variants, v)
		}
	}
	sortBySeq(s.d, p.Variants, func(v productmodel.Variant) string { return v.ID }, false)
	return p
}

func (s *Store) GetProduct(ctx context.Context, id string) (*productmodel.Product, error) {
	defer s.lock()()
	p, ok := s.d.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = s.assembleProduct(p)
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]productmodel.Product, int64, error) {
	defer s.lock()()
	search := strings.ToLower(f.Search)
	var out []productmodel.Product
	for _, p := range s.d.products {
		if f.CategoryID != "" && (p.CategoryID == nil || *p.CategoryID != f.CategoryID) {
			continue
		}
		if f.VendorID != "" && (p.VendorID == nil || *p.VendorID != f.VendorID) {
			continue
		}
		if f.IsActive != nil && p.IsActive != *f.IsActive {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		out = append(out, p)
	}

	sortBySeq(s.d, out, func(p productmodel.Product) string { return p.ID }, true)
	switch f.Ordering {
	case "price":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case "-price":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case "created_at":
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	total := int64(len(out))
	out = page(out, f.Offset, f.Limit)
	for i := range out {
		out[i] = s.assembleProduct(out[i])
	}
	return out, total, nil
}

func matchesSearch(p productmodel.Product, q string) bool {
	if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(p.Slug, q) {
		return true
	}
	return p.SKU != nil && strings.Contains(strings.ToLower(*p.SKU), q)
}

func (s *Store) UpdateProduct(ctx context.Context, p *productmodel.Product) error {
	defer s.lock()()
	existing, ok := s.d.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if s.productSlugOrSKUTaken(p) {
		return store.ErrDuplicate
	}
	stored := *p
	stored.Variants = nil
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.now()
	p.UpdatedAt = stored.UpdatedAt
	s.d.products[p.ID] = stored
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.d.products[id]; !ok {
		return store.ErrNotFound
	}
	variantIDs := map[string]bool{}
	for vid, v := range s.d.variants {
		if v.ProductID == id {
			variantIDs[vid] = true
		}
	}
	for _, item := range s.d.orderItems {
		if variantIDs[item.VariantID] {
			return store.ErrReferenced
		}
	}
	for cid, item := range s.d.cartItems {
		if variantIDs[item.VariantID] {
			delete(s.d.cartItems, cid)
		}
	}
	for vid := range variantIDs {
		delete(s.d.inventory, vid)
		delete(s.d.variants, vid)
	}
	for rid, r := range s.d.reviews {
		if r.ProductID == id {
			delete(s.d.reviews, rid)
		}
	}
	delete(s.d.products, id)
	return nil
}

func (s *Store) CreateVariant(ctx context.Context, v *productmodel.Variant) error {
	defer s.lock()()
	if _, ok := s.d.products[v.ProductID]; !ok {
		return store.ErrNotFound
	}
	if s.variantSKUTaken(v.SKU) {
		return store.ErrDuplicate
	}
	s.putVariant(v, s.now())
	return nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (*productmodel.Variant, error) {
	defer s.lock()()
	v, ok := s.d.variants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	inv := s.d.inventory[id]
	v.Inventory = &inv
	return &v, nil
}

func (s *Store) GetInventory(ctx context.Context, variantID string) (*productmodel.Inventory, error) {
	defer s.lock()()
	inv, ok := s.d.inventory[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) UpdateInventory(ctx context.Context, variantID string, fn func(inv *productmodel.Inventory) error) (*productmodel.Inventory, error) {
	defer s.lock()()
	inv, ok := s.d.inventory[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := fn(&inv); err != nil {
		return nil, err
	}
	inv.VariantID = variantID
	inv.UpdatedAt = s.now()
	s.d.inventory[variantID] = inv
	return &inv, nil
}

func (s *Store) DecrementStock(ctx context.Context, variantID string, qty int) error {
	defer s.lock()()
	inv, ok := s.d.inventory[variantID]
	if !ok {
		return store.ErrNotFound
	}
	if inv.Available() < qty {
		return store.ErrInsufficientStock
	}
	inv.Quantity -= qty
	inv.UpdatedAt = s.now()
	s.d.inventory[variantID] = inv
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, variantID string, qty int) error {
	defer s.lock()()
	inv, ok := s.d.inventory[variantID]
	if !ok {
		return store.ErrNotFound
	}
	inv.Quantity += qty
	inv.UpdatedAt = s.now()
	s.d.inventory[variantID] = inv
	return nil
}

func (s *Store) CreateReview(ctx context.Context, r *reviewmodel.Review) error {
	defer s.lock()()
	if _, ok := s.d.products[r.ProductID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.d.reviews {
		if existing.ProductID == r.ProductID && existing.AccountID == r.AccountID {
			return store.ErrDuplicate
		}
	}
	ensureID(&r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.d.reviews[r.ID] = *r
	s.d.track(r.ID)
	return nil
}

func (s *Store) ListReviews(ctx context.Context, productID string) ([]reviewmodel.Review, error) {
	defer s.lock()()
	out := []reviewmodel.Review{}
	for _, r := range s.d.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sortBySeq(s.d, out, func(r reviewmodel.Review) string { return r.ID }, true)
	return out, nil
}

// ---- carts ----

func (s *Store) CreateCart(ctx context.Context, c *cartmodel.Cart) error {
	defer s.lock()()
	ensureID(&c.ID)
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	stored := *c
	stored.Items = nil
	s.d.carts[c.ID] = stored
	s.d.track(c.ID)
	return nil
}

func (s *Store) assembleCart(c cartmodel.Cart) cartmodel.Cart {
	c.Items = []cartmodel.CartItem{}
	for _, item := range s.d.cartItems {
		if item.CartID == c.ID {
			c.Items = append(c.Items, item)
		}
	}
	sortBySeq(s.d, c.Items, func(i cartmodel.CartItem) string { return i.ID }, false)
	return c
}

func (s *Store) GetCart(ctx context.Context, id string) (*cartmodel.Cart, error) {
	defer s.lock()()
	c, ok := s.d.carts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c = s.assembleCart(c)
	return &c, nil
}

func (s *Store) ListCarts(ctx context.Context, f store.CartFilter) ([]cartmodel.Cart, error) {
	defer s.lock()()
	out := []cartmodel.Cart{}
	for _, c := range s.d.carts {
		if f.AccountID != "" && c.AccountID != f.AccountID {
			continue
		}
		if f.SessionID != "" && c.SessionID != f.SessionID {
			continue
		}
		out = append(out, s.assembleCart(c))
	}
	sortBySeq(s.d, out, func(c cartmodel.Cart) string { return c.ID }, true)
	return out, nil
}

func (s *Store) AddCartItem(ctx context.Context, item *cartmodel.CartItem) error {
	defer s.lock()()
	if _, ok := s.d.carts[item.CartID]; !ok {
		return store.ErrNotFound
	}
	ensureID(&item.ID)
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.d.cartItems[item.ID] = *item
	s.d.track(item.ID)
	return nil
}

func (s *Store) UpdateCartItem(ctx context.Context, item *cartmodel.CartItem) error {
	defer s.lock()()
	existing, ok := s.d.cartItems[item.ID]
	if !ok || existing.CartID != item.CartID {
		return store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	s.d.cartItems[item.ID] = *item
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	defer s.lock()()
	existing, ok := s.d.cartItems[itemID]
	if !ok || existing.CartID != cartID {
		return store.ErrNotFound
	}
	delete(s.d.cartItems, itemID)
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartID string) (int64, error) {
	defer s.lock()()
	var n int64
	for id, item := range s.d.cartItems {
		if item.CartID == cartID {
			delete(s.d.cartItems, id)
			n++
		}
	}
	return n, nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o *ordermodel.Order) error {
	defer s.lock()()
	ensureID(&o.ID)
	for _, existing := range s.d.orders {
		if existing.OrderNumber == o.OrderNumber {
			return store.ErrDuplicate
		}
	}
	now := s.now()
	if o.PlacedAt.IsZero() {
		o.PlacedAt = now
	}
	o.UpdatedAt = now
	for i := range o.Items {
		ensureID(&o.Items[i].ID)
		o.Items[i].OrderID = o.ID
		if o.Items[i].CreatedAt.IsZero() {
			o.Items[i].CreatedAt = now
		}
		s.d.orderItems[o.Items[i].ID] = o.Items[i]
		s.d.track(o.Items[i].ID)
	}
	stored := *o
	stored.Items = nil
	s.d.orders[o.ID] = stored
	s.d.track(o.ID)
	return nil
}

func (s *Store) assembleOrder(o ordermodel.Order) ordermodel.Order {
	o.Items = []ordermodel.OrderItem{}
	for _, item := range s.d.orderItems {
		if item.OrderID == o.ID {
			o.Items = append(o.Items, item)
		}
	}
	sortBySeq(s.d, o.Items, func(i ordermodel.OrderItem) string { return i.ID }, false)
	return o
}

func (s *Store) GetOrder(ctx context.Context, id string) (*ordermodel.Order, error) {
	defer s.lock()()
	o, ok := s.d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = s.assembleOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]ordermodel.Order, int64, error) {
	defer s.lock()()
	var out []ordermodel.Order
	for _, o := range s.d.orders {
		if f.AccountID != "" && o.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sortBySeq(s.d, out, func(o ordermodel.Order) string { return o.ID }, true)
	total := int64(len(out))
	out = page(out, f.Offset, f.Limit)
	for i := range out {
		out[i] = s.assembleOrder(out[i])
	}
	return out, total, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to ordermodel.Status) error {
	defer s.lock()()
	o, ok := s.d.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.Status != from {
		return store.ErrStaleState
	}
	o.Status = to
	o.UpdatedAt = s.now()
	s.d.orders[id] = o
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p *ordermodel.Payment) error {
	defer s.lock()()
	if _, ok := s.d.orders[p.OrderID]; !ok {
		return store.ErrNotFound
	}
	ensureID(&p.ID)
	if p.AttemptedAt.IsZero() {
		p.AttemptedAt = s.now()
	}
	s.d.payments[p.ID] = *p
	s.d.track(p.ID)
	return nil
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*ordermodel.Payment, error) {
	defer s.lock()()
	if providerPaymentID == "" {
		return nil, store.ErrNotFound
	}
	for _, p := range s.d.payments {
		if p.ProviderPaymentID == providerPaymentID {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]ordermodel.Payment, error) {
	defer s.lock()()
	out := []ordermodel.Payment{}
	for _, p := range s.d.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sortBySeq(s.d, out, func(p ordermodel.Payment) string { return p.ID }, true)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	return out, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *ordermodel.Payment, from ordermodel.PaymentStatus) error {
	defer s.lock()()
	existing, ok := s.d.payments[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Status != from {
		return store.ErrStaleState
	}
	s.d.payments[p.ID] = *p
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *ordermodel.Notification) error {
	defer s.lock()()
	for _, existing := range s.d.notifications {
		if existing.Reference == n.Reference {
			return store.ErrDuplicate
		}
	}
	ensureID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.d.notifications[n.ID] = *n
	s.d.track(n.ID)
	return nil
}

// Notifications 返回某账号的通知，供测试与本地调试查看
func (s *Store) Notifications(accountID string) []ordermodel.Notification {
	defer s.lock()()
	out := []ordermodel.Notification{}
	for _, n := range s.d.notifications {
		if n.AccountID == accountID {
			out = append(out, n)
		}
	}
	sortBySeq(s.d, out, func(n ordermodel.Notification) string { return n.ID }, false)
	return out
}
