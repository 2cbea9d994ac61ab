// Package service runs the order and payment workflow: order placement with
// stock decrement in one transaction, payment initiation against the external
// provider, provider confirmation, cancellation and the confirmation consumer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-storefront/apps/inventory"
	"go-storefront/apps/order/model"
	userservice "go-storefront/apps/user/service"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/audit"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/payment"
	"go-storefront/pkg/queue"
	"go-storefront/pkg/store"
	"go-storefront/pkg/tracer"
	"go-storefront/pkg/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPaymentTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	// 订单号冲突时最多重试次数
	numberAttempts = 3
	auditService   = "order"
)

type Deps struct {
	Store     store.Store
	Reactor   *inventory.Reactor
	Provider  payment.Provider
	Publisher queue.Publisher
	Audit     audit.Sink
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

type Options struct {
	PaymentTimeout time.Duration
	PublishTimeout time.Duration
}

type Service struct {
	store     store.Store
	reactor   *inventory.Reactor
	provider  payment.Provider
	publisher queue.Publisher
	audit     audit.Sink
	metrics   *metrics.Metrics
	log       *zap.Logger
	opts      Options

	now     func() time.Time
	numbers func(time.Time) string
}

func New(d Deps, opts Options) *Service {
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = defaultPaymentTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if d.Audit == nil {
		d.Audit = audit.NewMemorySink()
	}
	log := d.Log.Named("order")
	if d.Reactor == nil {
		d.Reactor = inventory.New(log, d.Metrics)
	}
	return &Service{
		store:     d.Store,
		reactor:   d.Reactor,
		provider:  d.Provider,
		publisher: d.Publisher,
		audit:     d.Audit,
		metrics:   d.Metrics,
		log:       log,
		opts:      opts,
		now:       time.Now,
		numbers:   NewOrderNumber,
	}
}

// NewOrderNumber ORD-日期-8位随机串
func NewOrderNumber(now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(token))
}

type LineInput struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderInput 从购物车或直接给出明细下单，二选一
type CreateOrderInput struct {
	CartID            string      `json:"cart_id"`
	Items             []LineInput `json:"items"`
	ShippingAddressID *string     `json:"shipping_address_id"`
	BillingAddressID  *string     `json:"billing_address_id"`
}

func orderResource(o *model.Order) authz.Resource {
	return authz.Resource{Kind: authz.KindOrder, OwnerID: o.AccountID}
}

// CreateOrder 下单：计价、生成订单号，并在同一事务内写订单、扣库存、清空购物车
func (s *Service) CreateOrder(ctx context.Context, actor authz.Actor, in CreateOrderInput) (_ *model.Order, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "order.create", attribute.String("account_id", actor.AccountID))
	defer func() {
		tracer.End(span, err)
		s.metrics.ObserveOperation("order.create", start, err)
	}()

	// 1. 权限
	if err := authz.CheckClass(actor, authz.KindOrder, authz.ActionCreate).Err(); err != nil {
		return nil, err
	}

	// 2. 明细来源
	requested, cartItems, err := s.requestedLines(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	// 3. 收货/账单地址必须属于下单人
	if err := s.checkAddresses(ctx, actor.AccountID, in); err != nil {
		return nil, err
	}

	// 4. 按当前目录价计价
	lines, currency, err := s.priceLines(ctx, requested)
	if err != nil {
		return nil, err
	}

	// 5. 写入，订单号冲突时重新生成
	var order *model.Order
	for attempt := 1; ; attempt++ {
		now := s.now()
		order, err = model.NewOrder(actor.AccountID, s.numbers(now), currency, lines,
			model.Addresses{Shipping: in.ShippingAddressID, Billing: in.BillingAddressID}, now)
		if err != nil {
			return nil, err
		}
		err = s.store.Transaction(ctx, func(tx store.Store) error {
			if err := tx.CreateOrder(ctx, order); err != nil {
				return err
			}
			for _, item := range order.Items {
				if err := s.reactor.OnOrderItemCreated(ctx, tx, item); err != nil {
					return err
				}
			}
			if in.CartID == "" {
				return nil
			}
			// 条数不一致时购物车已被结算或改动
			n, err := tx.ClearCart(ctx, in.CartID)
			if err != nil {
				return err
			}
			if n != cartItems {
				return apperr.Conflict("This cart has already been checked out or was modified.")
			}
			return nil
		})
		if errors.Is(err, store.ErrDuplicate) && attempt < numberAttempts {
			s.log.Warn("order number collision, retrying", zap.String("order_number", order.OrderNumber))
			continue
		}
		break
	}
	if err != nil {
		var stockErr *inventory.StockError
		if errors.As(err, &stockErr) {
			return nil, apperr.Conflict(fmt.Sprintf("Insufficient stock for variant %s.", stockErr.VariantID))
		}
		return nil, err
	}

	// 6. 指标、审计、异步确认
	s.metrics.OrderCreated()
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("account_id", order.AccountID),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	s.audit.Record(ctx, audit.Entry{
		Service:  auditService,
		Action:   audit.ActionOrderCreated,
		EntityID: order.ID,
		ActorID:  actor.AccountID,
		Data: map[string]any{
			"order_number": order.OrderNumber,
			"total_amount": order.TotalAmount.StringFixed(2),
			"items":        len(order.Items),
		},
	})
	s.publishConfirmation(ctx, order)

	return s.store.GetOrder(ctx, order.ID)
}

// requestedLines 从购物车下单时同时返回读到的明细条数
func (s *Service) requestedLines(ctx context.Context, actor authz.Actor, in CreateOrderInput) ([]LineInput, int64, error) {
	var raw []LineInput
	switch {
	case in.CartID != "" && len(in.Items) > 0:
		return nil, 0, apperr.Validation("", validation.Errors{"non_field_errors": "Provide either cart_id or items, not both."})
	case in.CartID != "":
		c, err := s.store.GetCart(ctx, in.CartID)
		if err != nil {
			return nil, 0, err
		}
		res := authz.Resource{Kind: authz.KindCart, OwnerID: c.AccountID, SessionID: c.SessionID}
		if err := authz.CheckObject(actor, res, authz.ActionUpdate).Err(); err != nil {
			return nil, 0, err
		}
		for _, item := range c.Items {
			raw = append(raw, LineInput{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		if len(raw) == 0 {
			return nil, 0, apperr.Validation("", validation.Errors{"cart_id": "The cart is empty."})
		}
	default:
		raw = in.Items
	}
	lines, err := mergeLines(raw)
	if err != nil {
		return nil, 0, err
	}
	var cartItems int64
	if in.CartID != "" {
		cartItems = int64(len(raw))
	}
	return lines, cartItems, nil
}

// mergeLines 合并同一规格的数量，保持首次出现的顺序
func mergeLines(raw []LineInput) ([]LineInput, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("", validation.Errors{"items": "An order needs at least one item."})
	}

	index := map[string]int{}
	var out []LineInput
	for i, l := range raw {
		if l.VariantID == "" || l.Quantity <= 0 {
			return nil, apperr.Validation("", validation.Errors{
				fmt.Sprintf("items[%d]", i): "A variant_id and a quantity greater than 0 are required.",
			})
		}
		if j, ok := index[l.VariantID]; ok {
			out[j].Quantity += l.Quantity
			continue
		}
		index[l.VariantID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) checkAddresses(ctx context.Context, accountID string, in CreateOrderInput) error {
	fields := map[string]*string{
		"shipping_address_id": in.ShippingAddressID,
		"billing_address_id":  in.BillingAddressID,
	}
	errs := validation.Errors{}
	for field, id := range fields {
		if id == nil {
			continue
		}
		err := userservice.OwnedAddress(ctx, s.store, accountID, *id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			errs.Add(field, "Invalid address.")
		case err != nil:
			return err
		}
	}
	return errs.Err()
}

// priceLines 单价取规格价，否则取商品价；所有明细币种必须一致
func (s *Service) priceLines(ctx context.Context, requested []LineInput) ([]model.Line, string, error) {
	var (
		lines    []model.Line
		currency string
	)
	errs := validation.Errors{}
	for i, r := range requested {
		field := fmt.Sprintf("items[%d]", i)
		v, err := s.store.GetVariant(ctx, r.VariantID)
		if errors.Is(err, store.ErrNotFound) {
			errs.Add(field, "Invalid variant.")
			continue
		}
		if err != nil {
			return nil, "", err
		}
		p, err := s.store.GetProduct(ctx, v.ProductID)
		if err != nil {
			return nil, "", err
		}
		if !p.Purchasable() {
			errs.Add(field, "This product is not available.")
			continue
		}
		if currency == "" {
			currency = p.Currency
		} else if currency != p.Currency {
			errs.Add(field, "All items must share one currency.")
			continue
		}
		lines = append(lines, model.Line{
			VariantID:   v.ID,
			ProductName: p.Name,
			SKU:         v.SKU,
			Quantity:    r.Quantity,
			UnitPrice:   v.EffectivePrice(p),
		})
	}
	if err := errs.Err(); err != nil {
		return nil, "", err
	}
	return lines, currency, nil
}

// publishConfirmation 投递确认消息，不阻塞下单请求
func (s *Service) publishConfirmation(ctx context.Context, o *model.Order) {
	if s.publisher == nil {
		return
	}
	msg := queue.Message{
		Type:        queue.OrderConfirmation,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		EnqueuedAt:  s.now(),
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
		defer cancel()
		if err := s.publisher.Publish(pctx, msg); err != nil {
			s.log.Error("publish order confirmation failed",
				zap.String("order_id", msg.OrderID),
				zap.Error(err))
		}
	}()
}

func (s *Service) load(ctx context.Context, actor authz.Actor, id string, action authz.Action) (*model.Order, error) {
	if err := authz.CheckClass(actor, authz.KindOrder, action).Err(); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckObject(actor, orderResource(o), action).Err(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, actor authz.Actor, id string) (*model.Order, error) {
	return s.load(ctx, actor, id, authz.ActionRead)
}

// OrderQuery 管理员可按账号筛选，其他人只能看到自己的订单
type OrderQuery struct {
	AccountID string
	Status    string
	Page      int
	PageSize  int
}

func (s *Service) ListOrders(ctx context.Context, actor authz.Actor, q OrderQuery) ([]model.Order, int64, error) {
	if err := authz.CheckClass(actor, authz.KindOrder, authz.ActionRead).Err(); err != nil {
		return nil, 0, err
	}
	f := store.OrderFilter{AccountID: actor.AccountID}
	if actor.IsAdmin() {
		f.AccountID = q.AccountID
	}
	if q.Status != "" {
		status := model.Status(q.Status)
		if !status.Valid() {
			return nil, 0, apperr.Validation("", validation.Errors{"status": "Invalid status."})
		}
		f.Status = status
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	f.Offset, f.Limit = (page-1)*size, size
	return s.store.ListOrders(ctx, f)
}

// Cancel 订单所有者或管理员取消待支付/已支付订单，同一事务内归还库存
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, id string) (*model.Order, error) {
	o, err := s.load(ctx, actor, id, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, actor, o, model.StatusCancelled); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// UpdateStatus 管理员按状态机推进订单
func (s *Service) UpdateStatus(ctx context.Context, actor authz.Actor, id string, to model.Status) (*model.Order, error) {
	o, err := s.load(ctx, actor, id, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(authz.ReasonAdminOnly)
	}
	if !to.Valid() {
		return nil, apperr.Validation("", validation.Errors{"status": "Invalid status."})
	}
	if err := s.transition(ctx, actor, o, to); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// transition 状态比较后更新；取消时归还库存
func (s *Service) transition(ctx context.Context, actor authz.Actor, o *model.Order, to model.Status) error {
	if !o.Status.CanTransition(to) {
		return apperr.Conflict(fmt.Sprintf("Cannot move an order from %s to %s.", o.Status, to))
	}
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, to); err != nil {
			return err
		}
		if to != model.StatusCancelled {
			return nil
		}
		for _, item := range o.Items {
			if err := s.reactor.Restock(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)))
	s.audit.Record(ctx, audit.Entry{
		Service:  auditService,
		Action:   audit.ActionOrderStatus,
		EntityID: o.ID,
		ActorID:  actor.AccountID,
		Data:     map[string]any{"from": string(o.Status), "to": string(to)},
	})
	return nil
}

// History 订单的审计记录，仅管理员
func (s *Service) History(ctx context.Context, actor authz.Actor, id string, limit int64) ([]audit.Entry, error) {
	if _, err := s.load(ctx, actor, id, authz.ActionRead); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(authz.ReasonAdminOnly)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.audit.History(ctx, id, limit)
}
