package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"tile-depot/internal/config"
	"tile-depot/internal/metrics"
	"tile-depot/internal/model"
	"tile-depot/internal/notify"
	"tile-depot/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	ledger    repository.InventoryLedger
	promoRepo repository.PromoRepository
	notifier  Sender
	metrics   *metrics.Metrics
	cfg       config.OrderConfig
	logger    zerolog.Logger

	now            func() time.Time
	newOrderNumber func(time.Time) string
}

// NewOrderService creates a new order service. notifier and m may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	ledger repository.InventoryLedger,
	promoRepo repository.PromoRepository,
	notifier Sender,
	m *metrics.Metrics,
	cfg config.OrderConfig,
	logger zerolog.Logger,
) OrderService {
	return newOrderService(orderRepo, ledger, promoRepo, notifier, m, cfg, logger)
}

func newOrderService(
	orderRepo repository.OrderRepository,
	ledger repository.InventoryLedger,
	promoRepo repository.PromoRepository,
	notifier Sender,
	m *metrics.Metrics,
	cfg config.OrderConfig,
	logger zerolog.Logger,
) *orderService {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 10 * time.Second
	}
	if cfg.MaxOrderNumberAttempts <= 0 {
		cfg.MaxOrderNumberAttempts = 3
	}
	if notifier == nil {
		notifier = discard{}
	}
	return &orderService{
		orderRepo:      orderRepo,
		ledger:         ledger,
		promoRepo:      promoRepo,
		notifier:       notifier,
		metrics:        m,
		cfg:            cfg,
		logger:         logger.With().Str("service", "order").Logger(),
		now:            time.Now,
		newOrderNumber: NewOrderNumber,
	}
}

const orderSuffixLen = 9

// orderSuffixSpace is 36^9, every base36 suffix of orderSuffixLen digits.
var orderSuffixSpace = new(big.Int).Exp(big.NewInt(36), big.NewInt(orderSuffixLen), nil)

// NewOrderNumber returns ORD-<unix millis>-<9 random upper-case base36 digits>.
func NewOrderNumber(t time.Time) string {
	n, err := rand.Int(rand.Reader, orderSuffixSpace)
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms.
		panic(err)
	}
	suffix := strings.ToUpper(strconv.FormatInt(n.Int64(), 36))
	suffix = strings.Repeat("0", orderSuffixLen-len(suffix)) + suffix
	return fmt.Sprintf("ORD-%d-%s", t.UnixMilli(), suffix)
}

// PlaceOrder validates the request and runs the order transaction, retrying
// the whole unit with a fresh order number on a number collision.
func (s *orderService) PlaceOrder(ctx context.Context, req *model.PlaceOrderRequest) (*model.Order, error) {
	start := s.now()

	if err := s.validatePlaceOrder(req); err != nil {
		s.metrics.OrderFailed("validation", time.Since(start))
		return nil, err
	}

	var (
		order *model.Order
		err   error
	)
	for attempt := 1; attempt <= s.cfg.MaxOrderNumberAttempts; attempt++ {
		order, err = s.placeOnce(ctx, req)
		if !errors.Is(err, model.ErrDuplicateOrderNumber) {
			break
		}
		s.metrics.OrderNumberCollision()
		s.logger.Warn().
			Int("attempt", attempt).
			Str("user_id", req.UserID).
			Msg("order number collision, retrying")
	}
	if err != nil {
		s.metrics.OrderFailed(failureReason(err), time.Since(start))
		return nil, err
	}

	s.metrics.OrderPlaced(string(order.PaymentMethod), string(order.Status), time.Since(start))
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("user_id", order.UserID).
		Str("status", string(order.Status)).
		Str("total", order.Total.StringFixed(2)).
		Int("item_count", len(order.Items)).
		Msg("order placed successfully")

	s.notifier.Send(ctx, notify.OrderPlaced(order))

	return order, nil
}

// placeOnce is one attempt of the order transaction. Any error rolls back
// every reservation and the promo usage.
func (s *orderService) placeOnce(ctx context.Context, req *model.PlaceOrderRequest) (order *model.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	reservations, err := s.reserveAll(ctx, tx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order = &model.Order{
		ID:              uuid.New(),
		OrderNumber:     s.newOrderNumber(now),
		UserID:          req.UserID,
		PaymentMethod:   req.PaymentMethod,
		Status:          initialStatus(req.PaymentMethod, s.cfg.AwaitPaymentConfirmation),
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order.Items = make([]model.OrderItem, len(req.Items))
	for i, line := range req.Items {
		res := reservations[line.ProductID]
		order.Items[i] = model.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Position:  i + 1,
			ProductID: line.ProductID,
			Name:      res.Name,
			UnitPrice: res.UnitPrice,
			Quantity:  line.Quantity,
		}
	}

	var promo *model.PromoCode
	if code := normalisePromoCode(req.PromoCode); code != "" {
		if promo, err = s.redeemPromo(ctx, tx, code, now); err != nil {
			return nil, err
		}
		order.PromoCode = &code
	}

	totals := ComputeTotals(order.Items, promo, s.cfg.TaxRate)
	order.Subtotal = totals.Subtotal
	order.Discount = totals.Discount
	order.Tax = totals.Tax
	order.Total = totals.Total

	if req.DeclaredTotal != nil && !TotalMatches(*req.DeclaredTotal, totals.Total) {
		s.logger.Warn().
			Str("declared", req.DeclaredTotal.StringFixed(2)).
			Str("computed", totals.Total.StringFixed(2)).
			Str("user_id", req.UserID).
			Msg("declared total does not match")
		return nil, model.ErrTotalMismatch
	}

	if err = s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	return order, nil
}

// reserveAll reserves each distinct product once, in ascending product id
// order, so concurrent orders lock rows in the same sequence.
func (s *orderService) reserveAll(ctx context.Context, tx pgx.Tx, items []model.OrderItemRequest) (map[string]*model.Reservation, error) {
	qty := make(map[string]int, len(items))
	for _, item := range items {
		qty[item.ProductID] += item.Quantity
	}

	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reservations := make(map[string]*model.Reservation, len(ids))
	for _, id := range ids {
		res, err := s.ledger.Reserve(ctx, tx, id, qty[id])
		if err != nil {
			s.logger.Info().
				Err(err).
				Str("product_id", id).
				Int("quantity", qty[id]).
				Msg("reservation failed")
			return nil, err
		}
		reservations[id] = res
	}

	return reservations, nil
}

func (s *orderService) redeemPromo(ctx context.Context, tx pgx.Tx, code string, now time.Time) (*model.PromoCode, error) {
	promo, err := s.promoRepo.GetForUpdate(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if promo == nil || !promo.UsableAt(now) {
		s.logger.Debug().Str("promo_code", code).Msg("promo code rejected")
		return nil, model.ErrInvalidPromoCode
	}
	if err := s.promoRepo.IncrementUsage(ctx, tx, code); err != nil {
		return nil, err
	}
	return promo, nil
}

// GetByID returns the order if actor owns it or is privileged. Orders of
// other users are reported as not found.
func (s *orderService) GetByID(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || (!actor.Privileged() && order.UserID != actor.UserID) {
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Order, error) {
	if userID == "" {
		return nil, model.ErrMissingUser
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orderRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// validatePlaceOrder rejects malformed requests before any mutation.
func (s *orderService) validatePlaceOrder(req *model.PlaceOrderRequest) error {
	if req == nil {
		return model.ErrEmptyOrder
	}
	if strings.TrimSpace(req.UserID) == "" {
		return model.ErrMissingUser
	}
	if len(req.Items) == 0 {
		return model.ErrEmptyOrder
	}

	perProduct := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return model.ErrMissingProductID
		}
		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}
		// Lines for the same product are reserved together, so the bound
		// applies to their sum.
		if item.Quantity > model.MaxItemQuantity-perProduct[item.ProductID] {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("quantity too large")
			return model.ErrQuantityTooLarge
		}
		perProduct[item.ProductID] += item.Quantity
	}

	if !req.PaymentMethod.Valid() {
		return model.ErrInvalidPaymentMethod
	}
	if req.DeclaredTotal != nil && req.DeclaredTotal.IsNegative() {
		return model.ErrTotalMismatch
	}

	return nil
}

func normalisePromoCode(code *string) string {
	if code == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*code))
}

// failureReason is the metric label for a failed placement.
func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, model.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, model.ErrInvalidPromoCode):
		return "invalid_promo"
	case errors.Is(err, model.ErrTotalMismatch):
		return "total_mismatch"
	case errors.Is(err, model.ErrDuplicateOrderNumber):
		return "order_number_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// discard is the Sender used when notifications are not wired.
type discard struct{}

func (discard) Send(context.Context, model.Notification) {}
