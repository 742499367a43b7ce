package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tile-depot/internal/config"
	"tile-depot/internal/dedup"
	"tile-depot/internal/metrics"
	"tile-depot/internal/model"
	"tile-depot/internal/payment"
	"tile-depot/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// paymentService implements PaymentService.
type paymentService struct {
	orderRepo repository.OrderRepository
	events    repository.WebhookEventRepository
	states    StateMachine
	gateway   payment.Gateway
	verifier  *payment.Verifier
	cache     dedup.Cache
	metrics   *metrics.Metrics
	cfg       config.PaymentConfig
	logger    zerolog.Logger
}

// NewPaymentService creates the payment reconciliation service. A nil
// verifier disables signature checks and a nil cache disables the fast path.
func NewPaymentService(
	orderRepo repository.OrderRepository,
	events repository.WebhookEventRepository,
	states StateMachine,
	gateway payment.Gateway,
	verifier *payment.Verifier,
	cache dedup.Cache,
	m *metrics.Metrics,
	cfg config.PaymentConfig,
	logger zerolog.Logger,
) PaymentService {
	if cache == nil {
		cache = dedup.Noop{}
	}
	return &paymentService{
		orderRepo: orderRepo,
		events:    events,
		states:    states,
		gateway:   gateway,
		verifier:  verifier,
		cache:     cache,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With().Str("service", "payment").Logger(),
	}
}

// CreateCheckout opens a hosted checkout for an order the actor may see. The
// order status is not changed; the session id becomes the payment reference.
func (s *paymentService) CreateCheckout(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.CheckoutSession, error) {
	order, amount, err := s.loadPayable(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	params := payment.CheckoutParams{
		LineItems:          checkoutLineItems(order, amount),
		PaymentMethodTypes: payment.MethodTypes(order.PaymentMethod),
		Description:        "Tile Depot Order " + order.OrderNumber,
		ReferenceNumber:    order.OrderNumber,
		SuccessURL:         s.cfg.SuccessURL,
		CancelURL:          s.cfg.CancelURL,
		Metadata:           orderMetadata(order),
	}
	if addr := order.ShippingAddress; addr != nil && addr.FullName != "" {
		params.Billing = &payment.Billing{Name: addr.FullName, Phone: addr.Phone}
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	s.metrics.GatewayRequest("create_checkout", err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create checkout session")
		return nil, fmt.Errorf("%w: %w", model.ErrPaymentGatewayUnavailable, err)
	}

	s.recordReference(ctx, order.ID, session.ID)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("checkout_session_id", session.ID).
		Int64("amount", amount).
		Msg("checkout session created")

	return &model.CheckoutSession{
		ID:          session.ID,
		OrderID:     order.ID,
		CheckoutURL: session.CheckoutURL,
		Status:      session.Status,
	}, nil
}

// CreatePaymentIntent opens a payment intent for the order total. Like a
// checkout it leaves the status alone and becomes the payment reference, so
// payment events that only carry the intent id still find the order.
func (s *paymentService) CreatePaymentIntent(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.PaymentIntent, error) {
	order, amount, err := s.loadPayable(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.IntentParams{
		Amount:             amount,
		PaymentMethodTypes: payment.MethodTypes(order.PaymentMethod),
		Description:        "Tile Depot Order " + order.OrderNumber,
		Metadata:           orderMetadata(order),
	})
	s.metrics.GatewayRequest("create_intent", err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create payment intent")
		return nil, fmt.Errorf("%w: %w", model.ErrPaymentGatewayUnavailable, err)
	}

	s.recordReference(ctx, order.ID, intent.ID)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("payment_intent_id", intent.ID).
		Int64("amount", amount).
		Msg("payment intent created")

	return &model.PaymentIntent{
		ID:        intent.ID,
		OrderID:   order.ID,
		ClientKey: intent.ClientKey,
		Status:    intent.Status,
		Amount:    amount,
	}, nil
}

// loadPayable returns an order the actor may pay for online, with its total
// in centavos.
func (s *paymentService) loadPayable(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.Order, int64, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || (!actor.Privileged() && order.UserID != actor.UserID) {
		return nil, 0, model.ErrOrderNotFound
	}
	if !order.PaymentMethod.Online() {
		return nil, 0, model.ErrOrderNotPayable
	}
	if order.Status != model.StatusPending && order.Status != model.StatusCompleted {
		return nil, 0, model.ErrOrderNotPayable
	}

	amount := payment.ToCentavos(order.Total)
	if amount < payment.MinimumAmountCentavos {
		return nil, 0, model.ErrAmountBelowMinimum
	}
	return order, amount, nil
}

func orderMetadata(order *model.Order) map[string]string {
	return map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
	}
}

func (s *paymentService) recordReference(ctx context.Context, orderID uuid.UUID, reference string) {
	if err := s.orderRepo.SetPaymentReference(ctx, orderID, reference); err != nil {
		// The webhook still carries the order id in its metadata.
		s.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Str("payment_reference", reference).
			Msg("failed to record payment reference")
	}
}

// checkoutLineItems itemises the order when the lines add up to the charged
// amount. Discounts and tax make them differ; one summary line is used then.
func checkoutLineItems(order *model.Order, amount int64) []payment.LineItem {
	items := make([]payment.LineItem, 0, len(order.Items))
	var sum int64
	for _, item := range order.Items {
		unit := payment.ToCentavos(item.UnitPrice)
		sum += unit * int64(item.Quantity)
		items = append(items, payment.LineItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Amount:   unit,
			Currency: payment.Currency,
		})
	}
	if sum == amount && len(items) > 0 {
		return items
	}
	return []payment.LineItem{{
		Name:     "Order " + order.OrderNumber,
		Quantity: 1,
		Amount:   amount,
		Currency: payment.Currency,
	}}
}

func (s *paymentService) GetCheckoutStatus(ctx context.Context, actor model.Actor, sessionID string) (*model.CheckoutSession, error) {
	if sessionID == "" {
		return nil, model.ErrOrderNotFound
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	s.metrics.GatewayRequest("get_checkout", err)
	if err != nil {
		return nil, s.lookupError(err, "checkout_session_id", sessionID)
	}

	orderID, err := s.ownedOrder(ctx, actor, session.Metadata, session.ID)
	if err != nil {
		return nil, err
	}

	return &model.CheckoutSession{
		ID:          session.ID,
		OrderID:     orderID,
		CheckoutURL: session.CheckoutURL,
		Status:      session.Status,
	}, nil
}

func (s *paymentService) GetPaymentIntentStatus(ctx context.Context, actor model.Actor, intentID string) (*model.PaymentIntent, error) {
	if intentID == "" {
		return nil, model.ErrOrderNotFound
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	s.metrics.GatewayRequest("get_intent", err)
	if err != nil {
		return nil, s.lookupError(err, "payment_intent_id", intentID)
	}

	orderID, err := s.ownedOrder(ctx, actor, intent.Metadata, intent.ID)
	if err != nil {
		return nil, err
	}

	// The client key is only handed out at creation.
	return &model.PaymentIntent{
		ID:      intent.ID,
		OrderID: orderID,
		Status:  intent.Status,
		Amount:  intent.Amount,
	}, nil
}

// lookupError maps a failed artifact read: unknown ids look like a missing
// order, anything else is a gateway outage.
func (s *paymentService) lookupError(err error, field, id string) error {
	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
		return model.ErrOrderNotFound
	}
	s.logger.Error().Err(err).Str(field, id).Msg("failed to read payment artifact")
	return fmt.Errorf("%w: %w", model.ErrPaymentGatewayUnavailable, err)
}

// ownedOrder finds the local order behind a remote artifact, through its
// metadata or the stored payment reference, and hides it from anyone but
// its owner and privileged actors.
func (s *paymentService) ownedOrder(ctx context.Context, actor model.Actor, metadata map[string]string, reference string) (uuid.UUID, error) {
	var (
		order *model.Order
		err   error
	)
	if id, perr := uuid.Parse(metadata["order_id"]); perr == nil {
		order, err = s.orderRepo.GetByID(ctx, id)
	} else {
		order, err = s.orderRepo.GetByPaymentReference(ctx, reference)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || (!actor.Privileged() && order.UserID != actor.UserID) {
		return uuid.Nil, model.ErrOrderNotFound
	}
	return order.ID, nil
}

// HandleEvent verifies, deduplicates and applies one webhook delivery.
func (s *paymentService) HandleEvent(ctx context.Context, signature string, body []byte) model.Ack {
	ack := model.Ack{Received: true}

	if s.verifier.Enabled() {
		if err := s.verifier.Verify(signature, body); err != nil {
			s.logger.Warn().Err(err).Msg("webhook signature rejected")
			s.metrics.WebhookEvent("", model.OutcomeRejected)
			ack.Outcome = model.OutcomeRejected
			return ack
		}
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		s.logger.Warn().Err(err).Int("body_bytes", len(body)).Msg("malformed webhook event")
		s.metrics.WebhookEvent("", model.OutcomeMalformed)
		ack.Outcome = model.OutcomeMalformed
		return ack
	}

	logger := s.logger.With().
		Str("event_id", ev.EventID).
		Str("event_type", ev.Type).
		Logger()

	if seen, err := s.cache.Seen(ctx, ev.EventID); err != nil {
		logger.Warn().Err(err).Msg("dedup cache unavailable")
	} else if seen {
		return s.duplicate(ev, ack)
	}

	processed, err := s.events.Record(ctx, ev.EventID, ev.Type)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record webhook event")
		s.metrics.WebhookEvent(ev.Type, model.OutcomeFailed)
		ack.Outcome = model.OutcomeFailed
		return ack
	}
	if processed {
		s.markCached(ctx, logger, ev.EventID)
		return s.duplicate(ev, ack)
	}

	outcome, procErr := s.dispatch(ctx, logger, ev)
	errText := ""
	if procErr != nil {
		outcome = model.OutcomeFailed
		errText = procErr.Error()
		logger.Error().Err(procErr).Msg("failed to process webhook event")
	}

	if err := s.events.MarkProcessed(ctx, ev.EventID, outcome, errText); err != nil {
		logger.Error().Err(err).Msg("failed to mark webhook event processed")
	} else if procErr == nil {
		s.markCached(ctx, logger, ev.EventID)
	}

	s.metrics.WebhookEvent(ev.Type, outcome)
	logger.Info().Str("outcome", outcome).Msg("webhook event handled")

	ack.Outcome = outcome
	return ack
}

func (s *paymentService) duplicate(ev *model.WebhookEvent, ack model.Ack) model.Ack {
	s.metrics.WebhookEvent(ev.Type, model.OutcomeDuplicate)
	s.logger.Debug().Str("event_id", ev.EventID).Msg("duplicate webhook event")
	ack.Duplicate = true
	ack.Outcome = model.OutcomeDuplicate
	return ack
}

func (s *paymentService) markCached(ctx context.Context, logger zerolog.Logger, eventID string) {
	if err := s.cache.Mark(ctx, eventID); err != nil {
		logger.Warn().Err(err).Msg("failed to cache webhook event id")
	}
}

func (s *paymentService) dispatch(ctx context.Context, logger zerolog.Logger, ev *model.WebhookEvent) (string, error) {
	switch ev.Type {
	case model.EventCheckoutPaid, model.EventPaymentPaid:
		return s.applyPaid(ctx, logger, ev)
	case model.EventPaymentFailed:
		return s.applyFailed(ctx, logger, ev)
	default:
		logger.Info().Msg("webhook event type ignored")
		return model.OutcomeIgnored, nil
	}
}

// applyPaid confirms a pending online order. Orders already confirmed or
// further along are left alone; a charge the order cannot take is flagged.
func (s *paymentService) applyPaid(ctx context.Context, logger zerolog.Logger, ev *model.WebhookEvent) (string, error) {
	orderID, ok, err := s.resolveOrder(ctx, ev)
	if err != nil {
		return "", err
	}
	if !ok {
		logger.Warn().Msg("paid event for unknown order")
		return model.OutcomeIgnored, nil
	}

	order, changed, err := s.states.TransitionIf(ctx, orderID, model.StatusConfirmed, model.SystemActor,
		func(o *model.Order) bool {
			return o.PaymentMethod.Online() && !o.Status.ReachedOrPassed(model.StatusConfirmed)
		})
	outcome, err := transitionOutcome(logger, orderID, changed, err)
	if err != nil || outcome != model.OutcomeNoop || order == nil {
		return outcome, err
	}
	return s.checkCapture(logger, order, ev), nil
}

// checkCapture reports a paid event that landed on a cancelled order or on
// one that never settles online. The charge stands at the gateway and the
// stock may already be back on sale, so it is refunded by hand.
func (s *paymentService) checkCapture(logger zerolog.Logger, order *model.Order, ev *model.WebhookEvent) string {
	var outcome string
	switch {
	case order.Status == model.StatusCancelled:
		outcome = model.OutcomePaidAfterCancel
	case !order.PaymentMethod.Online():
		outcome = model.OutcomeUnexpectedPayment
	default:
		return model.OutcomeNoop
	}

	s.metrics.RefundRequired(outcome)
	logger.Error().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("status", string(order.Status)).
		Str("payment_method", string(order.PaymentMethod)).
		Str("artifact_id", ev.ArtifactID).
		Str("payment_intent_id", ev.PaymentIntentID).
		Str("outcome", outcome).
		Msg("payment captured for an order that cannot accept it, refund required")
	return outcome
}

// applyFailed cancels a pending order awaiting online payment and restores
// its stock. Cash on delivery orders are never touched.
func (s *paymentService) applyFailed(ctx context.Context, logger zerolog.Logger, ev *model.WebhookEvent) (string, error) {
	logger.Warn().Str("payment_intent_id", ev.PaymentIntentID).Msg("payment failed")

	orderID, ok, err := s.resolveOrder(ctx, ev)
	if err != nil {
		return "", err
	}
	if !ok {
		return model.OutcomeIgnored, nil
	}

	_, changed, err := s.states.TransitionIf(ctx, orderID, model.StatusCancelled, model.SystemActor,
		func(o *model.Order) bool {
			return o.Status == model.StatusPending && o.PaymentMethod != model.PaymentCOD
		})
	return transitionOutcome(logger, orderID, changed, err)
}

func transitionOutcome(logger zerolog.Logger, orderID uuid.UUID, changed bool, err error) (string, error) {
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		logger.Warn().Str("order_id", orderID.String()).Msg("webhook references a missing order")
		return model.OutcomeIgnored, nil
	case err != nil:
		return "", err
	case changed:
		return model.OutcomeApplied, nil
	default:
		return model.OutcomeNoop, nil
	}
}

// resolveOrder finds the order an event belongs to: metadata first, then the
// stored payment reference.
func (s *paymentService) resolveOrder(ctx context.Context, ev *model.WebhookEvent) (uuid.UUID, bool, error) {
	if ev.OrderID != nil {
		return *ev.OrderID, true, nil
	}

	for _, ref := range []string{ev.ArtifactID, ev.PaymentIntentID} {
		if ref == "" {
			continue
		}
		order, err := s.orderRepo.GetByPaymentReference(ctx, ref)
		if err != nil {
			return uuid.Nil, false, err
		}
		if order != nil {
			return order.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}
