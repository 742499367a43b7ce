package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tile-depot/internal/metrics"
	"tile-depot/internal/model"
	"tile-depot/internal/notify"
	"tile-depot/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// stateMachine implements StateMachine on top of the order row lock.
type stateMachine struct {
	orderRepo repository.OrderRepository
	ledger    repository.InventoryLedger
	notifier  Sender
	metrics   *metrics.Metrics
	txTimeout time.Duration
	logger    zerolog.Logger
}

// NewStateMachine creates the order state machine. notifier and m may be nil.
func NewStateMachine(
	orderRepo repository.OrderRepository,
	ledger repository.InventoryLedger,
	notifier Sender,
	m *metrics.Metrics,
	txTimeout time.Duration,
	logger zerolog.Logger,
) StateMachine {
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = discard{}
	}
	return &stateMachine{
		orderRepo: orderRepo,
		ledger:    ledger,
		notifier:  notifier,
		metrics:   m,
		txTimeout: txTimeout,
		logger:    logger.With().Str("service", "state_machine").Logger(),
	}
}

func (m *stateMachine) Transition(ctx context.Context, orderID uuid.UUID, target model.OrderStatus, actor model.Actor) (*model.Order, error) {
	order, _, err := m.TransitionIf(ctx, orderID, target, actor, nil)
	return order, err
}

func (m *stateMachine) Cancel(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error) {
	if userID == "" {
		return nil, model.ErrMissingUser
	}
	return m.Transition(ctx, orderID, model.StatusCancelled, model.UserActor(userID))
}

func (m *stateMachine) TransitionIf(ctx context.Context, orderID uuid.UUID, target model.OrderStatus, actor model.Actor, cond Condition) (*model.Order, bool, error) {
	if !target.Valid() {
		return nil, false, model.ErrInvalidStatus
	}

	order, from, changed, err := m.apply(ctx, orderID, target, actor, cond)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		m.logger.Debug().
			Str("order_id", orderID.String()).
			Str("status", string(order.Status)).
			Str("target", string(target)).
			Msg("transition skipped")
		return order, false, nil
	}

	m.metrics.Transition(string(from), string(target), string(actor.Kind))
	m.logger.Info().
		Str("order_id", order.ID.String()).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actor", string(actor.Kind)).
		Msg("order status changed")

	m.notifier.Send(ctx, notify.StatusChanged(order))

	return order, true, nil
}

// apply runs the locked read, the checks and the write in one transaction.
func (m *stateMachine) apply(
	ctx context.Context,
	orderID uuid.UUID,
	target model.OrderStatus,
	actor model.Actor,
	cond Condition,
) (order *model.Order, from model.OrderStatus, changed bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.txTimeout)
	defer cancel()

	tx, err := m.orderRepo.BeginTx(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, "", false, fmt.Errorf("failed to change order status: %w", err)
	}

	defer func() {
		if err != nil || !changed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				m.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err = m.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, "", false, err
	}
	if order == nil || (actor.Kind == model.ActorUser && order.UserID != actor.UserID) {
		return nil, "", false, model.ErrOrderNotFound
	}

	from = order.Status
	if cond != nil && !cond(order) {
		return order, from, false, nil
	}

	if !model.CanTransition(from, target) {
		m.logger.Info().
			Str("order_id", orderID.String()).
			Str("from", string(from)).
			Str("to", string(target)).
			Msg("illegal transition rejected")
		return nil, "", false, &model.IllegalTransitionError{OrderID: orderID, From: from, To: target}
	}
	if !model.ActorMayTransition(actor, from, target) {
		return nil, "", false, model.ErrTransitionForbidden
	}

	if target == model.StatusCancelled {
		if err = m.restoreStock(ctx, tx, order.Items); err != nil {
			return nil, "", false, err
		}
	}

	updatedAt, err := m.orderRepo.UpdateStatus(ctx, tx, orderID, target)
	if err != nil {
		return nil, "", false, err
	}

	if err = tx.Commit(ctx); err != nil {
		m.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to commit transaction")
		return nil, "", false, fmt.Errorf("failed to change order status: %w", err)
	}

	order.Status = target
	order.UpdatedAt = updatedAt
	return order, from, true, nil
}

// restoreStock returns every snapshot quantity to the ledger in ascending
// product id order.
func (m *stateMachine) restoreStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	qty := make(map[string]int, len(items))
	for _, item := range items {
		qty[item.ProductID] += item.Quantity
	}

	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := m.ledger.Restore(ctx, tx, id, qty[id]); err != nil {
			m.logger.Error().
				Err(err).
				Str("product_id", id).
				Int("quantity", qty[id]).
				Msg("failed to restore stock")
			return err
		}
	}
	return nil
}
