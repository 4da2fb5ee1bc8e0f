package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/metrics"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

// Sender is the part of the Bot API client the services talk to.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, options ...telegram.MessageOption) (int, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, options ...telegram.MessageOption) (int, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, options ...telegram.MessageOption) (int, error)
}

// AttachmentKind tells the relay how to forward FileID.
type AttachmentKind string

const (
	AttachmentNone     AttachmentKind = ""
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// RelayRequest is one inbound chat payload addressed to a role.
type RelayRequest struct {
	Sender     entities.Actor
	OrderID    string
	Target     entities.Role
	Text       string
	FileID     string
	Attachment AttachmentKind
}

// RelayResult reports how many recipients actually received the payload.
type RelayResult struct {
	Recipients []int64
	Delivered  int
	Blocked    int
}

type RelayServiceInterface interface {
	Relay(ctx context.Context, req RelayRequest) (*RelayResult, error)
	Recipients(ctx context.Context, req RelayRequest) ([]int64, error)
}

type routeKey struct {
	from entities.Role
	to   entities.Role
}

// routePolicy resolves the recipients of a relay or refuses it. order is
// nil when the request names no order.
type routePolicy func(s *RelayService, tx *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error)

// routes is the whole relay authorization table.
var routes = map[routeKey]routePolicy{
	{entities.RoleCustomer, entities.RoleAdmin}:  customerToAdmin,
	{entities.RoleCustomer, entities.RoleTrader}: customerToTrader,
	{entities.RoleAdmin, entities.RoleCustomer}:  adminToCustomer,
	{entities.RoleAdmin, entities.RoleTrader}:    adminToTrader,
	{entities.RoleTrader, entities.RoleCustomer}: traderToCustomer,
	{entities.RoleTrader, entities.RoleAdmin}:    traderToAdmin,
}

type RelayService struct {
	storage     repositories.TxManagerInterface
	orderRepo   repositories.OrderRepositoryInterface
	traderRepo  repositories.TraderRepositoryInterface
	messageRepo repositories.OrderCommentRepositoryInterface
	legalRepo   repositories.LegalLogRepositoryInterface
	subs        SubscriptionServiceInterface
	sender      Sender
	adminIDs    []int64
	logger      *zap.Logger
}

func NewRelayService(
	storage repositories.TxManagerInterface,
	orderRepo repositories.OrderRepositoryInterface,
	traderRepo repositories.TraderRepositoryInterface,
	messageRepo repositories.OrderCommentRepositoryInterface,
	legalRepo repositories.LegalLogRepositoryInterface,
	subs SubscriptionServiceInterface,
	sender Sender,
	adminIDs []int64,
	logger *zap.Logger,
) RelayServiceInterface {
	return &RelayService{
		storage:     storage,
		orderRepo:   orderRepo,
		traderRepo:  traderRepo,
		messageRepo: messageRepo,
		legalRepo:   legalRepo,
		subs:        subs,
		sender:      sender,
		adminIDs:    adminIDs,
		logger:      logger,
	}
}

// Recipients evaluates the gate without logging or sending anything.
func (s *RelayService) Recipients(ctx context.Context, req RelayRequest) ([]int64, error) {
	var out []int64
	err := s.storage.View(ctx, func(tx *repositories.Tx) error {
		var err error
		out, err = s.resolve(tx, req)
		return err
	})
	return out, err
}

// Relay logs one message row per recipient in a single save and only then
// dispatches. A refused relay writes nothing but a relay_denied legal entry.
func (s *RelayService) Relay(ctx context.Context, req RelayRequest) (*RelayResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.FileID == "" {
		return nil, apperrors.NewValidationError("nothing to relay")
	}
	if req.FileID != "" && req.Attachment == AttachmentNone {
		req.Attachment = AttachmentDocument
	}

	var (
		recipients []int64
		order      *entities.Order
	)
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		var err error
		if req.OrderID != "" {
			rec, err := s.orderRepo.FindInTx(tx, req.OrderID)
			if err != nil {
				return err
			}
			order = entities.OrderFromRecord(rec)
		}
		recipients, err = s.resolveFor(tx, req, order)
		if err != nil {
			return err
		}
		for _, to := range recipients {
			msg := &entities.Message{
				OrderID:      req.OrderID,
				SenderRole:   req.Sender.Role,
				SenderID:     req.Sender.ID,
				SenderName:   req.Sender.Name,
				ReceiverRole: req.Target,
				ReceiverID:   to,
				Text:         req.Text,
				FileID:       req.FileID,
			}
			if err := s.messageRepo.CreateInTx(tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAuthorization) {
			metrics.RelayMessages.WithLabelValues("denied").Inc()
			details := fmt.Sprintf("%s %d -> %s on %q: %s", req.Sender.Role, req.Sender.ID, req.Target, req.OrderID, apperrors.UserMessage(err))
			if lerr := s.legalRepo.AppendLegalLog(ctx, req.Sender, entities.LegalRelayDenied, details); lerr != nil {
				s.logger.Error("legal log write failed", zap.Error(lerr))
			}
		}
		return nil, err
	}

	res := &RelayResult{Recipients: recipients}
	caption := relayHeader(req, order) + req.Text
	var firstErr error
	for _, to := range recipients {
		err := s.dispatch(ctx, to, req, caption)
		switch {
		case err == nil:
			res.Delivered++
			metrics.RelayMessages.WithLabelValues("delivered").Inc()
		case errors.Is(err, telegram.ErrForbidden):
			res.Blocked++
			metrics.RelayMessages.WithLabelValues("forbidden").Inc()
			s.logger.Warn("relay recipient blocked the bot", zap.Int64("chat_id", to), zap.String("order_id", req.OrderID))
		default:
			metrics.RelayMessages.WithLabelValues("failed").Inc()
			s.logger.Error("relay dispatch failed", zap.Int64("chat_id", to), zap.String("order_id", req.OrderID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil && res.Delivered == 0 && res.Blocked == 0 {
		return res, apperrors.NewTransportError(firstErr, "message could not be delivered")
	}
	return res, nil
}

func (s *RelayService) dispatch(ctx context.Context, to int64, req RelayRequest, text string) error {
	var err error
	switch req.Attachment {
	case AttachmentPhoto:
		_, err = s.sender.SendPhoto(ctx, to, req.FileID, text)
	case AttachmentDocument:
		_, err = s.sender.SendDocument(ctx, to, req.FileID, text)
	default:
		_, err = s.sender.SendMessage(ctx, to, text)
	}
	return err
}

func relayHeader(req RelayRequest, order *entities.Order) string {
	from := string(req.Sender.Role)
	if req.Sender.Role == entities.RoleAdmin {
		from = "support"
	}
	if order == nil {
		return fmt.Sprintf("[%s]\n", from)
	}
	return fmt.Sprintf("[%s · %s]\n", order.ID, from)
}

func (s *RelayService) resolve(tx *repositories.Tx, req RelayRequest) ([]int64, error) {
	var order *entities.Order
	if req.OrderID != "" {
		rec, err := s.orderRepo.FindInTx(tx, req.OrderID)
		if err != nil {
			return nil, err
		}
		order = entities.OrderFromRecord(rec)
	}
	return s.resolveFor(tx, req, order)
}

func (s *RelayService) resolveFor(tx *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	policy, ok := routes[routeKey{req.Sender.Role, req.Target}]
	if !ok {
		return nil, apperrors.NewAuthorizationError("%s cannot message %s", req.Sender.Role, req.Target)
	}
	if order == nil && req.Target != entities.RoleAdmin {
		return nil, apperrors.NewAuthorizationError("an order is required to message %s", req.Target)
	}
	ids, err := policy(s, tx, req, order)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.NewStateError("no %s is available for this conversation", req.Target)
	}
	return ids, nil
}

func (s *RelayService) isAdmin(id int64) bool {
	for _, a := range s.adminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func (s *RelayService) adminsFor(order *entities.Order) []int64 {
	if order != nil && order.AssignedAdminID != 0 {
		return []int64{order.AssignedAdminID}
	}
	return append([]int64(nil), s.adminIDs...)
}

// chatOpen is the customer/trader gate: quote locked, window not expired,
// trader still enabled.
func (s *RelayService) chatOpen(tx *repositories.Tx, order *entities.Order) error {
	if !order.QuoteLocked || order.AcceptedTraderID == 0 {
		return apperrors.NewAuthorizationError("order %s has no accepted trader", order.ID)
	}
	if order.ChatExpired(tx.Now()) {
		return apperrors.NewAuthorizationError("the chat for order %s has expired", order.ID)
	}
	trader, err := s.traderRepo.FindInTx(tx, order.AcceptedTraderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewAuthorizationError("trader of order %s is not registered", order.ID)
		}
		return err
	}
	if !trader.IsEnabled {
		return apperrors.NewAuthorizationError("trader of order %s is disabled", order.ID)
	}
	return nil
}

func customerToAdmin(s *RelayService, _ *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	if order != nil {
		if err := requireOwner(req.Sender, order); err != nil {
			return nil, err
		}
	}
	return s.adminsFor(order), nil
}

func customerToTrader(s *RelayService, tx *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	if err := requireOwner(req.Sender, order); err != nil {
		return nil, err
	}
	if err := s.chatOpen(tx, order); err != nil {
		return nil, err
	}
	return []int64{order.AcceptedTraderID}, nil
}

func adminToCustomer(s *RelayService, _ *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	if !s.isAdmin(req.Sender.ID) {
		return nil, apperrors.NewAuthorizationError("admin rights required")
	}
	return []int64{order.UserID}, nil
}

func adminToTrader(s *RelayService, tx *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	if !s.isAdmin(req.Sender.ID) {
		return nil, apperrors.NewAuthorizationError("admin rights required")
	}
	if order.AcceptedTraderID != 0 {
		return []int64{order.AcceptedTraderID}, nil
	}
	return s.subs.EligibleTraderIDsInTx(tx)
}

func traderToCustomer(s *RelayService, tx *repositories.Tx, req RelayRequest, order *entities.Order) ([]int64, error) {
	if req.Sender.ID != order.AcceptedTraderID {
		return nil, apperrors.NewAuthorizationError("order %s was not awarded to you", order.ID)
	}
	if err := s.chatOpen(tx, order); err != nil {
		return nil, err
	}
	return []int64{order.UserID}, nil
}

func traderToAdmin(s *RelayService, _ *repositories.Tx, _ RelayRequest, _ *entities.Order) ([]int64, error) {
	return append([]int64(nil), s.adminIDs...), nil
}
