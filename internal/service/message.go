package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

const maxChatLength = 2000

// MessageService stores the chat history of a swap. Live delivery goes
// through the relay; storing here does not push anything.
type MessageService struct {
	messages repository.MessageRepository
	requests repository.RequestRepository
	logger   *slog.Logger
}

func NewMessageService(messages repository.MessageRepository, requests repository.RequestRepository, logger *slog.Logger) *MessageService {
	return &MessageService{messages: messages, requests: requests, logger: logger}
}

// SendMessageInput is the body of POST /api/messages.
type SendMessageInput struct {
	SwapID  string `json:"swapId"`
	Content string `json:"content"`
}

// Send stores a message from actor to the other party of the swap.
func (s *MessageService) Send(ctx context.Context, actor *model.User, in SendMessageInput) (*model.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "content is required")
	}
	if utf8.RuneCountInString(content) > maxChatLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be at most %d characters", maxChatLength))
	}

	swap, err := s.swapFor(ctx, actor, in.SwapID)
	if err != nil {
		return nil, err
	}

	receiver := swap.ToUser.ID
	if swap.RoleOf(actor.ID) == model.RoleRecipient {
		receiver = swap.FromUser.ID
	}

	m := &model.Message{
		SwapID:     swap.ID,
		Sender:     model.Party{ID: actor.ID},
		ReceiverID: receiver,
		Content:    content,
	}
	if err := s.messages.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("service/message: storing: %w", err)
	}
	s.logger.Debug("message stored", slog.String("swap_id", swap.ID), slog.String("sender", actor.ID))
	return m, nil
}

// List returns the history of a swap, oldest first.
func (s *MessageService) List(ctx context.Context, actor *model.User, swapID string) ([]model.Message, error) {
	swap, err := s.swapFor(ctx, actor, swapID)
	if err != nil {
		return nil, err
	}
	list, err := s.messages.ListMessages(ctx, swap.ID)
	if err != nil {
		return nil, fmt.Errorf("service/message: listing: %w", err)
	}
	return list, nil
}

func (s *MessageService) swapFor(ctx context.Context, actor *model.User, swapID string) (*model.Request, error) {
	swapID = strings.TrimSpace(swapID)
	if swapID == "" {
		return nil, apperror.ValidationFailed("swapId", "swapId is required")
	}
	swap, err := s.requests.GetRequest(ctx, swapID)
	if err != nil {
		return nil, fmt.Errorf("service/message: loading swap: %w", err)
	}
	if swap.Kind != model.KindSwap {
		return nil, apperror.NotFound("swap request", swapID)
	}
	if swap.RoleOf(actor.ID) == model.RoleOutsider {
		return nil, apperror.Forbidden("only the parties to a swap may use its chat")
	}
	return swap, nil
}
