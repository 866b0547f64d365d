package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

// Notifier implements port.Notifier with Lark interactive cards posted to a group chat
type Notifier struct {
	sender     MessageSender
	chatID     string
	apiBaseURL string
	executor   *resilience.Executor
	logger     *zap.Logger
}

// NewNotifier creates a new review card notifier. An empty chatID turns every send
// into a skipped notification.
func NewNotifier(sender MessageSender, cfg Config, executor *resilience.Executor, logger *zap.Logger) *Notifier {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}
	return &Notifier{
		sender:     sender,
		chatID:     cfg.ChatID,
		apiBaseURL: cfg.APIBaseURL,
		executor:   executor,
		logger:     logger,
	}
}

// SendReviewCard posts the review card for one approval record
func (n *Notifier) SendReviewCard(ctx context.Context, req port.ReviewRequest) (*port.NotificationResult, error) {
	if n.sender == nil || n.chatID == "" {
		n.logger.Info("Review card skipped, no chat configured", zap.String("approval_id", req.ApprovalID))
		return &port.NotificationResult{Status: port.NotificationSkipped}, nil
	}

	cardJSON, err := json.Marshal(BuildReviewCard(req, n.apiBaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card content: %w", err)
	}

	var messageID string
	err = n.executor.Execute(ctx, "lark.send_card", func(ctx context.Context) error {
		id, err := n.sender.SendMessage(ctx, "chat_id", n.chatID, "interactive", string(cardJSON))
		if err != nil {
			return err
		}
		messageID = id
		return nil
	}, classifyError)
	if err != nil {
		return nil, fmt.Errorf("failed to send review card: %w", err)
	}

	n.logger.Info("Review card sent",
		zap.String("approval_id", req.ApprovalID),
		zap.String("message_id", messageID))

	return &port.NotificationResult{Status: port.NotificationSent, MessageID: messageID}, nil
}

// classifyError retries rate limiting and transport failures; other API errors are final
func classifyError(err error) resilience.ErrorClassification {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeRateLimited {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

var _ port.Notifier = (*Notifier)(nil)
