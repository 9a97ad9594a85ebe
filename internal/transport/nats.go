package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// TurnHandler runs one conversation turn
type TurnHandler interface {
	HandleTurn(ctx context.Context, conversationID string, turnSeq int, text string) (model.ConversationTurnResult, error)
}

// TurnRequest is the payload published on the turn subject
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	TurnSeq        int    `json:"turn_seq"`
	Text           string `json:"text"`
}

// TurnResponse is the reply to a turn request. Error is set only when the
// request itself could not be handled.
type TurnResponse struct {
	Result *model.ConversationTurnResult `json:"result,omitempty"`
	Error  *ErrorBody                    `json:"error,omitempty"`
}

// ErrorBody describes a request-level failure
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NATSTransport serves conversation turns over NATS request/reply
type NATSTransport struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	timeout time.Duration
	handler TurnHandler
	logger  *zap.Logger
}

// NewNATSTransport connects to the NATS server
func NewNATSTransport(cfg config.NATSConfig, handler TurnHandler, logger *zap.Logger) (*NATSTransport, error) {
	logger = logging.OrNop(logger).Named("nats")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("blue-horizon-concierge"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.URL))

	return &NATSTransport{
		conn:    conn,
		subject: cfg.Subject,
		timeout: cfg.Timeout,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start subscribes to the turn subject. Members of the "concierge" queue
// group share the load.
func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.QueueSubscribe(nt.subject, "concierge", nt.handleTurnRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.subject, err)
	}
	nt.sub = sub
	nt.logger.Info("subscribed", zap.String("subject", nt.subject))
	return nil
}

func (nt *NATSTransport) handleTurnRequest(msg *nats.Msg) {
	ctx := context.Background()
	if nt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nt.timeout)
		defer cancel()
	}

	if err := msg.Respond(nt.process(ctx, msg.Data)); err != nil {
		nt.logger.Error("failed to send response", zap.Error(err))
	}
}

// process decodes a request, runs the turn and encodes the reply
func (nt *NATSTransport) process(ctx context.Context, data []byte) []byte {
	var req TurnRequest
	if err := json.Unmarshal(data, &req); err != nil {
		nt.logger.Warn("invalid turn request", zap.Error(err))
		return encode(TurnResponse{Error: &ErrorBody{Kind: string(apperr.KindRejectedQuery), Message: "invalid request format"}})
	}

	result, err := nt.handler.HandleTurn(ctx, req.ConversationID, req.TurnSeq, req.Text)
	if err != nil {
		kind := apperr.KindOf(err)
		nt.logger.Warn("turn request failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		return encode(TurnResponse{Error: &ErrorBody{Kind: string(kind), Message: apperr.UserMessage(kind)}})
	}

	nt.logger.Debug("turn answered",
		zap.String("conversation_id", req.ConversationID),
		zap.Int("turn_seq", req.TurnSeq),
		zap.String("intent", string(result.Intent)))
	return encode(TurnResponse{Result: &result})
}

func encode(resp TurnResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"error":{"kind":"tool_error","message":"failed to encode response"}}`)
	}
	return data
}

// Close drains the subscription and closes the connection
func (nt *NATSTransport) Close() error {
	if nt.sub != nil {
		if err := nt.sub.Drain(); err != nil {
			nt.logger.Warn("failed to drain subscription", zap.Error(err))
		}
	}
	if nt.conn != nil {
		nt.conn.Close()
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
