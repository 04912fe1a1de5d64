package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/reconcile"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
	client "github.com/mamadbah2/stockcount/pkg/clients/whatsapp"
)

// MessagingService describes the operations the HTTP layer can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Workflow is the part of the counting workflow reachable from chat.
type Workflow interface {
	ResolveItem(code string) models.ItemDefaults
	SubmitEntry(ctx context.Context, req models.EntryRequest, teamMember string) (models.SubmitResult, error)
	SetLocationStatus(ctx context.Context, location string, status models.LocationStatus, change models.StatusChange) (counting.StatusResult, error)
	Dashboard() models.Dashboard
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg      config.WhatsAppConfig
	client   client.Client
	workflow Workflow
	logger   *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, workflow Workflow, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:      cfg,
		client:   client,
		workflow: workflow,
		logger:   logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

var commandReplies = map[models.CommandType]models.AutomationReply{
	models.CommandCount: {
		Title:   "Count",
		Message: "Send the code, the location and the quantity, e.g. /count A100 Rak A-1 12. Codes may carry batch and expiry: A100,LOT7,20261231.",
	},
	models.CommandEmpty: {
		Title:   "Empty location",
		Message: "Send the location to mark empty, e.g. /empty Rak A-1.",
	},
	models.CommandDamage: {
		Title:   "Damage report",
		Message: "Send the location and what is damaged, e.g. /damage Rak A-1: broken shelf.",
	},
	models.CommandUnknown: {
		Title:   "Command Help",
		Message: "Unknown command. Supported: /count, /empty, /damage, /status.",
	},
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads. Every message gets a
// reply; the first delivery error is returned after all are handled.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				sender := change.Value.SenderName(msg)
				if err := s.handleInboundMessage(ctx, msg, sender); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage, sender string) error {
	text := extractMessageText(msg)
	if text == "" {
		s.logger.Debug("ignoring message without text", zap.String("type", msg.Type))
		return nil
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", msg.From),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	reply := s.dispatch(ctx, cmd, sender)
	return s.SendOutbound(ctx, models.OutboundMessageRequest{To: msg.From, Message: reply})
}

// dispatch runs a command and returns the reply text.
func (s *MetaWhatsAppService) dispatch(ctx context.Context, cmd models.Command, sender string) string {
	switch cmd.Type {
	case models.CommandCount:
		return s.handleCount(ctx, cmd, sender)
	case models.CommandEmpty:
		return s.handleEmpty(ctx, cmd, sender)
	case models.CommandDamage:
		return s.handleDamage(ctx, cmd, sender)
	case models.CommandStatus:
		return reporting.ProgressSummary(s.workflow.Dashboard())
	default:
		return help(models.CommandUnknown)
	}
}

func (s *MetaWhatsAppService) handleCount(ctx context.Context, cmd models.Command, sender string) string {
	code, location, qty, ok := parseCountArgs(cmd.Args)
	if !ok {
		return help(models.CommandCount)
	}

	item := s.workflow.ResolveItem(code)
	res, err := s.workflow.SubmitEntry(ctx, models.EntryRequest{
		SKU:         item.SKU,
		ItemName:    item.Name,
		Location:    location,
		BatchNumber: item.BatchNumber,
		ExpiryDate:  item.ExpiryDate,
		PhysicalQty: qty,
	}, sender)
	if err != nil {
		return s.failureReply(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Saved %d %s of %s at %s.", qty, item.Unit, firstNonEmpty(item.Name, item.SKU), res.Record.Location)
	if !item.Known {
		b.WriteString(" Code not in the catalog.")
	} else {
		fmt.Fprintf(&b, " Total counted %d of %d in system.", res.Evaluation.GlobalTotal, res.Evaluation.SystemStock)
	}
	if res.SavedLocally {
		b.WriteString(" Stored offline, it will sync later.")
	}
	if res.Warning != "" {
		fmt.Fprintf(&b, " Note: %s.", res.Warning)
	}
	return b.String()
}

func (s *MetaWhatsAppService) handleEmpty(ctx context.Context, cmd models.Command, sender string) string {
	location := strings.Join(cmd.Args, " ")
	if location == "" {
		return help(models.CommandEmpty)
	}
	res, err := s.workflow.SetLocationStatus(ctx, location, models.StatusEmpty, models.StatusChange{ReportedBy: sender})
	if err != nil {
		return s.failureReply(err)
	}
	return fmt.Sprintf("%s marked empty.", res.State.Location)
}

func (s *MetaWhatsAppService) handleDamage(ctx context.Context, cmd models.Command, sender string) string {
	location, description := parseDamageArgs(cmd.Args)
	if location == "" || description == "" {
		return help(models.CommandDamage)
	}
	res, err := s.workflow.SetLocationStatus(ctx, location, models.StatusDamaged, models.StatusChange{
		Description: description,
		ReportedBy:  sender,
	})
	if err != nil {
		return s.failureReply(err)
	}
	return fmt.Sprintf("Damage at %s recorded: %s", res.State.Location, res.State.DamageDescription)
}

func (s *MetaWhatsAppService) failureReply(err error) string {
	switch {
	case errors.Is(err, reconcile.ErrPhotoRequired):
		return "This count differs from the system by more than 10%. Please submit it from the count form with a photo."
	case errors.Is(err, reconcile.ErrNotesRequired):
		return "This count differs from the system by more than 10%. Please add a note explaining the difference."
	case counting.IsValidation(err):
		return fmt.Sprintf("Not saved: %s", err.Error())
	}
	s.logger.Error("chat command failed", zap.Error(err))
	return "Not saved: the count service is unavailable, please try again."
}

// SendOutbound lets internal operators push quick notifications via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	return err
}

// parseCountArgs reads "<code> <location words...> <qty>".
func parseCountArgs(args []string) (code, location string, qty int, ok bool) {
	if len(args) < 3 {
		return "", "", 0, false
	}
	n, err := parseQuantity(args[len(args)-1])
	if err != nil {
		return "", "", 0, false
	}
	return args[0], strings.Join(args[1:len(args)-1], " "), n, true
}

// parseDamageArgs splits "<location>: <description>"; without a colon the
// first word is the location.
func parseDamageArgs(args []string) (location, description string) {
	joined := strings.Join(args, " ")
	if idx := strings.Index(joined, ":"); idx >= 0 {
		return strings.TrimSpace(joined[:idx]), strings.TrimSpace(joined[idx+1:])
	}
	if len(args) < 2 {
		return joined, ""
	}
	return args[0], strings.Join(args[1:], " ")
}

func parseQuantity(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid quantity %q", raw)
	}
	return n, nil
}

func help(t models.CommandType) string {
	reply := commandReplies[t]
	return fmt.Sprintf("%s\n%s", reply.Title, reply.Message)
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return strings.TrimSpace(msg.Text.Body)
	}
	if msg.Interactive != nil && msg.Interactive.ButtonReply != nil {
		return msg.Interactive.ButtonReply.ID
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
