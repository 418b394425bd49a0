// Package chat holds the rules of the chat core: who may open, rename, grow
// or delete a room, who may post or delete messages, and how rooms and
// messages are presented to one caller. Persistence lives behind
// store.Store; side effects are handed to an events.Publisher after the
// store call commits.
package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/models"
	"github.com/pliu/chatcore/internal/store"
	"github.com/samber/lo"
)

const DefaultSystemSender = "system"

type Config struct {
	ReceiptMode  models.ReceiptMode
	SystemSender string
}

type Service struct {
	store        store.Store
	guard        *Guard
	events       events.Publisher
	log          *slog.Logger
	validate     *validator.Validate
	receiptMode  models.ReceiptMode
	systemSender string
	now          func() time.Time
	newID        func() string
}

type Option func(*Service)

// WithClock replaces time.Now; tests use it to get stable ordering.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(st store.Store, contacts store.Contacts, publisher events.Publisher, log *slog.Logger, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:        st,
		guard:        NewGuard(contacts),
		events:       publisher,
		log:          log,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		receiptMode:  cfg.ReceiptMode,
		systemSender: cfg.SystemSender,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	if s.receiptMode == "" {
		s.receiptMode = models.ReceiptsPerMessage
	}
	if s.systemSender == "" {
		s.systemSender = DefaultSystemSender
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ReceiptMode() models.ReceiptMode { return s.receiptMode }

// NormalizeID is the canonical form of an account id: trimmed, lower case.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func normalizeIDs(ids []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(ids, func(id string, _ int) string { return NormalizeID(id) })))
}

func (s *Service) enqueue(evt events.Event) {
	if !s.events.Enqueue(evt) {
		s.log.Warn("Realtime event not queued", "kind", evt.Kind, "room_id", evt.RoomID)
	}
}

// check runs struct validation and turns failures into apperr validation
// errors naming the offending fields.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("invalid request: %v", err)
	}
	problems := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fe.Field())
		case "min":
			return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
		case "max":
			return fmt.Sprintf("%s is too long", fe.Field())
		default:
			return fmt.Sprintf("%s is invalid", fe.Field())
		}
	})
	return apperr.Validation("%s", strings.Join(problems, "; "))
}
