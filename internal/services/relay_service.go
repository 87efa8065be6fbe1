package services

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/events"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/metrics"
	"github.com/celery8911/InnerLedger/internal/models"
	"github.com/celery8911/InnerLedger/internal/ratelimit"
	"github.com/celery8911/InnerLedger/internal/repository"
)

// Error kinds returned by RelayService.Relay. Their text is the message sent to clients.
var (
	ErrRelayerNotConfigured   = errors.New("Relayer not configured")
	ErrInvalidRequest         = errors.New("Invalid request format")
	ErrTargetNotAllowed       = errors.New("Target contract not allowed")
	ErrRateLimited            = errors.New("Rate limit exceeded. Please try again later.")
	ErrGasLimitExceeded       = errors.New("Gas limit exceeded")
	ErrSenderNotAuthenticated = errors.New("Sender not authenticated")
	ErrRateLimiterUnavailable = errors.New("Rate limiter unavailable")
	ErrSubmissionFailed       = errors.New("Relay failed")
)

// DefaultMaxGas is the largest inner gas the relayer pays for.
const DefaultMaxGas = 500000

// RelayError carries the HTTP status and client message of a rejected relay.
type RelayError struct {
	Status     int
	Kind       error
	Message    string
	Cause      error
	RetryAfter time.Duration
}

func (e *RelayError) Error() string { return e.Message }

func (e *RelayError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func reject(status int, kind error) *RelayError {
	return &RelayError{Status: status, Kind: kind, Message: kind.Error()}
}

// RelayInput one relay call as received from the transport
type RelayInput struct {
	Request        *metatx.WireRequest
	IdempotencyKey string
	// AuthSubject lowercase address from a verified wallet JWT, empty when unauthenticated
	AuthSubject string
	ClientIP    string
}

// RelayResult outcome of an accepted relay
type RelayResult struct {
	Hash     common.Hash
	Replayed bool // answered from an idempotency record, nothing submitted
	Limit    ratelimit.Decision
}

// RelayPolicy relay endpoint limits
type RelayPolicy struct {
	Ledger            common.Address // zero disables the target allow-list
	MaxGas            uint64
	RequireSenderAuth bool
	IdempotencyTTL    time.Duration
}

// RelayOption configures optional collaborators
type RelayOption func(*RelayService)

func WithAuditLog(repo repository.RelayTransactionRepository) RelayOption {
	return func(s *RelayService) { s.txRepo = repo }
}

func WithIdempotency(repo repository.IdempotencyRepository) RelayOption {
	return func(s *RelayService) { s.idemRepo = repo }
}

func WithWatcher(w *TxWatcherService) RelayOption {
	return func(s *RelayService) { s.watcher = w }
}

func WithEventBus(bus *events.Bus) RelayOption {
	return func(s *RelayService) { s.bus = bus }
}

func WithRelayClock(now func() time.Time) RelayOption {
	return func(s *RelayService) { s.now = now }
}

// RelayService validates signed forward requests and submits them through the forwarder
// from the relayer account.
type RelayService struct {
	forwarder ChainForwarder
	limiter   ratelimit.Limiter
	policy    RelayPolicy

	txRepo   repository.RelayTransactionRepository
	idemRepo repository.IdempotencyRepository
	watcher  *TxWatcherService
	bus      *events.Bus

	logger *logrus.Logger
	now    func() time.Time
}

// NewRelayService forwarder nil means no relayer credential: every call fails with ErrRelayerNotConfigured.
func NewRelayService(forwarder ChainForwarder, limiter ratelimit.Limiter, policy RelayPolicy, logger *logrus.Logger, opts ...RelayOption) *RelayService {
	if policy.MaxGas == 0 {
		policy.MaxGas = DefaultMaxGas
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &RelayService{
		forwarder: forwarder,
		limiter:   limiter,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if policy.Ledger == (common.Address{}) {
		logger.Warn("⚠️ INNER_LEDGER_ADDRESS not set, relay target allow-list is disabled")
	}
	return s
}

// Configured reports whether a relayer credential is attached.
func (s *RelayService) Configured() bool { return s.forwarder != nil }

// Policy returns the active limits.
func (s *RelayService) Policy() RelayPolicy { return s.policy }

// Limiter exposes the rate limit store for admin resets.
func (s *RelayService) Limiter() ratelimit.Limiter { return s.limiter }

// Relay runs the admission gates in order and submits the request. Every rejection is a *RelayError.
func (s *RelayService) Relay(ctx context.Context, in RelayInput) (*RelayResult, error) {
	start := s.now()
	res, err := s.relay(ctx, in)

	outcome := "submitted"
	if err != nil {
		outcome = outcomeOf(err)
	} else if res.Replayed {
		outcome = "replayed"
	}
	metrics.RelayRequests.WithLabelValues(outcome).Inc()
	metrics.RelayDuration.WithLabelValues(outcome).Observe(s.now().Sub(start).Seconds())
	return res, err
}

func (s *RelayService) relay(ctx context.Context, in RelayInput) (*RelayResult, error) {
	if s.forwarder == nil {
		s.logger.Error("Relayer not configured: missing forwarder address or relayer credential")
		return nil, reject(http.StatusInternalServerError, ErrRelayerNotConfigured)
	}

	req := in.Request
	if !wellFormedShape(req) {
		return nil, reject(http.StatusBadRequest, ErrInvalidRequest)
	}
	sender := ratelimit.NormalizeKey(req.From)

	if s.policy.Ledger != (common.Address{}) && !strings.EqualFold(strings.TrimSpace(req.To), s.policy.Ledger.Hex()) {
		s.logger.WithFields(logrus.Fields{"sender": sender, "to": req.To}).Warn("relay target rejected")
		return nil, reject(http.StatusForbidden, ErrTargetNotAllowed)
	}

	// unauthenticated claims must not spend the sender's window or read its idempotency records
	if s.policy.RequireSenderAuth && !strings.EqualFold(in.AuthSubject, sender) {
		return nil, reject(http.StatusUnauthorized, ErrSenderNotAuthenticated)
	}

	decision, err := s.limiter.Allow(ctx, sender)
	if err != nil {
		s.logger.WithError(err).WithField("sender", sender).Error("rate limit store unavailable")
		e := reject(http.StatusServiceUnavailable, ErrRateLimiterUnavailable)
		e.Cause = err
		return nil, e
	}
	if !decision.Allowed {
		e := reject(http.StatusTooManyRequests, ErrRateLimited)
		e.RetryAfter = decision.RetryAfter(s.now())
		return nil, e
	}

	gas, ok := metatx.ParseAmount(req.Gas)
	if !ok {
		return nil, reject(http.StatusBadRequest, ErrInvalidRequest)
	}
	if gas.Cmp(new(big.Int).SetUint64(s.policy.MaxGas)) > 0 {
		return nil, reject(http.StatusBadRequest, ErrGasLimitExceeded)
	}

	if hash, ok := s.lookupIdempotent(ctx, sender, in.IdempotencyKey); ok {
		return &RelayResult{Hash: hash, Replayed: true, Limit: decision}, nil
	}

	signed, err := req.Parse()
	if err != nil {
		e := reject(http.StatusBadRequest, ErrInvalidRequest)
		e.Cause = err
		return nil, e
	}

	hash, err := s.forwarder.Execute(ctx, signed)
	if err != nil {
		s.logger.WithError(err).WithField("sender", sender).Error("Relay error")
		s.recordFailure(ctx, signed, in, err)
		return nil, &RelayError{
			Status:  http.StatusInternalServerError,
			Kind:    ErrSubmissionFailed,
			Message: submissionMessage(err),
			Cause:   err,
		}
	}

	s.recordSubmission(ctx, signed, in, hash)
	return &RelayResult{Hash: hash, Limit: decision}, nil
}

// wellFormedShape checks the fields every later gate reads: from and signature.
func wellFormedShape(req *metatx.WireRequest) bool {
	if req == nil {
		return false
	}
	from := strings.TrimSpace(req.From)
	if from == "" || !common.IsHexAddress(from) {
		return false
	}
	sig := strings.TrimSpace(req.Signature)
	if sig == "" {
		return false
	}
	b, err := hexutil.Decode(sig)
	return err == nil && len(b) > 0
}

func submissionMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ErrSubmissionFailed.Error()
}

func (s *RelayService) lookupIdempotent(ctx context.Context, sender, key string) (common.Hash, bool) {
	if key == "" || s.idemRepo == nil || s.policy.IdempotencyTTL <= 0 {
		return common.Hash{}, false
	}
	rec, err := s.idemRepo.Find(ctx, sender, key, s.now())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithError(err).Warn("idempotency lookup failed, submitting")
		}
		return common.Hash{}, false
	}
	return common.HexToHash(rec.TxHash), true
}

func (s *RelayService) recordSubmission(ctx context.Context, req *metatx.ForwardRequestData, in RelayInput, hash common.Hash) {
	sender := strings.ToLower(req.From.Hex())
	now := s.now()

	if s.txRepo != nil {
		row := &models.RelayTransaction{
			ID:             uuid.New().String(),
			Sender:         sender,
			Target:         strings.ToLower(req.To.Hex()),
			Gas:            req.Gas.Uint64(),
			Deadline:       req.Deadline,
			TxHash:         hash.Hex(),
			Status:         models.RelayStatusSubmitted,
			IdempotencyKey: in.IdempotencyKey,
			ClientIP:       in.ClientIP,
		}
		if err := s.txRepo.Create(ctx, row); err != nil {
			s.logger.WithError(err).WithField("tx_hash", hash.Hex()).Warn("failed to write relay audit row")
		}
	}

	if in.IdempotencyKey != "" && s.idemRepo != nil && s.policy.IdempotencyTTL > 0 {
		rec := &models.IdempotencyRecord{
			ID:        uuid.New().String(),
			Sender:    sender,
			Key:       in.IdempotencyKey,
			TxHash:    hash.Hex(),
			ExpiresAt: now.Add(s.policy.IdempotencyTTL),
		}
		if err := s.idemRepo.Save(ctx, rec); err != nil {
			s.logger.WithError(err).Warn("failed to save idempotency key")
		}
	}

	s.bus.Emit(events.RelayEvent{
		Type:   events.RelaySubmitted,
		TxHash: hash.Hex(),
		Sender: sender,
		Target: req.To.Hex(),
	})

	if s.watcher != nil {
		s.watcher.Track(hash, sender)
	}
}

func (s *RelayService) recordFailure(ctx context.Context, req *metatx.ForwardRequestData, in RelayInput, cause error) {
	sender := strings.ToLower(req.From.Hex())
	if s.txRepo != nil {
		row := &models.RelayTransaction{
			ID:       uuid.New().String(),
			Sender:   sender,
			Target:   strings.ToLower(req.To.Hex()),
			Gas:      req.Gas.Uint64(),
			Deadline: req.Deadline,
			Status:   models.RelayStatusFailed,
			Error:    cause.Error(),
			ClientIP: in.ClientIP,
		}
		if err := s.txRepo.Create(ctx, row); err != nil {
			s.logger.WithError(err).Warn("failed to write relay audit row")
		}
	}
	s.bus.Emit(events.RelayEvent{
		Type:   events.RelayFailed,
		Sender: sender,
		Target: req.To.Hex(),
		Error:  cause.Error(),
	})
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrRelayerNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrTargetNotAllowed):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRateLimiterUnavailable):
		return "limiter_unavailable"
	case errors.Is(err, ErrGasLimitExceeded):
		return "gas_exceeded"
	case errors.Is(err, ErrSenderNotAuthenticated):
		return "unauthenticated"
	default:
		return "chain_error"
	}
}
