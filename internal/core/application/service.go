package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/ark-network/pls/internal/core/ports"
	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPublishTimeout = 10 * time.Second
	channelSize           = 64
)

type service struct {
	cfg     Config
	builder *protocol.Builder

	relay       ports.RelayClient
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService

	deduper *protocol.Deduper
	pending *pendingApprovals
	outbox  *outbox

	// lock serializes the load-mutate-save cycles on negotiations.
	lock sync.Mutex

	requestsCh  chan ContractRequest
	finalizedCh chan contract.Contract
	messagesCh  chan DirectMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	cfg Config, relay ports.RelayClient, repoManager ports.RepoManager,
	scheduler ports.SchedulerService,
) (Service, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("missing identity")
	}
	if relay == nil {
		return nil, fmt.Errorf("missing relay client")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if cfg.RepublishInterval > 0 && scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Cipher == nil {
		cfg.Cipher = protocol.NIP04Cipher{}
	}

	opts := []protocol.BuilderOption{
		protocol.WithSkewMargin(cfg.SkewMargin),
		protocol.WithCipher(cfg.Cipher),
	}
	if cfg.Clock != nil {
		opts = append(opts, protocol.WithClock(cfg.Clock))
	}

	return &service{
		cfg:         cfg,
		builder:     protocol.NewBuilder(cfg.Identity, opts...),
		relay:       relay,
		repoManager: repoManager,
		scheduler:   scheduler,
		deduper:     protocol.NewDeduper(protocol.DefaultDeduperSize),
		pending:     newPendingApprovals(),
		outbox:      newOutbox(),
		requestsCh:  make(chan ContractRequest, channelSize),
		finalizedCh: make(chan contract.Contract, channelSize),
		messagesCh:  make(chan DirectMessage, channelSize),
	}, nil
}

func (s *service) Start() error {
	s.repoManager.Negotiations().RegisterEventsHandler(func(n *domain.Negotiation) {
		log.Debugf("negotiation %s updated: %s, %s", n.Id, n.Stage, n.Status())
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	since := nostr.Timestamp(0)
	if s.cfg.SubscriptionLookback > 0 {
		since = nostr.Timestamp(time.Now().Add(-s.cfg.SubscriptionLookback).Unix())
	}
	events, err := s.relay.Subscribe(ctx, protocol.Filters(s.cfg.Identity.PubKey(), since))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to relays: %w", err)
	}

	s.wg.Add(1)
	go s.listen(ctx, events)

	if s.cfg.RepublishInterval > 0 {
		if err := s.scheduler.ScheduleTask(
			s.cfg.RepublishInterval, false, s.republish,
		); err != nil {
			cancel()
			return err
		}
		s.scheduler.Start()
	}

	log.Infof("listening for contract events addressed to %s", s.cfg.Identity.PubKey())
	return nil
}

func (s *service) Stop() {
	if s.cfg.RepublishInterval > 0 {
		s.scheduler.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Debug("stopped listening for contract events")
}

func (s *service) ProposeContract(
	ctx context.Context, terms contract.UnsignedContract,
) (*ports.PublishReport, error) {
	event, err := s.builder.ContractRequest(terms)
	if err != nil {
		return nil, err
	}
	if err := s.handleVerified(ctx, event); err != nil {
		return nil, err
	}
	return s.publish(ctx, event)
}

func (s *service) ApproveContract(
	ctx context.Context, fileHash, maker string,
) (*ports.PublishReport, error) {
	negotiation, err := s.findNegotiation(ctx, fileHash, maker)
	if err != nil {
		return nil, err
	}
	self := s.cfg.Identity.PubKey()
	if !negotiation.Terms.IsParticipant(self) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotParticipant, self)
	}
	if negotiation.IsFinalized() {
		return nil, domain.ErrNegotiationFinalized
	}

	tweaked := negotiation.Policy.KeyMode == domain.KeyModeTweaked
	sig, err := s.cfg.Identity.SignContract(negotiation.Terms, tweaked)
	if err != nil {
		return nil, err
	}
	recipients := append([]string{negotiation.Maker}, negotiation.Terms.Participants()...)
	event, err := s.builder.ApprovalWithSignature(
		negotiation.Terms.FileHash, sig, negotiation.RequestId, recipients,
	)
	if err != nil {
		return nil, err
	}
	if err := s.handleVerified(ctx, event); err != nil {
		return nil, err
	}
	return s.publish(ctx, event)
}

func (s *service) SendDirectMessage(
	ctx context.Context, recipient, message string,
) (*ports.PublishReport, error) {
	event, err := s.builder.DirectMessage(recipient, message)
	if err != nil {
		return nil, err
	}
	s.deduper.Seen(event)
	return s.publish(ctx, event)
}

func (s *service) HandleEvent(ctx context.Context, event nostr.Event) error {
	verified, err := protocol.Verify(event)
	if err != nil {
		return err
	}
	return s.handleVerified(ctx, verified)
}

func (s *service) GetNegotiation(
	ctx context.Context, fileHash, maker string,
) (*domain.Negotiation, error) {
	return s.findNegotiation(ctx, fileHash, maker)
}

func (s *service) ListNegotiations(ctx context.Context) ([]*domain.Negotiation, error) {
	return s.repoManager.Negotiations().List(ctx)
}

func (s *service) GetRequestsChannel(_ context.Context) <-chan ContractRequest {
	return s.requestsCh
}

func (s *service) GetFinalizedChannel(_ context.Context) <-chan contract.Contract {
	return s.finalizedCh
}

func (s *service) GetDirectMessagesChannel(_ context.Context) <-chan DirectMessage {
	return s.messagesCh
}

func (s *service) GetInfo(_ context.Context) ServiceInfo {
	return ServiceInfo{
		PubKey:       s.cfg.Identity.PubKey(),
		Relays:       s.relay.Relays(),
		KeyMode:      s.cfg.Policy.KeyMode.String(),
		ClientQuorum: s.cfg.Policy.ClientQuorum,
		Cipher:       s.cfg.Cipher.Name(),
		Outbox:       s.outbox.len(),

		PendingApprovals: s.pending.len(),
	}
}

func (s *service) listen(ctx context.Context, events <-chan protocol.VerifiedEvent) {
	defer s.wg.Done()

	for event := range events {
		if err := s.handleVerified(ctx, event); err != nil {
			log.WithError(err).Debugf(
				"discarded %s event %s", protocol.KindName(event.Kind()), event.ID(),
			)
		}
	}
}

// handleVerified decodes and dispatches an event. Events already handled are
// skipped so that duplicate deliveries are harmless. An event is recorded only
// once handled, so a redelivery retries it after a failure.
func (s *service) handleVerified(ctx context.Context, event protocol.VerifiedEvent) error {
	if s.deduper.Has(event) {
		return nil
	}
	msg, err := protocol.Decode(event)
	if err != nil {
		return err
	}
	if err := msg.Dispatch(&messageHandler{ctx, s}); err != nil {
		return err
	}
	s.deduper.Seen(event)
	return nil
}

// findNegotiation returns the negotiation maker opened about fileHash. Without
// a maker the file hash must identify a single negotiation.
func (s *service) findNegotiation(
	ctx context.Context, fileHash, maker string,
) (*domain.Negotiation, error) {
	repo := s.repoManager.Negotiations()
	if len(maker) > 0 {
		id, err := domain.NegotiationId(fileHash, maker)
		if err != nil {
			return nil, err
		}
		return repo.Load(ctx, id)
	}

	negotiations, err := repo.FindByFileHash(ctx, fileHash)
	if err != nil {
		return nil, err
	}
	switch len(negotiations) {
	case 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrNegotiationNotFound, strings.ToLower(fileHash))
	case 1:
		return negotiations[0], nil
	default:
		makers := make([]string, 0, len(negotiations))
		for _, n := range negotiations {
			makers = append(makers, n.Maker)
		}
		return nil, fmt.Errorf(
			"%w: %s, pick one of %s", domain.ErrAmbiguousNegotiation,
			strings.ToLower(fileHash), strings.Join(makers, ", "),
		)
	}
}

func (s *service) publish(
	ctx context.Context, event protocol.VerifiedEvent,
) (*ports.PublishReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	report, err := s.relay.Publish(ctx, event)
	if err != nil {
		s.outbox.add(event)
		if errors.Is(err, ports.ErrDeliveryTimeout) {
			log.Warnf("%s event %s not acknowledged by any relay, kept for republishing",
				protocol.KindName(event.Kind()), event.ID())
		}
		return report, err
	}

	log.Debugf("published %s: %s", protocol.KindName(event.Kind()), report)
	return report, nil
}

// republish retries the events no relay acknowledged so far.
func (s *service) republish() {
	for _, event := range s.outbox.list() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
		report, err := s.relay.Publish(ctx, event)
		cancel()
		if err != nil {
			log.WithError(err).Debugf("failed to republish event %s", event.ID())
			continue
		}
		s.outbox.remove(event.ID())
		log.Infof("republished %s", report)
	}
}

func (s *service) notifyRequest(request ContractRequest) {
	select {
	case s.requestsCh <- request:
	default:
		log.Warnf("requests channel full, dropped notification for %s", request.RequestId)
	}
}

func (s *service) notifyFinalized(c contract.Contract) {
	select {
	case s.finalizedCh <- c:
	default:
		log.Warnf("finalized channel full, dropped notification for %s", c.FileHash)
	}
}

func (s *service) notifyMessage(msg DirectMessage) {
	select {
	case s.messagesCh <- msg:
	default:
		log.Warnf("messages channel full, dropped message %s", msg.Id)
	}
}
