package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/ark-network/pls/pkg/signature"
	log "github.com/sirupsen/logrus"
)

// messageHandler applies decoded messages to the local negotiations.
type messageHandler struct {
	ctx context.Context
	svc *service
}

func (h *messageHandler) HandleContractRequest(msg protocol.ContractRequest) error {
	s := h.svc
	s.lock.Lock()
	defer s.lock.Unlock()

	event := msg.Source()
	repo := s.repoManager.Negotiations()
	id, err := domain.NegotiationId(msg.Terms.FileHash, msg.Maker())
	if err != nil {
		return err
	}

	negotiation, err := repo.Load(h.ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNegotiationNotFound) {
		return err
	}

	var change domain.Event
	if negotiation == nil {
		negotiation = domain.NewNegotiation()
		change, err = negotiation.Start(
			event.ID(), msg.Maker(), msg.Terms, int64(event.CreatedAt()), s.cfg.Policy,
		)
	} else {
		change, err = negotiation.Supersede(
			event.ID(), msg.Maker(), msg.Terms, int64(event.CreatedAt()),
		)
	}
	if err != nil {
		return fmt.Errorf("request %s for %s rejected: %w", event.ID(), id, err)
	}

	if negotiation, err = repo.Save(h.ctx, id, change); err != nil {
		return err
	}
	log.Infof("negotiation %s opened by request %s", id, event.ID())

	if negotiation.Terms.IsParticipant(s.cfg.Identity.PubKey()) {
		s.notifyRequest(ContractRequest{
			RequestId: event.ID(),
			Maker:     msg.Maker(),
			Terms:     msg.Terms,
			CreatedAt: int64(event.CreatedAt()),
		})
	}

	h.replayPending(negotiation)
	return nil
}

func (h *messageHandler) HandleContractApproval(msg protocol.ContractApproval) error {
	s := h.svc
	s.lock.Lock()
	defer s.lock.Unlock()

	negotiations, err := s.repoManager.Negotiations().FindByFileHash(h.ctx, msg.FileHash)
	if err != nil {
		return err
	}

	if len(msg.RequestId) > 0 {
		for _, negotiation := range negotiations {
			if negotiation.KnowsRequest(msg.RequestId) {
				return h.applyApproval(negotiation, msg)
			}
		}
		// The approved request may still be on its way.
		s.pending.push(msg.RequestId, msg)
		log.Debugf("buffered approval %s for unknown request %s", msg.Source().ID(), msg.RequestId)
		return nil
	}

	if len(negotiations) <= 0 {
		s.pending.push(msg.FileHash, msg)
		log.Debugf("buffered approval %s for unknown file %s", msg.Source().ID(), msg.FileHash)
		return nil
	}

	// Without a request reference the approval belongs to whichever
	// negotiation its signature verifies against.
	errs := make([]error, 0, len(negotiations))
	for _, negotiation := range negotiations {
		err := h.applyApproval(negotiation, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *messageHandler) HandleDirectMessage(msg protocol.DirectMessage) error {
	s := h.svc
	self := s.cfg.Identity.PubKey()
	if msg.Recipient != self && msg.Sender() != self {
		return nil
	}

	content, err := msg.Decrypt(s.cfg.Identity, s.cfg.Cipher)
	if err != nil {
		return err
	}
	s.notifyMessage(DirectMessage{
		Id:        msg.Source().ID(),
		From:      msg.Sender(),
		To:        msg.Recipient,
		Content:   content,
		CreatedAt: int64(msg.Source().CreatedAt()),
	})
	return nil
}

// replayPending applies the buffered approvals referencing the current
// request of the negotiation, or only its file.
func (h *messageHandler) replayPending(negotiation *domain.Negotiation) {
	s := h.svc
	for _, approval := range s.pending.pop(negotiation.RequestId) {
		if err := h.applyApproval(negotiation, approval); err != nil {
			log.WithError(err).Debugf("discarded buffered approval %s", approval.Source().ID())
		}
	}

	unreferenced := s.pending.pop(negotiation.FileHash)
	for _, approval := range unreferenced {
		err := h.applyApproval(negotiation, approval)
		if err == nil {
			continue
		}
		// It may belong to the request of another maker.
		if errors.Is(err, signature.ErrVerificationFailed) || errors.Is(err, domain.ErrNotParticipant) {
			s.pending.push(negotiation.FileHash, approval)
			continue
		}
		log.WithError(err).Debugf("discarded buffered approval %s", approval.Source().ID())
	}
}

func (h *messageHandler) applyApproval(
	negotiation *domain.Negotiation, msg protocol.ContractApproval,
) error {
	s := h.svc
	event := msg.Source()

	changes, err := negotiation.AddApproval(
		event.ID(), msg.Signer(), msg.Signature, int64(event.CreatedAt()),
	)
	if err != nil {
		return fmt.Errorf("approval %s for %s rejected: %w", event.ID(), negotiation.Id, err)
	}
	if len(changes) <= 0 {
		return nil
	}

	negotiation, err = s.repoManager.Negotiations().Save(h.ctx, negotiation.Id, changes...)
	if err != nil {
		return err
	}
	log.Infof("approval of %s accepted for %s (%s)", msg.Signer(), negotiation.Id, negotiation.Status())

	if negotiation.IsFinalized() {
		final, err := negotiation.FinalContract()
		if err != nil {
			return err
		}
		log.Infof("contract %s finalized with %d signatures", negotiation.Id, len(final.Signatures))
		s.notifyFinalized(*final)
	}
	return nil
}
