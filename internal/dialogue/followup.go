package dialogue

import (
	"context"

	"kra-assist/internal/models"
	"kra-assist/internal/nlp"
	"kra-assist/internal/pipeline"
)

// followUp answers a message that replies to the assistant's pending
// question in last. It never fails: collaborator errors become the fallback
// reply. ok is false when the message should go through the pipeline instead.
func (m *Manager) followUp(ctx context.Context, query models.Query, last models.Turn) (resp *models.Response, turn models.Turn, ok bool) {
	switch last.Response.PendingAction {
	case models.PendingProvidePIN:
		return m.providePIN(ctx, query, last)
	default:
		m.logger.Warn("unknown pending action, running pipeline", map[string]interface{}{
			"pendingAction": string(last.Response.PendingAction),
		})
		return nil, models.Turn{}, false
	}
}

// providePIN re-asks once for a missing PIN. A second message without one is
// treated as a new question and the marker is dropped.
func (m *Manager) providePIN(ctx context.Context, query models.Query, last models.Turn) (*models.Response, models.Turn, bool) {
	pin := nlp.ExtractPIN(query.Text)
	if pin == "" {
		if last.Intent == models.IntentFollowUp {
			return nil, models.Turn{}, false
		}
		resp := models.NewResponse(models.ActionRespond, localized(reaskPIN, query.Language), nil, models.PendingProvidePIN)
		return &resp, m.newTurn(query, models.IntentFollowUp, 1, models.NewEntityBag(nil), resp), true
	}

	entities := models.NewEntityBag([]models.RawEntity{{Kind: models.EntityKRAPin, Value: pin}})
	if m.taxpayers == nil {
		resp := models.NewResponse(models.ActionRespond, pipeline.Fallback(query.Language, pipeline.KindCollaboratorFailure), nil, models.PendingNone)
		return &resp, m.newTurn(query, models.IntentFollowUp, 1, entities, resp), true
	}

	tp, err := m.taxpayers.GetTaxpayer(ctx, pin)
	if err != nil {
		m.logger.Error("taxpayer lookup failed", map[string]interface{}{
			"pin":   pin,
			"error": err.Error(),
		})
		resp := models.NewResponse(models.ActionRespond, pipeline.Fallback(query.Language, pipeline.KindCollaboratorFailure), nil, models.PendingNone)
		return &resp, m.newTurn(query, models.IntentFollowUp, 1, entities, resp), true
	}

	resp := models.NewResponse(models.ActionRespond, statusMessage(query.Language, tp), nil, models.PendingNone)
	return &resp, m.newTurn(query, models.IntentFollowUp, 1, entities, resp), true
}
