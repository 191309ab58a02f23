// internal/websocket/draft_handler.go
package websocket

import (
	"context"
	"fmt"

	"towbook-service/internal/domain/booking"
	wstypes "towbook-service/internal/domain/websocket"
)

type DraftReader interface {
	GetDraft(ctx context.Context, id string) (*booking.DraftView, error)
}

// DraftHandler lets a connected customer poll the state of their own draft.
type DraftHandler struct {
	drafts DraftReader
}

func NewDraftHandler(drafts DraftReader) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

func (h *DraftHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeDraftGet}
}

func (h *DraftHandler) HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	var req wstypes.DraftRequest
	if err := decodeData(msg.Data, &req); err != nil || req.DraftID == "" {
		return fmt.Errorf("draft_id is required")
	}

	view, err := h.drafts.GetDraft(ctx, req.DraftID)
	if err != nil {
		return err
	}
	if !client.IsAdmin() && view.Customer.IdentityID != client.identityID {
		return booking.ErrDraftNotFound
	}

	reply := wstypes.NewMessage(wstypes.EventTypeDraft, view)
	reply.Metadata = map[string]interface{}{"request_id": msg.ID}
	client.SendMessage(reply)
	return nil
}
