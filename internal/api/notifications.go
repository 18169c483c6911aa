package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Notifier sends the device-to-panel notification POSTs. These are
// fire-and-forget: each failure is logged and reported to the optional
// completion, never retried here. Retry policy, if any, belongs to the
// transport layer behind the backend.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier on top of an API client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) send(ctx context.Context, kind, guid string, panelID int, video, audio *bool) error {
	var req notificationRequest
	req.Data.Type = "notifications"
	req.Data.ID = fmt.Sprintf("%d", panelID)
	req.Data.Attributes.PanelID = panelID
	req.Data.Attributes.CallGUID = guid
	req.Data.Attributes.Video = video
	req.Data.Attributes.Audio = audio

	_, err := n.client.do(ctx, http.MethodPost, "/v3/notifications/"+kind, req)
	if err != nil {
		slog.Error("[Notify] Delivery failed", "kind", kind, "call_guid", guid, "error", err)
		return err
	}
	slog.Debug("[Notify] Delivered", "kind", kind, "call_guid", guid)
	return nil
}

// SendCallAccepted tells the panel this device accepted, with the media
// directions it will publish.
func (n *Notifier) SendCallAccepted(ctx context.Context, guid string, panelID int, video, audio bool) error {
	return n.send(ctx, "call_accepted", guid, panelID, &video, &audio)
}

// SendIsActive tells the backend this device is the active one for the call,
// so sibling devices stop ringing.
func (n *Notifier) SendIsActive(ctx context.Context, guid string, panelID int) error {
	return n.send(ctx, "is_active", guid, panelID, nil, nil)
}

// SendToggleCamera tells the panel the local camera direction changed.
func (n *Notifier) SendToggleCamera(ctx context.Context, guid string, panelID int, video, audio bool) error {
	return n.send(ctx, "toggle_camera", guid, panelID, &video, &audio)
}

// SendOpenDoor asks the panel to release the door. completion, if non-nil,
// receives the delivery outcome.
func (n *Notifier) SendOpenDoor(ctx context.Context, guid string, panelID int, completion func(bool)) {
	err := n.send(ctx, "open_door", guid, panelID, nil, nil)
	if completion != nil {
		completion(err == nil)
	}
}

// SendCallEnded tells the panel the call finished on this device. completion,
// if non-nil, runs after the delivery attempt regardless of outcome.
func (n *Notifier) SendCallEnded(ctx context.Context, guid string, panelID int, completion func()) {
	_ = n.send(ctx, "call_ended", guid, panelID, nil, nil)
	if completion != nil {
		completion()
	}
}
