package api

import "context"

// ReleaseMethod is the mechanism the resident used to request the door
// release.
type ReleaseMethod string

const (
	ReleaseMethodNumberpad ReleaseMethod = "numberpad"
	ReleaseMethodSwipe     ReleaseMethod = "swipe"
)

// doorReleaseRequest is the door_release_requests resource. The panel and
// unit ride in relationships, not attributes.
type doorReleaseRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			ReleaseMethod string `json:"release_method"`
		} `json:"attributes"`
		Relationships struct {
			Panel struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"panel"`
			Unit struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"unit"`
		} `json:"relationships"`
	} `json:"data"`
}

// OpenDoor requests a door release at a panel outside the call flow (the
// keyless-entry path). The in-call path goes through the open_door
// notification instead.
func (c *Client) OpenDoor(ctx context.Context, panelID, unitID string, method ReleaseMethod) error {
	if panelID == "" {
		return requestErr("panel id is empty")
	}
	if unitID == "" {
		return requestErr("unit id is empty")
	}

	var req doorReleaseRequest
	req.Data.Type = "door_release_requests"
	req.Data.Attributes.ReleaseMethod = string(method)
	req.Data.Relationships.Panel.Data.ID = panelID
	req.Data.Relationships.Unit.Data.ID = unitID

	_, err := c.do(ctx, "POST", "/v3/me/open_door", req)
	return err
}
