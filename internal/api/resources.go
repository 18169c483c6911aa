package api

import (
	"encoding/json"

	"github.com/runslikebutter/doorphone/internal/call"
)

// The backend speaks JSON:API. Payload shapes here mirror the call-status and
// token resources; everything else in the responses is ignored.

type callStatusDocument struct {
	Data     callStatusData `json:"data"`
	Included []callResource `json:"included"`
}

type callStatusData struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Status          string `json:"status"`
		MultipleDevices bool   `json:"multiple_devices"`
		CreatedAt       string `json:"created_at"`
	} `json:"attributes"`
}

type callResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		GUID             string `json:"guid"`
		CallType         string `json:"call_type"`
		NotificationType string `json:"notification_type"`
		ThumbURL         string `json:"thumb_url"`
		MediumURL        string `json:"medium_url"`
		CreatedAt        string `json:"created_at"`
		LoggedAt         string `json:"logged_at"`
		Status           string `json:"status"`
		DisplayStatus    string `json:"display_status"`
		PanelName        string `json:"panel_name"`
		PanelID          int    `json:"panel_id"`
		Provider         string `json:"provider"`
		ProviderToken    string `json:"provider_token"`
	} `json:"attributes"`
}

// decodeCallStatus turns a call-status document into a call record. The call
// itself rides in the document's included resources, stamped with the
// top-level status.
func decodeCallStatus(body []byte) (*call.Call, error) {
	var doc callStatusDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, responseErr(err, "malformed call status payload")
	}
	if len(doc.Included) == 0 {
		return nil, responseErr(nil, "call status payload has no call resource")
	}

	res := doc.Included[0]
	provider, ok := call.ParseProvider(res.Attributes.Provider)
	if !ok {
		return nil, responseErr(ErrUnsupportedProvider, "provider %q", res.Attributes.Provider)
	}

	c := call.New(res.Attributes.GUID, res.Attributes.PanelID, provider, doc.Data.Attributes.Status)
	c.Attributes = call.Attributes{
		CallType:         res.Attributes.CallType,
		NotificationType: res.Attributes.NotificationType,
		ThumbURL:         res.Attributes.ThumbURL,
		MediumURL:        res.Attributes.MediumURL,
		CreatedAt:        res.Attributes.CreatedAt,
		LoggedAt:         res.Attributes.LoggedAt,
		DisplayStatus:    res.Attributes.DisplayStatus,
		PanelName:        res.Attributes.PanelName,
	}
	if res.Attributes.ProviderToken != "" {
		c.SetProviderToken(res.Attributes.ProviderToken)
	}
	return c, nil
}

// providerTokensDocument is the response of the token endpoint: one opaque
// credential per provider name.
type providerTokensDocument struct {
	Tokens map[string]string `json:"tokens"`
}

type tokenRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			DeviceUUID string `json:"device_uuid"`
		} `json:"attributes"`
	} `json:"data"`
}

func newTokenRequest(deviceUUID string) tokenRequest {
	var req tokenRequest
	req.Data.Type = "token"
	req.Data.Attributes.DeviceUUID = deviceUUID
	return req
}

// notificationRequest is the common envelope of the panel notification
// endpoints.
type notificationRequest struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			PanelID  int    `json:"panel_id"`
			CallGUID string `json:"call_guid"`
			Video    *bool  `json:"video,omitempty"`
			Audio    *bool  `json:"audio,omitempty"`
		} `json:"attributes"`
	} `json:"data"`
}
