package handler

import (
	"time"

	"github.com/hitoshi/eventinator/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	UID      string  `json:"uid"`
	Username string  `json:"username"`
	Email    *string `json:"email,omitempty"`
	Timezone *string `json:"timezone"`
	Platform string  `json:"platform,omitempty"`
}

func toUserResponse(u *model.User, platform model.Platform) userResponse {
	resp := userResponse{
		UID:      u.UID,
		Username: u.Username,
		Email:    u.Email,
		Timezone: u.Timezone,
	}
	if platform != model.PlatformNone {
		resp.Platform = platform.String()
	}
	return resp
}

// eventResponse はイベント情報のAPIレスポンス。
// 参加コードは所有者にのみ返す。
type eventResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	OwnerUID           string    `json:"owner_uid"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	LongDescription    string    `json:"long_description"`
	ShortDescription   *string   `json:"short_description"`
	RequiresAccessCode bool      `json:"requires_access_code"`
	AccessCode         *string   `json:"access_code,omitempty"`
	IsOwner            bool      `json:"is_owner"`
	IsMember           bool      `json:"is_member"`
}

func toEventResponse(e *model.Event, viewer model.Principal) eventResponse {
	resp := eventResponse{
		ID:                 e.ID,
		Name:               e.Name,
		OwnerUID:           e.OwnerUID,
		StartTime:          e.StartTime,
		EndTime:            e.EndTime,
		LongDescription:    e.LongDescription,
		ShortDescription:   e.ShortDescription,
		RequiresAccessCode: e.RequiresAccessCode(),
	}
	if !viewer.IsGuest() && e.IsOwnedBy(viewer.User.UID) {
		resp.IsOwner = true
		resp.AccessCode = e.AccessCode
	}
	return resp
}

func toEventResponses(events []*model.Event, viewer model.Principal) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e, viewer)
	}
	return out
}
