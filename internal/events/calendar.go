package events

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/hitoshi/eventinator/internal/model"
	"github.com/hitoshi/eventinator/internal/security"
)

const (
	calendarProductID    = "-//eventinator//EN"
	propCalendarTimezone = "X-WR-TIMEZONE"
)

// CalendarExporter は参加イベントをiCalendar形式で書き出す。
type CalendarExporter struct {
	baseURL   string
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewCalendarExporter はCalendarExporterを生成する。
// baseURLが空でなければ各イベントにイベントページのURLを付与する。
func NewCalendarExporter(baseURL string, sanitizer security.ContentSanitizerService) *CalendarExporter {
	return &CalendarExporter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Export はイベントごとに1つのVEVENTを持つカレンダーをwに書き出す。
// 日時はUTCで書き出す。VTIMEZONEを持たないためTZID付きの日時は使わない。
// ユーザーのタイムゾーンはX-WR-TIMEZONEで表示用のヒントとして渡す。
func (c *CalendarExporter) Export(w io.Writer, user *model.User, events []*model.Event) error {
	stamp := c.now().UTC()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, calendarProductID)
	if loc := userLocation(user); loc != time.UTC {
		cal.Props.SetText(propCalendarTimezone, loc.String())
	}

	for _, e := range events {
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, e.ID+"@eventinator")
		ve.Props.SetText(ical.PropSummary, e.Name)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.UTC())

		if desc := c.description(e); desc != "" {
			ve.Props.SetText(ical.PropDescription, desc)
		}
		if c.baseURL != "" {
			if u, err := url.Parse(c.baseURL + "/events/" + url.PathEscape(e.ID)); err == nil {
				ve.Props.SetURI(ical.PropURL, u)
			}
		}
		cal.Children = append(cal.Children, ve)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("カレンダーの書き出しに失敗しました: %w", err)
	}
	return nil
}

// description は短い説明を優先し、なければ詳細説明のテキストを返す。
func (c *CalendarExporter) description(e *model.Event) string {
	if e.ShortDescription != nil && *e.ShortDescription != "" {
		return *e.ShortDescription
	}
	if e.LongDescription == "" {
		return ""
	}
	return c.sanitizer.PlainText(e.LongDescription)
}

// userLocation はユーザーのタイムゾーンを返す。未設定や不正な値ならUTC。
func userLocation(user *model.User) *time.Location {
	if user == nil || user.Timezone == nil || *user.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(*user.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
