// Package caldav adapts a CalDAV server (iCloud, Fastmail, Nextcloud, any
// RFC 4791 endpoint) to the provider contract.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"wellsync/internal/model"
	"wellsync/internal/provider"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "wellsync/1.0")
	return t.Transport.RoundTrip(req)
}

// Adapter is a CalDAV-backed provider adapter.
type Adapter struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarURL  string
}

// NewAdapter creates an adapter against the given CalDAV endpoint and
// resolves the named calendar's collection URL up front.
func NewAdapter(logger *slog.Logger, endpoint, username, password, calendarName string) (*Adapter, error) {
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	a := &Adapter{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     endpoint,
	}

	logger.Info("finding caldav calendar", "calendarName", calendarName)
	calendarURL, err := a.findCalendar(context.Background(), calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	a.calendarURL = calendarURL
	logger.Info("successfully found caldav calendar", "url", calendarURL)

	return a, nil
}

// GetEvents runs a calendar-query REPORT limited to the window and decodes
// the returned VEVENTs into the normalized shape.
func (a *Adapter) GetEvents(ctx context.Context, conn model.ProviderConnection, window provider.Window) ([]provider.RemoteEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: window.TimeMin,
				End:   window.TimeMax,
			}},
		},
	}

	objects, err := a.caldavClient.QueryCalendar(ctx, a.calendarPath(), query)
	if err != nil {
		return nil, fmt.Errorf("calendar query failed: %w", err)
	}

	var out []provider.RemoteEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			remote, err := a.toRemoteEvent(ev)
			if err != nil {
				a.logger.Warn("skipping unparseable vevent", "path", obj.Path, "error", err)
				continue
			}
			out = append(out, remote)
		}
	}

	a.logger.Info("fetched events from caldav calendar", "count", len(out))
	return out, nil
}

// Push creates or updates the event on the CalDAV server and returns the
// remote identifier (the event UID).
func (a *Adapter) Push(ctx context.Context, event model.CalendarEvent) (string, error) {
	uid := event.ProviderEventID
	if uid == "" {
		uid = GenerateUID()
	}
	a.logger.Debug("pushing event to caldav", "eventTitle", event.Title, "uid", uid)

	vevent := toICal(event, uid)
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//wellsync//EN")
	cal.Children = append(cal.Children, vevent)

	// The event path must be relative to the endpoint for the webdav client.
	eventPath := path.Join(a.calendarPath(), fmt.Sprintf("%s.ics", uid))

	writer, err := a.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode event to iCal format: %w", err)
	}

	a.logger.Info("successfully pushed event to caldav", "eventTitle", event.Title, "uid", uid)
	return uid, nil
}

func (a *Adapter) toRemoteEvent(ev ical.Event) (provider.RemoteEvent, error) {
	uid, err := ev.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return provider.RemoteEvent{}, fmt.Errorf("vevent has no UID")
	}
	summary, _ := ev.Props.Text(ical.PropSummary)
	description, _ := ev.Props.Text(ical.PropDescription)
	location, _ := ev.Props.Text(ical.PropLocation)

	start, err := ev.DateTimeStart(time.UTC)
	if err != nil {
		return provider.RemoteEvent{}, fmt.Errorf("bad DTSTART: %w", err)
	}
	end, err := ev.DateTimeEnd(time.UTC)
	if err != nil {
		return provider.RemoteEvent{}, fmt.Errorf("bad DTEND: %w", err)
	}

	remote := provider.RemoteEvent{
		ID:          uid,
		Summary:     summary,
		Description: description,
		Start:       start,
		End:         end,
		Location:    location,
	}

	if prop := ev.Props.Get(ical.PropLastModified); prop != nil {
		if ts, err := prop.DateTime(time.UTC); err == nil {
			remote.Updated = ts
		}
	}
	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		remote.AllDay = prop.ValueType() == ical.ValueDate
	}
	if prop := ev.Props.Get(ical.PropRecurrenceRule); prop != nil {
		if rule, err := provider.RuleFromRRule(prop.Value); err == nil {
			remote.Recurrence = rule
		} else {
			a.logger.Warn("ignoring unparseable recurrence", "uid", uid, "error", err)
		}
	}

	return remote, nil
}

// toICal converts an internal event to an ical.Component (VEvent).
func toICal(event model.CalendarEvent, uid string) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.End)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	return ve
}

func (a *Adapter) calendarPath() string {
	return strings.TrimPrefix(a.calendarURL, strings.TrimSuffix(a.endpoint, "/"))
}

// findCalendar discovers the user's calendars and returns the URL for the
// one with the matching name.
func (a *Adapter) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := a.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := a.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := a.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return fmt.Sprintf("%s%s", strings.TrimSuffix(a.endpoint, "/"), cal.Path), nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
