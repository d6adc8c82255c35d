// Package google adapts the Google Calendar API to the provider contract.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"wellsync/internal/model"
	"wellsync/internal/provider"
)

const credentialsFile = "credentials.json"

// Adapter provides read access to a Google account's calendars.
type Adapter struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewAdapter creates an adapter for one authenticated Google account. It
// loads the token saved by the auth flow (token-<accountName>.json) and
// builds an authenticated calendar service.
func NewAdapter(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string) (*Adapter, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Adapter{service: service, logger: logger}, nil
}

// GetEvents fetches events from the connection's calendar within the window,
// with recurring events expanded server-side and results ordered by start.
func (a *Adapter) GetEvents(ctx context.Context, conn model.ProviderConnection, window provider.Window) ([]provider.RemoteEvent, error) {
	a.logger.Debug("fetching google events",
		"calendarID", conn.CalendarID,
		"timeMin", window.TimeMin, "timeMax", window.TimeMax)

	events, err := a.service.Events.List(conn.CalendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(window.TimeMin.UTC().Format(time.RFC3339)).
		TimeMax(window.TimeMax.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	a.logger.Info("fetched events from google calendar", "count", len(events.Items), "calendarID", conn.CalendarID)
	return a.toRemoteEvents(events.Items), nil
}

// Push is not implemented for Google; the sync direction is remote→local.
func (a *Adapter) Push(ctx context.Context, event model.CalendarEvent) (string, error) {
	return "", provider.ErrPushNotSupported
}

// toRemoteEvents converts Google Calendar events to the normalized shape.
// Start/end arrive either as date-only (all-day) or RFC 3339 date-time;
// both are normalized to concrete timestamps.
func (a *Adapter) toRemoteEvents(items []*calendar.Event) []provider.RemoteEvent {
	var out []provider.RemoteEvent
	for _, item := range items {
		if item.Start == nil || item.End == nil {
			continue
		}

		start, startAllDay, err := parseEventTime(item.Start)
		if err != nil {
			a.logger.Warn("skipping event with unparseable start", "eventID", item.Id, "error", err)
			continue
		}
		end, _, err := parseEventTime(item.End)
		if err != nil {
			a.logger.Warn("skipping event with unparseable end", "eventID", item.Id, "error", err)
			continue
		}

		updated, _ := time.Parse(time.RFC3339, item.Updated)

		ev := provider.RemoteEvent{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Start:       start,
			End:         end,
			Location:    item.Location,
			Updated:     updated,
			AllDay:      startAllDay,
		}

		for _, line := range item.Recurrence {
			if !strings.HasPrefix(line, "RRULE") {
				continue
			}
			rule, err := provider.RuleFromRRule(line)
			if err != nil {
				a.logger.Warn("ignoring unparseable recurrence", "eventID", item.Id, "error", err)
				break
			}
			ev.Recurrence = rule
			break
		}

		out = append(out, ev)
	}
	return out
}

// parseEventTime normalizes a Google event boundary, which carries either a
// Date (all-day) or a DateTime value.
func parseEventTime(t *calendar.EventDateTime) (time.Time, bool, error) {
	if t.DateTime != "" {
		ts, err := time.Parse(time.RFC3339, t.DateTime)
		return ts, false, err
	}
	if t.Date != "" {
		ts, err := time.Parse("2006-01-02", t.Date)
		return ts, true, err
	}
	return time.Time{}, false, fmt.Errorf("event time has neither date nor dateTime")
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config
// for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(context.Background(), authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the account names with saved tokens in the working
// directory.
func GetTokenAccounts() ([]string, error) {
	files, err := os.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
