package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/praxamed/calsync/internal/store"
)

// AuthClientSource hands out per-account HTTP clients that attach a valid
// access token to every request. The clients must be context-free and safe
// to cache for the lifetime of the account.
type AuthClientSource interface {
	AuthClient(accountID string) *http.Client
}

// GoogleProvider implements Provider against the Google Calendar API.
type GoogleProvider struct {
	tokens   AuthClientSource
	accounts store.AccountRepository

	mu       sync.Mutex
	services map[string]*calendar.Service
}

// NewGoogleProvider creates a Google Calendar provider. Remote calls operate
// on the calendar configured on the account (the primary calendar by
// default).
func NewGoogleProvider(tokens AuthClientSource, accounts store.AccountRepository) *GoogleProvider {
	return &GoogleProvider{
		tokens:   tokens,
		accounts: accounts,
		services: make(map[string]*calendar.Service),
	}
}

// ListEvents implements Provider.
func (p *GoogleProvider) ListEvents(ctx context.Context, accountID string, from, to time.Time) ([]Event, error) {
	svc, calendarID, err := p.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result, err := svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.apiError("list events", accountID, "", err)
	}

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

// CreateEvent implements Provider.
func (p *GoogleProvider) CreateEvent(ctx context.Context, accountID string, in EventInput) (string, error) {
	svc, calendarID, err := p.service(ctx, accountID)
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(calendarID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return "", p.apiError("create event", accountID, "", err)
	}
	return created.Id, nil
}

// UpdateEvent implements Provider.
func (p *GoogleProvider) UpdateEvent(ctx context.Context, accountID, eventID string, in EventInput) error {
	svc, calendarID, err := p.service(ctx, accountID)
	if err != nil {
		return err
	}

	_, err = svc.Events.Update(calendarID, eventID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return p.apiError("update event", accountID, eventID, err)
	}
	return nil
}

// ListCalendars implements Provider.
func (p *GoogleProvider) ListCalendars(ctx context.Context, accountID string) ([]CalendarInfo, error) {
	svc, _, err := p.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, p.apiError("list calendars", accountID, "", err)
	}

	calendars := make([]CalendarInfo, 0, len(list.Items))
	for _, entry := range list.Items {
		calendars = append(calendars, toCalendarInfo(entry))
	}
	return calendars, nil
}

// service returns a cached per-account Calendar service and the account's
// configured calendar id.
func (p *GoogleProvider) service(ctx context.Context, accountID string) (*calendar.Service, string, error) {
	acc, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	svc, ok := p.services[accountID]
	if !ok {
		svc, err = calendar.NewService(ctx, option.WithHTTPClient(p.tokens.AuthClient(accountID)))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create calendar service: %w", err)
		}
		p.services[accountID] = svc
	}

	return svc, acc.CalendarID, nil
}

func (p *GoogleProvider) apiError(op, accountID, eventID string, err error) *APIError {
	apiErr := &APIError{
		AccountID: accountID,
		EventID:   eventID,
		Op:        op,
		Err:       err,
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.StatusCode = gerr.Code
	}
	return apiErr
}
