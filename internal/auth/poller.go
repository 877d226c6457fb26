package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/identity"
	"github.com/tidwall/gjson"
)

// Default polling cadence for the verification waiter.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollBudget   = 10 * time.Minute
	DefaultPollBackoff  = 5 * time.Second
)

// StatusFunc fetches the current verification state.
type StatusFunc func(ctx context.Context) (identity.VerificationState, error)

// Poller waits for an email address to be confirmed. It is the client-side
// half of the verification flow: poll, back off on errors, and sign in once
// the address is verified.
type Poller struct {
	Status     StatusFunc
	OnVerified func(ctx context.Context) error
	Interval   time.Duration
	Budget     time.Duration
	Backoff    time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller constructs a Poller with the default cadence.
func NewPoller(status StatusFunc, onVerified func(ctx context.Context) error) *Poller {
	return &Poller{
		Status:     status,
		OnVerified: onVerified,
		Interval:   DefaultPollInterval,
		Budget:     DefaultPollBudget,
		Backoff:    DefaultPollBackoff,
	}
}

// Wait polls until the address is verified, the link expires, the budget
// runs out, or ctx is done. An exhausted budget reports expired.
func (p *Poller) Wait(ctx context.Context) (identity.VerificationState, error) {
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	deadline := now().Add(p.Budget)

	for {
		state, errStatus := p.Status(ctx)
		delay := p.Interval
		switch {
		case errStatus != nil:
			delay = p.Backoff
		case state == identity.VerificationVerified:
			if p.OnVerified != nil {
				if errSignin := p.OnVerified(ctx); errSignin != nil {
					return identity.VerificationError, errSignin
				}
			}
			return identity.VerificationVerified, nil
		case state == identity.VerificationExpired:
			return identity.VerificationExpired, nil
		}

		if !now().Add(delay).Before(deadline) {
			return identity.VerificationExpired, nil
		}
		if errSleep := sleep(ctx, delay); errSleep != nil {
			return identity.VerificationError, errSleep
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTPStatus returns a StatusFunc that queries the verification-status
// endpoint under baseURL.
func HTTPStatus(client *http.Client, baseURL, email string) StatusFunc {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/api/auth-verification-status?email=" + url.QueryEscape(email)
	return func(ctx context.Context) (identity.VerificationState, error) {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if errReq != nil {
			return identity.VerificationError, errReq
		}
		resp, errDo := client.Do(req)
		if errDo != nil {
			return identity.VerificationError, errDo
		}
		defer resp.Body.Close()
		body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if errRead != nil {
			return identity.VerificationError, errRead
		}
		if resp.StatusCode != http.StatusOK {
			return identity.VerificationError, fmt.Errorf("verification status: http %d", resp.StatusCode)
		}
		switch state := identity.VerificationState(gjson.GetBytes(body, "status").String()); state {
		case identity.VerificationPending, identity.VerificationVerified, identity.VerificationExpired:
			return state, nil
		default:
			return identity.VerificationError, fmt.Errorf("verification status: unexpected state %q", state)
		}
	}
}
