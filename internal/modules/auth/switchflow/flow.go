// Package switchflow ends the current session and sends the browser back
// through the OAuth entry point so another account can be chosen.
package switchflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mx-space/authgate/internal/pkg/cookie"
	"go.uber.org/zap"
)

// State is a step of the switch flow.
type State string

const (
	StateActive           State = "active"
	StateLoggingOut       State = "logging_out"
	StateProviderLogout   State = "provider_logout_attempt"
	StateReAuthenticating State = "re_authenticating"
)

const (
	DefaultTimeout = 3 * time.Second
	MaxTimeout     = 10 * time.Second
	DefaultEntry   = "/auth/github"
)

// ErrRevoke wraps registry failures during the logout step. The session
// cookie has already been cleared when it is returned.
var ErrRevoke = errors.New("revoke current session")

// Sink applies cookie side effects to the current client.
type Sink interface {
	ClearSession()
	SavePrevious(rec cookie.PreviousIdentity) error
	ForgetPrevious()
}

// Revoker ends a server-side session. session.Registry satisfies it.
type Revoker interface {
	Revoke(ctx context.Context, id string) error
}

// Input describes one logout or switch request.
type Input struct {
	// SessionID is the registry id of the current session, if any.
	SessionID string
	// Previous is the identity to remember for "continue as". Nil leaves
	// any stored record untouched.
	Previous *cookie.PreviousIdentity
	// Forget drops the stored previous identity instead of saving one.
	Forget   bool
	ReturnTo string
	Sink     Sink
}

// Result reports what the flow did.
type Result struct {
	Trace   []State
	Outcome Outcome
	// ProviderLogoutURL is set when the provider logout was delegated to
	// the browser.
	ProviderLogoutURL string
	// RedirectURL is the OAuth entry point with account selection forced.
	RedirectURL string
	Timeout     time.Duration
}

// Config wires a Flow.
type Config struct {
	Revoker Revoker
	Logout  ProviderLogout
	Timeout time.Duration
	// Entry is the OAuth entry path; DefaultEntry when empty.
	Entry  string
	Logger *zap.Logger
}

// Flow runs logout and account switch. It keeps no per-user state.
type Flow struct {
	revoker Revoker
	logout  ProviderLogout
	timeout time.Duration
	entry   string
	log     *zap.Logger
}

// New builds a Flow. The timeout is clamped to (0, MaxTimeout].
func New(cfg Config) *Flow {
	f := &Flow{
		revoker: cfg.Revoker,
		logout:  cfg.Logout,
		timeout: cfg.Timeout,
		entry:   strings.TrimSpace(cfg.Entry),
		log:     cfg.Logger,
	}
	if f.logout == nil {
		f.logout = Noop{}
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.timeout > MaxTimeout {
		f.timeout = MaxTimeout
	}
	if f.entry == "" {
		f.entry = DefaultEntry
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	return f
}

// Timeout returns the provider logout bound.
func (f *Flow) Timeout() time.Duration { return f.timeout }

// Logout performs only the LoggingOut step: remember or forget the previous
// identity, clear the session cookie and revoke the session. Revocation
// finishes before Logout returns.
func (f *Flow) Logout(ctx context.Context, in Input) (*Result, error) {
	res := &Result{Trace: []State{StateActive, StateLoggingOut}, Timeout: f.timeout}
	if in.Sink == nil {
		return res, errors.New("switchflow: nil sink")
	}

	switch {
	case in.Forget:
		in.Sink.ForgetPrevious()
	case in.Previous != nil:
		if err := in.Sink.SavePrevious(*in.Previous); err != nil {
			f.log.Warn("previous identity not saved", zap.Error(err))
		}
	}

	in.Sink.ClearSession()
	if in.SessionID != "" && f.revoker != nil {
		if err := f.revoker.Revoke(context.WithoutCancel(ctx), in.SessionID); err != nil {
			return res, fmt.Errorf("%w %s: %w", ErrRevoke, in.SessionID, err)
		}
	}
	return res, nil
}

// Start runs the whole switch: Logout, a bounded provider logout attempt and
// the redirect back to the OAuth entry point with account selection forced.
// The provider step never fails the flow.
func (f *Flow) Start(ctx context.Context, in Input) (*Result, error) {
	res, err := f.Logout(ctx, in)
	if err != nil {
		return res, err
	}

	res.Trace = append(res.Trace, StateProviderLogout)
	res.Outcome = f.attempt(ctx)
	if res.Outcome == OutcomeDelegated {
		if d, ok := f.logout.(Delegator); ok {
			res.ProviderLogoutURL = d.LogoutURL()
		}
	}
	f.log.Debug("provider logout attempted", zap.String("outcome", string(res.Outcome)))

	res.Trace = append(res.Trace, StateReAuthenticating)
	res.RedirectURL = f.ReAuthURL(in.ReturnTo)
	return res, nil
}

// ReAuthURL is the OAuth entry point asking the provider to re-prompt for an
// account.
func (f *Flow) ReAuthURL(returnTo string) string {
	q := url.Values{}
	q.Set("prompt", "select_account")
	if returnTo = strings.TrimSpace(returnTo); returnTo != "" && returnTo != "/" {
		q.Set("returnTo", returnTo)
	}
	return f.entry + "?" + q.Encode()
}

// attempt runs the provider logout with a context deadline and a separate
// timer, so an implementation that ignores its context still cannot hold
// the flow past the timeout.
func (f *Flow) attempt(ctx context.Context) Outcome {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.log.Warn("provider logout panicked", zap.Any("panic", r))
				done <- OutcomeFailed
			}
		}()
		outcome, err := f.logout.Attempt(actx)
		if err != nil {
			f.log.Debug("provider logout failed", zap.Error(err))
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = OutcomeTimedOut
			} else {
				outcome = OutcomeFailed
			}
		}
		done <- outcome
	}()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case outcome := <-done:
		return outcome
	case <-timer.C:
		return OutcomeTimedOut
	case <-ctx.Done():
		return OutcomeTimedOut
	}
}
