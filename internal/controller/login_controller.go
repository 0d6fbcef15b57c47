// Package controller holds the login form state and runs sign-in attempts
// through the AuthState machine. Presentations read state from here and
// call its operations; they never talk to the gateway directly.
package controller

import (
	"context"
	"strings"
	"sync"

	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/service"
	"github.com/rs/zerolog"
)

// Gateway is the part of the auth gateway the controller drives.
type Gateway interface {
	SignIn(ctx context.Context, uniqueID, password string) (*model.Profile, error)
}

// FormState is a snapshot of the form fields. The password itself is not
// included; presentations only need to know whether one was entered.
type FormState struct {
	UniqueID        string `json:"unique_id"`
	PasswordEntered bool   `json:"password_entered"`
	PasswordVisible bool   `json:"password_visible"`
}

// LoginController owns the form fields and the current AuthState.
type LoginController struct {
	gateway Gateway
	log     zerolog.Logger

	// ctx scopes in-flight attempts to the controller's lifetime.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	uniqueID        string
	password        string
	passwordVisible bool
	state           model.AuthState
	attempt         uint64
	stopAttempt     context.CancelFunc
	subs            map[uint64]chan model.AuthState
	nextSub         uint64
}

// NewLoginController creates a controller in the Initial state.
func NewLoginController(gateway Gateway, log zerolog.Logger) *LoginController {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoginController{
		gateway: gateway,
		log:     log.With().Str("component", "login_controller").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		state:   model.InitialState(),
		subs:    make(map[uint64]chan model.AuthState),
	}
}

// SetUniqueID stores the value upper-cased. This is the only place unique
// ids are normalized.
func (c *LoginController) SetUniqueID(value string) {
	c.mu.Lock()
	c.uniqueID = strings.ToUpper(value)
	c.mu.Unlock()
}

// SetPassword stores the value verbatim.
func (c *LoginController) SetPassword(value string) {
	c.mu.Lock()
	c.password = value
	c.mu.Unlock()
}

func (c *LoginController) TogglePasswordVisibility() {
	c.mu.Lock()
	c.passwordVisible = !c.passwordVisible
	c.mu.Unlock()
}

func (c *LoginController) UniqueID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniqueID
}

func (c *LoginController) Password() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password
}

func (c *LoginController) PasswordVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passwordVisible
}

// Form returns a snapshot of the form fields.
func (c *LoginController) Form() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FormState{
		UniqueID:        c.uniqueID,
		PasswordEntered: c.password != "",
		PasswordVisible: c.passwordVisible,
	}
}

// State returns the current AuthState.
func (c *LoginController) State() model.AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login validates the form and, if both fields are filled, starts a sign-in
// in the background. It returns true only when the gateway was called.
//
// Blank fields go straight to Error without entering Loading. A call made
// while Loading, or after Success until the state is reset, is ignored.
func (c *LoginController) Login() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if !c.state.CanSubmit() {
		c.mu.Unlock()
		c.log.Debug().Str("state", string(c.state.Status)).Msg("Login ignored")
		return false
	}
	if err := service.ValidateCredentials(c.uniqueID, c.password); err != nil {
		c.setStateLocked(model.ErrorState(err.Error()))
		c.mu.Unlock()
		return false
	}

	uniqueID, password := c.uniqueID, c.password
	ctx, stop := context.WithCancel(c.ctx)
	c.attempt++
	attempt := c.attempt
	c.stopAttempt = stop
	c.setStateLocked(model.LoadingState())
	c.wg.Add(1)
	c.mu.Unlock()

	go c.signIn(ctx, stop, attempt, uniqueID, password)
	return true
}

func (c *LoginController) signIn(ctx context.Context, stop context.CancelFunc, attempt uint64, uniqueID, password string) {
	defer c.wg.Done()
	defer stop()

	profile, err := c.gateway.SignIn(ctx, uniqueID, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt {
		// Reset since this attempt started; its result is stale.
		c.log.Debug().Uint64("attempt", attempt).Msg("Stale sign-in result dropped")
		return
	}
	c.stopAttempt = nil
	if err != nil {
		c.setStateLocked(model.ErrorState(errorMessage(err)))
		return
	}
	c.setStateLocked(model.SuccessState(profile))
}

func errorMessage(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return service.MsgInvalidCredentials
}

// ResetAuthState returns to Initial so the form can be submitted again.
// An attempt still in flight is cancelled and its result discarded.
func (c *LoginController) ResetAuthState() {
	c.mu.Lock()
	c.attempt++
	if c.stopAttempt != nil {
		c.stopAttempt()
		c.stopAttempt = nil
	}
	c.setStateLocked(model.InitialState())
	c.mu.Unlock()
}

// Subscribe returns a channel that receives the current state immediately
// and every later transition. Delivery is conflated: a slow reader sees the
// latest state, not every intermediate one. Call cancel to unsubscribe.
func (c *LoginController) Subscribe() (<-chan model.AuthState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan model.AuthState, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until no attempt is in flight.
func (c *LoginController) Wait() {
	c.wg.Wait()
}

// Close cancels an in-flight attempt, waits for it and closes all subscriptions.
func (c *LoginController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// setStateLocked must be called with mu held.
func (c *LoginController) setStateLocked(s model.AuthState) {
	prev := c.state.Status
	c.state = s
	c.log.Debug().Str("from", string(prev)).Str("to", string(s.Status)).Msg("Auth state changed")

	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			// Drop the stale value so the latest state wins.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
