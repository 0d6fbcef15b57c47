// Package terminal renders the login and home screens on a text terminal.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/model"
)

// MaxAttempts bounds failed sign-ins in one session of the login screen.
const MaxAttempts = 3

// ErrTooManyAttempts is returned after MaxAttempts failed sign-ins.
var ErrTooManyAttempts = errors.New("too many failed sign-in attempts")

// PasswordReader reads a password without echoing it.
type PasswordReader func() (string, error)

// Screen reads form input from in and renders to out.
type Screen struct {
	in     *bufio.Reader
	out    io.Writer
	hidden PasswordReader
}

// NewScreen creates a Screen. hidden may be nil when in is not a terminal;
// passwords are then read as plain lines.
func NewScreen(in io.Reader, out io.Writer, hidden PasswordReader) *Screen {
	return &Screen{in: bufio.NewReader(in), out: out, hidden: hidden}
}

// RunLogin shows the login form and drives ctrl until a sign-in succeeds,
// input ends or MaxAttempts sign-ins fail.
func (s *Screen) RunLogin(ctx context.Context, ctrl *controller.LoginController) (*model.Profile, error) {
	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	fmt.Fprintln(s.out, "Oxedro ERP")
	fmt.Fprintln(s.out, "Educational Institute Management")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Welcome Back")
	fmt.Fprintln(s.out, "Sign in to continue")
	fmt.Fprintln(s.out)

	for failures := 0; failures < MaxAttempts; {
		if err := s.fillForm(ctrl); err != nil {
			return nil, err
		}

		started := ctrl.Login()
		final, err := s.await(ctx, states)
		if err != nil {
			return nil, err
		}
		if final.Status == model.AuthSuccess {
			return final.Profile, nil
		}

		fmt.Fprintf(s.out, "x %s\n\n", final.Message)
		ctrl.ResetAuthState()
		// Only attempts the provider judged count.
		if started {
			failures++
		}
	}
	fmt.Fprintln(s.out, "Contact your administrator to get credentials")
	return nil, ErrTooManyAttempts
}

func (s *Screen) fillForm(ctrl *controller.LoginController) error {
	fmt.Fprint(s.out, "Unique ID: ")
	uniqueID, err := s.readLine()
	if err != nil {
		return err
	}
	ctrl.SetUniqueID(uniqueID)

	fmt.Fprint(s.out, "Password: ")
	var password string
	if ctrl.PasswordVisible() || s.hidden == nil {
		password, err = s.readLine()
	} else {
		password, err = s.hidden()
		fmt.Fprintln(s.out)
	}
	if err != nil {
		return err
	}
	ctrl.SetPassword(password)
	return nil
}

// await renders transitions until the attempt settles. States left over
// from before the attempt are skipped.
func (s *Screen) await(ctx context.Context, states <-chan model.AuthState) (model.AuthState, error) {
	for {
		select {
		case <-ctx.Done():
			return model.AuthState{}, ctx.Err()
		case state, ok := <-states:
			if !ok {
				return model.AuthState{}, errors.New("login form closed")
			}
			switch state.Status {
			case model.AuthLoading:
				fmt.Fprintln(s.out, "Signing in...")
			case model.AuthSuccess, model.AuthError:
				return state, nil
			}
		}
	}
}

func (s *Screen) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// RenderHome prints the signed-in placeholder screen.
func RenderHome(out io.Writer, p *model.Profile) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Home")
	RenderProfile(out, p)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "More features are on the way.")
}

// RenderProfile prints the identifying fields of p.
func RenderProfile(out io.Writer, p *model.Profile) {
	fmt.Fprintf(out, "Signed in as %s (%s)\n", p.FullName(), p.Role)
	fmt.Fprintf(out, "  Unique ID: %s\n", p.UniqueID)
	fmt.Fprintf(out, "  Email:     %s\n", p.Email)
}
