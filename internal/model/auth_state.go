package model

// AuthStatus names one of the four login lifecycle states.
type AuthStatus string

const (
	AuthInitial AuthStatus = "initial"
	AuthLoading AuthStatus = "loading"
	AuthSuccess AuthStatus = "success"
	AuthError   AuthStatus = "error"
)

// AuthState is the lifecycle of one login attempt.
// Profile is set only for AuthSuccess, Message only for AuthError.
type AuthState struct {
	Status  AuthStatus `json:"status"`
	Profile *Profile   `json:"profile,omitempty"`
	Message string     `json:"message,omitempty"`
}

func InitialState() AuthState { return AuthState{Status: AuthInitial} }

func LoadingState() AuthState { return AuthState{Status: AuthLoading} }

func SuccessState(p *Profile) AuthState { return AuthState{Status: AuthSuccess, Profile: p} }

func ErrorState(message string) AuthState { return AuthState{Status: AuthError, Message: message} }

// CanSubmit reports whether a new login may start from this state.
func (s AuthState) CanSubmit() bool {
	return s.Status == AuthInitial || s.Status == AuthError
}
