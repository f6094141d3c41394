package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Verify != nil && s.deps.Login.FindAccount != nil
}

func (s Service) Login(ctx context.Context, username, password string) LoginResult {
	return RunLogin(ctx, username, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, s.deps.Logout)
}

func (s Service) Authenticate(raw string) AuthenticateResult {
	return RunAuthenticate(raw, s.deps.Authenticate)
}

func (s Service) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	return RunRegister(ctx, req, s.deps.Register)
}
