package authmw

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Nerzal/gocloak/v13"
)

// Service wraps the identity provider: login, registration and profile
// lookups. Authentication itself stays with the provider; the application
// only consumes the authenticated principal.
type Service struct {
	Client       *gocloak.GoCloak
	Realm        string
	clientID     string
	clientSecret string

	KCAuth *KeycloakAuth
}

func NewService(baseURL, Realm, clientID, issuer, aud, clientSecret string) (*Service, error) {
	client := gocloak.NewClient("http://" + baseURL)

	// the middleware authenticator
	kcAuth, err := NewKeycloakAuth(
		fmt.Sprintf(
			"http://%s/realms/%s/protocol/openid-connect/certs",
			baseURL,
			Realm,
		),
		issuer,
		aud,
		clientID,
	)
	if err != nil {
		log.Printf("failed to instantiate the kc authenticator middleware: %v", err)

		return nil, err
	}

	s := &Service{
		Client:       client,
		Realm:        Realm,
		clientID:     clientID,
		clientSecret: clientSecret,
	}

	s.KCAuth = kcAuth

	if err := s.selfTest(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) selfTest() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jwt, err := s.Client.LoginClient(
		ctx,
		s.clientID,
		s.clientSecret,
		s.Realm,
	)
	if err != nil {
		return fmt.Errorf("keycloak auth failed: %w", err)
	}

	// Minimal permission check (safe & cheap)
	_, err = s.Client.GetRealm(ctx, jwt.AccessToken, s.Realm)
	if err != nil {
		return fmt.Errorf("keycloak permission check failed: %w", err)
	}

	return nil
}

func (s *Service) LoginAdmin(ctx context.Context) (*gocloak.JWT, error) {
	return s.Client.LoginClient(
		ctx,
		s.clientID,
		s.clientSecret,
		s.Realm,
	)
}

func (s *Service) Login(
	ctx context.Context,
	email, password string,
) (*gocloak.JWT, error) {

	return s.Client.Login(
		ctx,
		s.clientID,
		s.clientSecret,
		s.Realm,
		email,
		password,
	)
}

// Register provisions a provider account. The email doubles as username so
// the provider and the document store agree on the durable identifier.
func (s *Service) Register(
	ctx context.Context,
	token string,
	email, password, firstname, lastname string,
) (string, error) {

	user := gocloak.User{
		Username:  gocloak.StringP(email),
		Email:     gocloak.StringP(email),
		Enabled:   gocloak.BoolP(true),
		FirstName: gocloak.StringP(firstname),
		LastName:  gocloak.StringP(lastname),
		Credentials: &[]gocloak.CredentialRepresentation{
			{
				Type:      gocloak.StringP("password"),
				Value:     gocloak.StringP(password),
				Temporary: gocloak.BoolP(false),
			},
		},
	}

	return s.Client.CreateUser(ctx, token, s.Realm, user)
}

func (s *Service) GetUserByEmail(ctx context.Context, token, email string) (*gocloak.User, error) {
	users, err := s.Client.GetUsers(ctx, token, s.Realm, gocloak.GetUsersParams{
		Email: gocloak.StringP(email),
		Exact: gocloak.BoolP(true),
		Max:   gocloak.IntP(2),
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user not found")
	}
	if len(users) > 1 {
		return nil, fmt.Errorf("multiple users matched email")
	}
	return users[0], nil
}

// UpdateNames pushes a profile name change back to the provider.
func (s *Service) UpdateNames(ctx context.Context, token, userID, firstname, lastname string) error {
	user, err := s.Client.GetUserByID(ctx, token, s.Realm, userID)
	if err != nil {
		return err
	}

	user.FirstName = gocloak.StringP(firstname)
	user.LastName = gocloak.StringP(lastname)

	return s.Client.UpdateUser(ctx, token, s.Realm, *user)
}
