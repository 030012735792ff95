package gmail

import (
	"context"
	"encoding/json"
	"os"

	"github.com/bassamadnan/mailreminder/store"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const authorizedUser = "authorized_user"

// Credential is the saved authorization, in the "authorized_user" format
// Google client libraries understand.
type Credential struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Consenter runs the interactive part of the OAuth flow and returns an authorization code.
// It may set conf.RedirectURL, which is then used for the code exchange.
type Consenter interface {
	Consent(ctx context.Context, conf *oauth2.Config) (string, error)
}

// Authorization is a usable credential. Access tokens are refreshed by the token source.
type Authorization struct {
	Credential  Credential
	TokenSource oauth2.TokenSource
}

// CredentialStoreConfig configures a CredentialStore.
type CredentialStoreConfig struct {
	Store store.Store
	// CredentialsFile is the OAuth client secrets file.
	CredentialsFile string
	// CredentialsJSON overrides CredentialsFile when set.
	CredentialsJSON []byte
	// Consent is used when there is no saved credential. Nil disables the interactive flow.
	Consent Consenter
	// Endpoint overrides google.Endpoint for saved credentials.
	Endpoint oauth2.Endpoint
}

// CredentialStore loads, saves and obtains the Gmail authorization.
type CredentialStore struct {
	conf   CredentialStoreConfig
	scopes []string
}

func NewCredentialStore(conf CredentialStoreConfig) (*CredentialStore, error) {
	if conf.Store == nil {
		return nil, trace.BadParameter("missing credential store")
	}
	if conf.CredentialsFile == "" && len(conf.CredentialsJSON) == 0 {
		return nil, trace.BadParameter("missing OAuth client secrets")
	}
	if conf.Endpoint.TokenURL == "" {
		conf.Endpoint = google.Endpoint
	}
	return &CredentialStore{conf: conf, scopes: []string{gmail.GmailReadonlyScope}}, nil
}

// LoadSavedCredentials returns the saved credential, or nil if there is none or it is unusable.
func (s *CredentialStore) LoadSavedCredentials(ctx context.Context) *Credential {
	b, err := s.conf.Store.Read(store.TokenKey)
	if err != nil {
		if !trace.IsNotFound(err) {
			log.WithError(err).Warn("Unable to read saved token")
		}
		return nil
	}
	var cred Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		log.WithError(err).Warn("Saved token is not valid JSON, ignoring it")
		return nil
	}
	if cred.RefreshToken == "" || cred.ClientID == "" {
		log.Warn("Saved token has no refresh_token or client_id, ignoring it")
		return nil
	}
	return &cred
}

// Authorize returns a usable authorization, preferring the saved credential.
// Without one it runs the consent flow and saves the result.
func (s *CredentialStore) Authorize(ctx context.Context) (*Authorization, error) {
	if cred := s.LoadSavedCredentials(ctx); cred != nil {
		conf := &oauth2.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			Endpoint:     s.conf.Endpoint,
			Scopes:       s.scopes,
		}
		return &Authorization{
			Credential:  *cred,
			TokenSource: conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}),
		}, nil
	}

	if s.conf.Consent == nil {
		return nil, trace.AccessDenied("no saved token and interactive authorization is not available")
	}

	b, err := s.clientSecrets()
	if err != nil {
		return nil, trace.Wrap(err, "unable to read client secret file")
	}
	conf, err := google.ConfigFromJSON(b, s.scopes...)
	if err != nil {
		return nil, trace.BadParameter("unable to parse client secret file to config: %v", err)
	}

	log.Info("No saved token, starting interactive authorization")
	code, err := s.conf.Consent.Consent(ctx, conf)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, trace.Wrap(err, "unable to retrieve token from web")
	}
	if tok.RefreshToken == "" {
		return nil, trace.AccessDenied("authorization did not return a refresh token")
	}

	cred, err := s.SaveCredentials(ctx, conf, tok)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Authorization{Credential: *cred, TokenSource: conf.TokenSource(ctx, tok)}, nil
}

// SaveCredentials persists the refresh token of tok, overwriting any saved credential.
func (s *CredentialStore) SaveCredentials(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) (*Credential, error) {
	cred := &Credential{
		Type:         authorizedUser,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RefreshToken: tok.RefreshToken,
	}
	b, err := json.Marshal(cred)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := s.conf.Store.Write(store.TokenKey, b); err != nil {
		return nil, trace.Wrap(err, "unable to save oauth token")
	}
	log.WithField("key", store.TokenKey).Info("Saved credential")
	return cred, nil
}

// Seed stores raw as the saved credential unless one already exists.
// It reports whether raw was written.
func (s *CredentialStore) Seed(raw []byte) (bool, error) {
	if len(raw) == 0 || s.conf.Store.Has(store.TokenKey) {
		return false, nil
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return false, trace.BadParameter("invalid token JSON: %v", err)
	}
	if cred.RefreshToken == "" || cred.ClientID == "" {
		return false, trace.BadParameter("token JSON needs client_id and refresh_token")
	}
	if cred.Type == "" {
		cred.Type = authorizedUser
	}
	b, err := json.Marshal(cred)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return true, trace.Wrap(s.conf.Store.Write(store.TokenKey, b))
}

func (s *CredentialStore) clientSecrets() ([]byte, error) {
	if len(s.conf.CredentialsJSON) > 0 {
		return s.conf.CredentialsJSON, nil
	}
	b, err := os.ReadFile(s.conf.CredentialsFile)
	return b, trace.ConvertSystemError(err)
}
