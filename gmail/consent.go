package gmail

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const defaultLoopbackAddr = "127.0.0.1:0"

// LoopbackConsent receives the authorization code on a short-lived local HTTP listener,
// the installed-app flow Google recommends.
type LoopbackConsent struct {
	// Prompt is handed the consent URL the user has to open. It must not block.
	Prompt func(authURL string)
	// Timeout bounds the wait for the redirect. Zero means wait for ctx only.
	Timeout time.Duration
	// Addr is the listen address, 127.0.0.1 on a random port by default.
	Addr string
}

type consentResult struct {
	code string
	err  error
}

func (l *LoopbackConsent) Consent(ctx context.Context, conf *oauth2.Config) (string, error) {
	addr := l.Addr
	if addr == "" {
		addr = defaultLoopbackAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	conf.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.NewString()
	results := make(chan consentResult, 1)
	send := func(r consentResult) {
		select {
		case results <- r:
		default:
		}
	}

	router := httprouter.New()
	router.GET("/", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(rw, "state mismatch", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			send(consentResult{err: trace.AccessDenied("authorization was rejected: %s", reason)})
			fmt.Fprintln(rw, "Authorization was rejected. You can close this window.")
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(rw, "missing code", http.StatusBadRequest)
			return
		}
		send(consentResult{code: code})
		fmt.Fprintln(rw, "Authorization complete. You can close this window.")
	})

	srv := &http.Server{Handler: router}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Authorization callback listener failed")
		}
	}()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if l.Prompt != nil {
		l.Prompt(authURL)
	} else {
		log.WithField("url", authURL).Warn("Open this link in your browser to authorize Gmail access")
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	select {
	case r := <-results:
		return r.code, trace.Wrap(r.err)
	case <-ctx.Done():
		return "", trace.Wrap(ctx.Err(), "waiting for authorization")
	}
}
