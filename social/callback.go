package social

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/lipvoice/voice-client/credentials"
	"github.com/lipvoice/voice-client/internal/errors"
)

type result struct {
	session *credentials.Session
	err     error
}

// callbackHandler completes the flow when the browser is redirected back.
// Each outcome is sent on done; the handler never blocks on it.
func (g *GoogleSignIn) callbackHandler(done chan<- result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.FormValue("error"); errParam != "" {
			err := fmt.Errorf("authorization failed: %s - %s", errParam, r.FormValue("error_description"))
			http.Error(w, err.Error(), http.StatusBadRequest)
			send(done, result{err: err})
			return
		}
		state, code := r.FormValue("state"), r.FormValue("code")
		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		session, err := g.Complete(r.Context(), state, code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			send(done, result{err: err})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "Signed in to LipVoice. You can close this window.")
		send(done, result{session: session})
	}
}

// SignIn serves the redirect URL's path locally, calls open with the Google URL
// and waits for the browser to come back. A loopback redirect with port 0 listens
// on a free port and redirects there.
func (g *GoogleSignIn) SignIn(ctx context.Context, open func(authURL string) error) (*credentials.Session, error) {
	redirect, err := url.Parse(g.oauth.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "redirect url %q", g.oauth.RedirectURL)
	}
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", redirect.Host)
	}

	actual := *redirect
	actual.Host = ln.Addr().String()

	done := make(chan result, 1)
	mux := http.NewServeMux()
	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, g.callbackHandler(done))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, _ := g.authCodeURL(actual.String())
	if err := open(authURL); err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func send(done chan<- result, res result) {
	select {
	case done <- res:
	default:
	}
}
