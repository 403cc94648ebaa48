package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lipvoice/voice-client/api"
	"github.com/lipvoice/voice-client/catalog"
	"github.com/lipvoice/voice-client/forms"
	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/lipvoice/voice-client/social"
	"gopkg.in/yaml.v3"
)

type command struct {
	summary  string
	needsApp bool
	banner   bool
	run      func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":           {summary: "sign in with email and password, or -google", needsApp: true, banner: true, run: runLogin},
	"register":        {summary: "create an account and sign in", needsApp: true, banner: true, run: runRegister},
	"logout":          {summary: "sign out and forget the local session", needsApp: true, run: runLogout},
	"whoami":          {summary: "show the signed-in user and guest id", needsApp: true, run: runWhoami},
	"change-password": {summary: "change the account password", needsApp: true, run: runChangePassword},
	"voices":          {summary: "list system voices with filters", needsApp: true, run: runVoices},
	"voice":           {summary: "show one voice by id", needsApp: true, run: runVoice},
	"synthesize":      {summary: "turn text into speech", needsApp: true, run: runSynthesize},
	"transcribe":      {summary: "turn an audio file into text", needsApp: true, run: runTranscribe},
	"plans":           {summary: "show pricing plans", run: runPlans},
	"filters":         {summary: "show voice filter options", run: runFilters},
	"guest":           {summary: "show or clear the guest identity", needsApp: true, run: runGuest},
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("LIPVOICE_PASSWORD"), "account password (or LIPVOICE_PASSWORD)")
	google := fs.Bool("google", false, "sign in with Google in the browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *google {
		flow, err := social.NewGoogle(ctx, social.Config{
			ClientID:     a.cfg.GetGoogleClientID(),
			ClientSecret: a.cfg.GetGoogleClientSecret(),
			RedirectURL:  a.cfg.GetGoogleRedirectURL(),
			Issuer:       a.cfg.GetGoogleIssuer(),
		}, a.client.Auth, social.WithLogger(a.log))
		if err != nil {
			return err
		}
		session, err := flow.SignIn(ctx, func(authURL string) error {
			_, err := fmt.Fprintf(a.out, "Open this URL to continue:\n\n  %s\n\n", authURL)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Signed in as %s\n", session.User.Username)
		return nil
	}

	form := forms.Login{Email: *email, Password: *password}
	if err := form.Validate(); err != nil {
		return err
	}
	session, err := a.client.Auth.Login(ctx, api.LoginRequest{Email: form.Email, Password: form.Password})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", session.User.Username)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags("register")
	form := forms.Register{}
	fs.StringVar(&form.Name, "name", "", "display name")
	fs.StringVar(&form.Email, "email", "", "account email")
	fs.StringVar(&form.Password, "password", os.Getenv("LIPVOICE_PASSWORD"), "password (or LIPVOICE_PASSWORD)")
	fs.StringVar(&form.ConfirmPassword, "confirm", "", "password again")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := form.Validate(); err != nil {
		return err
	}
	session, err := a.client.Auth.Register(ctx, api.RegisterRequest{Name: form.Name, Email: form.Email, Password: form.Password})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s\n", session.User.Username)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.client.Auth.Logout(ctx); err != nil {
		a.log.Warn().Err(err).Msg("server logout failed; local session removed")
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func runWhoami(ctx context.Context, a *app, _ []string) error {
	if id, ok := a.guests.Current(ctx); ok {
		fmt.Fprintf(a.out, "guest:   %s\n", id)
	}
	session, err := a.client.Auth.Current(ctx)
	if errors.Is(err, errors.ErrNoSession) {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user:    %s (%s)\n", session.User.Username, session.User.ID)
	if exp := session.Token.Expiry; !exp.IsZero() {
		fmt.Fprintf(a.out, "expires: %s\n", exp.Local().Format(time.RFC3339))
	}
	return nil
}

func runChangePassword(ctx context.Context, a *app, args []string) error {
	fs := newFlags("change-password")
	form := forms.ChangePassword{IsPasswordSet: true}
	noOld := fs.Bool("no-current", false, "the account has no password yet (Google sign-in)")
	fs.StringVar(&form.OldPassword, "current", "", "current password")
	fs.StringVar(&form.NewPassword, "new", "", "new password")
	fs.StringVar(&form.ConfirmPassword, "confirm", "", "new password again")
	if err := fs.Parse(args); err != nil {
		return err
	}
	form.IsPasswordSet = !*noOld
	if err := form.Validate(); err != nil {
		return err
	}
	if err := a.client.Auth.ChangePassword(ctx, api.ChangePasswordRequest{OldPassword: form.OldPassword, NewPassword: form.NewPassword}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

func runVoices(ctx context.Context, a *app, args []string) error {
	fs := newFlags("voices")
	q := api.VoiceQuery{}
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Limit, "limit", 10, "page size")
	fs.StringVar(&q.Name, "name", "", "name contains")
	fs.StringVar(&q.Gender, "gender", "", "gender filter")
	fs.StringVar(&q.Language, "language", "", "language filter")
	fs.StringVar(&q.Style, "style", "", "style filter")
	fs.StringVar(&q.Region, "region", "", "region filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for kind, v := range map[catalog.Kind]string{
		catalog.KindGender:   q.Gender,
		catalog.KindLanguage: q.Language,
		catalog.KindStyle:    q.Style,
		catalog.KindRegion:   q.Region,
	} {
		if !catalog.Valid(kind, v) {
			return errors.Wrapf(errors.ErrInvalidInput, "unknown %s %q (see `lipvoice filters`)", kind, v)
		}
	}

	page, err := a.client.Voices.System(ctx, q)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLANGUAGE\tGENDER\tSTYLE\tREGION")
	for _, v := range page.Voices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Name,
			catalog.Label(catalog.KindLanguage, v.Language),
			catalog.Label(catalog.KindGender, v.Gender),
			catalog.Label(catalog.KindStyle, v.Style),
			catalog.Label(catalog.KindRegion, v.Region))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := page.Pagination
	fmt.Fprintf(a.out, "\npage %d/%d, %d voices\n", p.Page, p.TotalPages, p.Total)
	return nil
}

func runVoice(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "usage: lipvoice voice <id>")
	}
	v, err := a.client.Voices.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(a, v)
}

func runSynthesize(ctx context.Context, a *app, args []string) error {
	fs := newFlags("synthesize")
	req := api.SynthesizeRequest{}
	textFile := fs.String("file", "", "read the text from this file")
	out := fs.String("out", "", "save the audio to this path")
	fs.StringVar(&req.VoiceID, "voice", "", "voice id")
	fs.StringVar(&req.Text, "text", "", "text to speak")
	fs.Float64Var(&req.Speed, "speed", api.DefaultSpeed, "speaking rate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *textFile != "" {
		data, err := os.ReadFile(*textFile)
		if err != nil {
			return err
		}
		req.Text = string(data)
	}

	res, err := a.client.Speech.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "audio:    %s\nduration: %.1fs\n", res.AudioURL, res.Duration)
	if *out == "" {
		return nil
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	n, err := a.client.Speech.DownloadAudio(ctx, res.AudioURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved:    %s (%d bytes)\n", *out, n)
	return nil
}

func runTranscribe(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "usage: lipvoice transcribe <audio-file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := a.client.Speech.Transcribe(ctx, f.Name(), f)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Text)
	return nil
}

func runPlans(_ context.Context, a *app, args []string) error {
	fs := newFlags("plans")
	format := fs.String("o", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plans := catalog.Plans()
	switch *format {
	case "json":
		return writeJSON(a, plans)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		defer enc.Close()
		return enc.Encode(plans)
	case "text":
		for _, p := range plans {
			marker := ""
			if p.Highlight {
				marker = "  (most popular)"
			}
			fmt.Fprintf(a.out, "%s  %s%s\n  %s\n", p.Name, p.PriceLabel(), marker, p.Description)
			for _, f := range p.Features {
				fmt.Fprintf(a.out, "  - %s\n", f)
			}
			fmt.Fprintln(a.out)
		}
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidInput, "unknown format %q", *format)
}

func runFilters(_ context.Context, a *app, _ []string) error {
	for _, kind := range catalog.Kinds() {
		opts := catalog.Options(kind)
		ids := make([]string, 0, len(opts))
		for _, o := range opts {
			ids = append(ids, fmt.Sprintf("%s (%s)", o.ID, o.Name))
		}
		fmt.Fprintf(a.out, "%-9s %s\n", kind+":", strings.Join(ids, ", "))
	}
	return nil
}

func runGuest(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 && args[0] == "clear" {
		if err := a.guests.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Guest identity cleared")
		return nil
	}
	id, err := a.guests.Ensure(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
