package dispatch

import (
	"context"

	"github.com/andrebq/gatekeeper/credentials"
	"github.com/andrebq/gatekeeper/credentials/api"
	"github.com/andrebq/gatekeeper/notifier"
)

const (
	AuthenticateAPI = "authenticate"
	NotifierAPI     = "notifier"
)

// DefaultHooks enables every action served by this package.
func DefaultHooks() Hooks {
	return Hooks{
		AuthenticateAPI: {
			"signUp":       true,
			"signIn":       true,
			"validate":     true,
			"authenticate": true,
			"signOut":      true,
		},
		NotifierAPI: {
			"checkout": true,
		},
	}
}

// Authenticate registers the user management actions. signOut is only
// bound when the manager can revoke what it issues.
func Authenticate(d *D, m *credentials.Manager) {
	d.Register(AuthenticateAPI)
	d.Handle(AuthenticateAPI, "signUp", func(ctx context.Context, p Params) (interface{}, error) {
		args, err := p.Strings("name", "password")
		if err != nil {
			return nil, err
		}
		return m.SignUp(ctx, args[0], args[1])
	})
	d.Handle(AuthenticateAPI, "signIn", func(ctx context.Context, p Params) (interface{}, error) {
		args, err := p.Strings("name", "password")
		if err != nil {
			return nil, err
		}
		return m.SignIn(ctx, args[0], args[1])
	})
	validate := func(ctx context.Context, p Params) (interface{}, error) {
		credential, err := p.OneOf("token", "session")
		if err != nil {
			return nil, err
		}
		return m.Validate(ctx, credential)
	}
	d.Handle(AuthenticateAPI, "validate", validate)
	d.Handle(AuthenticateAPI, "authenticate", validate)
	if m.Revocable() {
		d.Handle(AuthenticateAPI, "signOut", func(ctx context.Context, p Params) (interface{}, error) {
			credential, err := p.OneOf("token", "session")
			if err != nil {
				return nil, err
			}
			return nil, m.SignOut(ctx, credential)
		})
	}
}

// Notifier registers the inbox actions, the caller is identified by the
// bearer credential checked by realm.
func Notifier(d *D, n *notifier.Notifier, realm *api.SecurityRealm) {
	d.Register(NotifierAPI, realm.Protect)
	d.Handle(NotifierAPI, "checkout", func(ctx context.Context, p Params) (interface{}, error) {
		row, ok := api.User(ctx)
		if !ok {
			return nil, credentials.InvalidSession{}
		}
		return n.Checkout(ctx, row)
	})
}
