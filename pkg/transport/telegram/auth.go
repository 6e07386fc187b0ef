package telegram

import (
	"context"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
)

// Login runs the code authentication flow for a phone that has no valid
// stored credential. On success the gotd session blob is persisted through
// the session store and the account's user ID is returned.
//
// The code authenticator is supplied by the caller; the CLI prompts on the
// terminal.
func (d *Dialer) Login(ctx context.Context, phone string, code auth.CodeAuthenticator) (int64, error) {
	client := telegram.NewClient(d.APIID, d.APIHash, telegram.Options{
		SessionStorage: &sessionStorage{store: d.Sessions, phone: phone},
	})

	var userID int64
	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(auth.CodeOnly(phone, code), auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return mapRPCError(err)
		}

		self, err := client.Self(ctx)
		if err != nil {
			return mapRPCError(err)
		}
		userID = self.ID
		return nil
	})
	return userID, err
}
