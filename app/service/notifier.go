package service

import "context"

// Notifier delivers account emails. Only SendResetLink failures reach the
// caller; every other send is best-effort.
type Notifier interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
	SendWelcome(ctx context.Context, to, name string) error
	SendResetLink(ctx context.Context, to, name, link string) error
	SendResetSuccess(ctx context.Context, to, name string) error
	SendEmailChangeCode(ctx context.Context, to, name, code string) error
}
