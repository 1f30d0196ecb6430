package email

import "context"

// Provider delivers program notifications. Delivery is fire-and-forget from
// the engines' perspective; a failed send never rolls back a financial write.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
