// internal/pipeline/outcome.go
package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// StepOutcome holds the values captured from the agent app and handed to the
// external tool. Each value can be set exactly once per run.
type StepOutcome struct {
	webhookURL string
	authToken  string
}

// WebhookURL returns the captured webhook endpoint, or "".
func (o *StepOutcome) WebhookURL() string { return o.webhookURL }

// AuthToken returns the captured webhook secret, or "".
func (o *StepOutcome) AuthToken() string { return o.authToken }

// SetWebhookURL records the webhook endpoint.
func (o *StepOutcome) SetWebhookURL(v string) error {
	return setOnce(&o.webhookURL, "webhook URL", v)
}

// SetAuthToken records the webhook secret.
func (o *StepOutcome) SetAuthToken(v string) error {
	return setOnce(&o.authToken, "auth token", v)
}

// Require reports every missing value as ErrExternalStateMissing.
func (o *StepOutcome) Require() error {
	var errs error
	if o.webhookURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: webhook URL was never captured", ErrExternalStateMissing))
	}
	if o.authToken == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: auth token was never captured", ErrExternalStateMissing))
	}
	return errs
}

func setOnce(field *string, what, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("%s: %w", what, ErrEmptyOutcome)
	}
	if *field != "" {
		return fmt.Errorf("%s: %w", what, ErrOutcomeImmutable)
	}
	*field = v
	return nil
}
