// internal/pipeline/stages.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/observability"
)

// Stage is one step of the pipeline. A failing optional stage is logged and
// skipped; a failing required stage ends the run.
type Stage struct {
	Name     string
	Required bool
	Run      func(ctx context.Context, rc *RunContext) error
}

// Stage names, as they appear in logs and the run report.
const (
	StageAuthenticate          = "authenticate"
	StageFillOnboardingForm    = "fill_onboarding_form"
	StageProvisionBilling      = "provision_billing"
	StageInstallTemplate       = "install_template"
	StageConfigureWebhook      = "configure_webhook"
	StageDeploy                = "deploy"
	StageConfigureExternalTool = "configure_external_tool"
	StageWaitFixedDuration     = "wait_fixed_duration"
	StageDeleteAccount         = "delete_account"
	StageCleanup               = "cleanup"
)

// DefaultStages returns the full pipeline in order. Cleanup is not a stage;
// the Runner always performs it last.
func DefaultStages() []Stage {
	return []Stage{
		{Name: StageAuthenticate, Required: true, Run: Authenticate},
		{Name: StageFillOnboardingForm, Required: false, Run: FillOnboardingForm},
		{Name: StageProvisionBilling, Required: false, Run: ProvisionBilling},
		{Name: StageInstallTemplate, Required: true, Run: InstallTemplate},
		{Name: StageConfigureWebhook, Required: true, Run: ConfigureWebhook},
		{Name: StageDeploy, Required: false, Run: Deploy},
		{Name: StageConfigureExternalTool, Required: true, Run: ConfigureExternalTool},
		{Name: StageWaitFixedDuration, Required: true, Run: WaitFixedDuration},
		{Name: StageDeleteAccount, Required: true, Run: DeleteAccount},
	}
}

// FillOnboardingForm fills whichever account fields the onboarding form
// shows and submits it. A page without any of the fields is not an error.
func FillOnboardingForm(ctx context.Context, rc *RunContext) error {
	acct := rc.Config.Account
	fields := []struct {
		key, value string
	}{
		{KeyOnboardingEmail, acct.Email},
		{KeyOnboardingPassword, acct.Password},
		{KeyOnboardingFullName, acct.FullName},
		{KeyOnboardingCompany, acct.Company},
	}

	filled := 0
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		err := rc.fill(ctx, f.key, f.value, rc.Config.Waits.Short)
		if err == nil {
			filled++
			continue
		}
		if err := rc.tolerate(ctx, err, "Onboarding field not present."); err != nil {
			return err
		}
	}
	if filled == 0 {
		rc.Logger.Info("No onboarding form found.")
		return nil
	}

	if err := rc.click(ctx, KeyOnboardingSubmit, rc.Config.Waits.Medium); err != nil {
		return fmt.Errorf("failed to submit onboarding form: %w", err)
	}
	rc.Logger.Info("Onboarding form submitted.", zap.Int("fields", filled))
	return nil
}

// ProvisionBilling starts the free trial with the configured card. Without a
// card number, or without a trial offer on the page, it does nothing.
func ProvisionBilling(ctx context.Context, rc *RunContext) error {
	bill := rc.Config.Billing
	if bill.CardNumber == "" {
		rc.Logger.Info("No card configured; skipping billing.")
		return nil
	}

	err := rc.click(ctx, KeyBillingStartTrial, rc.Config.Waits.Medium)
	if errors.Is(err, executor.ErrNotFound) {
		rc.Logger.Info("No free trial offer shown; the account may already have credits.")
		return nil
	}
	if err != nil {
		return err
	}

	for _, f := range []struct{ key, value string }{
		{KeyBillingCardNumber, bill.CardNumber},
		{KeyBillingExpiry, bill.CardExpiry},
		{KeyBillingCVC, bill.CardCVC},
	} {
		if err := rc.fill(ctx, f.key, f.value, rc.Config.Waits.Long); err != nil {
			return fmt.Errorf("failed to enter card details: %w", err)
		}
	}
	for _, f := range []struct{ key, value string }{
		{KeyBillingName, bill.CardholderName},
		{KeyBillingCountry, bill.Country},
		{KeyBillingPostalCode, bill.PostalCode},
	} {
		if f.value == "" {
			continue
		}
		if err := rc.tolerate(ctx, rc.fill(ctx, f.key, f.value, rc.Config.Waits.Short), "Optional billing field not filled."); err != nil {
			return err
		}
	}

	if err := rc.click(ctx, KeyBillingSave, rc.Config.Waits.Medium); err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	if err := rc.gone(ctx, KeyBillingCardNumber, rc.Config.Waits.Long); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rc.Logger.Warn("Card form is still visible after saving.", zap.Error(err))
	}
	rc.Logger.Info("Billing provisioned.")
	return nil
}

// InstallTemplate adds the template to the workspace and opens its editor.
func InstallTemplate(ctx context.Context, rc *RunContext) error {
	if err := rc.navigate(ctx, rc.Config.Targets.TemplateURL); err != nil {
		return fmt.Errorf("failed to open template: %w", err)
	}
	before, err := rc.currentURL(ctx)
	if err != nil {
		return err
	}
	if urlMatches(before, rc.Config.Session.LoggedOutMarkers) {
		return fmt.Errorf("%w: template page redirected to %s", ErrLoginRequired, before)
	}

	if err := rc.click(ctx, KeyTemplateAdd, rc.Config.Waits.Long); err != nil {
		return fmt.Errorf("failed to add template: %w", err)
	}

	var after string
	err = rc.Executor.WaitUntil(ctx, "template to open", rc.Config.Waits.Long, func(ctx context.Context) (bool, error) {
		u, err := rc.currentURL(ctx)
		after = u
		return err == nil && u != before, err
	})
	if err != nil {
		return err
	}

	if editor, ok := editorURL(after); ok {
		if err := rc.navigate(ctx, editor); err != nil {
			return fmt.Errorf("failed to open editor: %w", err)
		}
		after = editor
	}
	rc.Logger.Info("Template installed.", zap.String("url", after))
	return nil
}

// editorURL rewrites an agent's tasks view to its editor.
func editorURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, ok := strings.CutSuffix(strings.TrimSuffix(u.Path, "/"), "/tasks")
	if !ok {
		return "", false
	}
	u.Path = base + "/editor"
	return u.String(), true
}

// ConfigureWebhook opens the webhook trigger, reuses or creates a webhook and
// captures its URL and secret into the outcome.
func ConfigureWebhook(ctx context.Context, rc *RunContext) error {
	waits := rc.Config.Waits
	if err := rc.click(ctx, KeyWebhookTrigger, waits.Long); err != nil {
		return fmt.Errorf("failed to open webhook trigger: %w", err)
	}

	hookURL, err := rc.read(ctx, KeyWebhookURLField, waits.Short)
	if err == nil && isWebhookURL(hookURL) {
		rc.Logger.Info("Reusing existing webhook.", zap.String("url", hookURL))
	} else {
		if err := rc.tolerate(ctx, err, "No existing webhook URL."); err != nil {
			return err
		}
		if hookURL, err = createWebhook(ctx, rc); err != nil {
			return err
		}
	}
	if err := rc.Outcome.SetWebhookURL(hookURL); err != nil {
		return err
	}

	if err := rc.click(ctx, KeyWebhookSecretButton, waits.Medium); err != nil {
		return fmt.Errorf("failed to open webhook secret: %w", err)
	}
	token, err := readSecret(ctx, rc)
	if err != nil {
		return err
	}
	if err := rc.Outcome.SetAuthToken(token); err != nil {
		return err
	}
	inspectToken(rc.Logger, token, rc.now(), waits.Total)

	if p := rc.Page(); p != nil {
		if err := p.PressKey(ctx, "Escape"); err != nil {
			rc.Logger.Debug("Could not dismiss the secret dialog.", zap.Error(err))
		}
	}
	rc.Logger.Info("Webhook configured.",
		zap.String("url", hookURL),
		observability.Secret("token", token))
	return nil
}

func createWebhook(ctx context.Context, rc *RunContext) (string, error) {
	waits := rc.Config.Waits
	if err := rc.tolerate(ctx, rc.click(ctx, KeyWebhookSelect, waits.Short), "No webhook selector shown."); err != nil {
		return "", err
	}
	if err := rc.click(ctx, KeyWebhookCreate, waits.Medium); err != nil {
		return "", fmt.Errorf("failed to start webhook creation: %w", err)
	}
	name := fmt.Sprintf("%s %d", rc.Config.Integration.WebhookName, rc.now().Unix())
	if err := rc.fill(ctx, KeyWebhookName, name, waits.Medium); err != nil {
		return "", fmt.Errorf("failed to name webhook: %w", err)
	}
	p, err := rc.page()
	if err != nil {
		return "", err
	}
	if err := p.PressKey(ctx, "Enter"); err != nil {
		return "", fmt.Errorf("failed to confirm webhook name: %w", err)
	}

	hookURL, err := rc.read(ctx, KeyWebhookURLField, waits.Long)
	if err != nil {
		return "", fmt.Errorf("failed to read webhook URL: %w", err)
	}
	if !isWebhookURL(hookURL) {
		return "", fmt.Errorf("webhook URL field holds %q, not an https URL", hookURL)
	}
	rc.Logger.Info("Created webhook.", zap.String("name", name), zap.String("url", hookURL))
	return hookURL, nil
}

// readSecret prefers the dialog's read-only field and only falls back to the
// clipboard when the secret is not in the DOM.
func readSecret(ctx context.Context, rc *RunContext) (string, error) {
	waits := rc.Config.Waits
	token, err := rc.read(ctx, KeyWebhookSecretField, waits.Short)
	if err == nil && token != "" {
		return token, nil
	}
	if err := rc.tolerate(ctx, err, "Secret not readable from the page; trying the clipboard."); err != nil {
		return "", err
	}

	res, err := rc.act(ctx, KeyWebhookSecretCopy, executor.CopyToClipboard(), waits.Short)
	if err != nil {
		return "", fmt.Errorf("failed to copy webhook secret: %w", err)
	}
	if token = strings.TrimSpace(res.Value); token == "" {
		return "", errors.New("webhook secret copy produced an empty clipboard")
	}
	return token, nil
}

func isWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

// inspectToken logs the expiry of a JWT-shaped token. The signature is never
// checked; the token is opaque to this program.
func inspectToken(logger *zap.Logger, token string, now time.Time, horizon time.Duration) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logger.Debug("Webhook secret is not a JWT.")
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		logger.Debug("Webhook secret is a JWT without an expiry.")
		return
	}
	switch {
	case !exp.After(now):
		logger.Warn("Webhook secret has already expired.", zap.Time("expires_at", exp.Time))
	case exp.Before(now.Add(horizon)):
		logger.Warn("Webhook secret expires before the wait ends.", zap.Time("expires_at", exp.Time))
	default:
		logger.Info("Webhook secret expiry.", zap.Time("expires_at", exp.Time))
	}
}

// Deploy publishes the agent. A missing button usually means it already is.
func Deploy(ctx context.Context, rc *RunContext) error {
	err := rc.click(ctx, KeyDeployButton, rc.Config.Waits.Medium)
	if errors.Is(err, executor.ErrNotFound) {
		rc.Logger.Info("Deploy button not found; the agent may already be deployed.")
		return nil
	}
	if err != nil {
		return err
	}

	ok, err := rc.present(ctx, KeyDeployConfirm, rc.Config.Waits.Long)
	if err != nil {
		return rc.tolerate(ctx, err, "Could not confirm deployment.")
	}
	if ok {
		rc.Logger.Info("Agent deployed.")
	} else {
		rc.Logger.Info("Deploy clicked; no confirmation shown.")
	}
	return nil
}

// ConfigureExternalTool hands the captured webhook to the external tool and
// starts it. It refuses to touch the page when the outcome is incomplete.
func ConfigureExternalTool(ctx context.Context, rc *RunContext) error {
	if err := rc.Outcome.Require(); err != nil {
		return err
	}
	waits := rc.Config.Waits
	if err := rc.navigate(ctx, rc.Config.Targets.WorkflowURL); err != nil {
		return fmt.Errorf("failed to open external tool: %w", err)
	}
	if err := rc.fill(ctx, KeyExternalWebhookURL, rc.Outcome.WebhookURL(), waits.Long); err != nil {
		return fmt.Errorf("failed to enter webhook URL: %w", err)
	}
	if err := rc.fill(ctx, KeyExternalToken, rc.Outcome.AuthToken(), waits.Medium); err != nil {
		return fmt.Errorf("failed to enter auth token: %w", err)
	}
	if token := rc.Config.Integration.APIToken; token != "" {
		if err := rc.tolerate(ctx, rc.fill(ctx, KeyExternalAPIToken, token, waits.Short), "No API token field."); err != nil {
			return err
		}
	}
	if err := rc.click(ctx, KeyExternalSave, waits.Medium); err != nil {
		return fmt.Errorf("failed to save external tool configuration: %w", err)
	}
	if err := rc.tolerate(ctx, rc.click(ctx, KeyExternalStart, waits.Medium), "No start button; the tool may start on its own."); err != nil {
		return err
	}
	rc.Logger.Info("External tool configured.")
	return nil
}

// WaitFixedDuration sleeps for waits.total so the external tool can work
// through its queue. Nothing is polled; it is a plain delay.
func WaitFixedDuration(ctx context.Context, rc *RunContext) error {
	total := rc.Config.Waits.Total
	if total <= 0 {
		rc.Logger.Info("No wait configured.")
		return nil
	}
	rc.Logger.Info("Waiting for the external tool.", zap.Duration("total", total))

	deadline := time.Now().Add(total)
	timer := time.NewTimer(total)
	defer timer.Stop()
	ticker := time.NewTicker(rc.progressEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			rc.Logger.Info("Wait period completed.")
			return nil
		case <-ticker.C:
			rc.Logger.Info("Still waiting.", zap.Duration("remaining", time.Until(deadline).Round(time.Second)))
		}
	}
}

// DeleteAccount removes the account from the agent app.
func DeleteAccount(ctx context.Context, rc *RunContext) error {
	waits := rc.Config.Waits
	if err := rc.navigate(ctx, rc.Config.Targets.AgentURL); err != nil {
		return fmt.Errorf("failed to open the agent app: %w", err)
	}
	if err := rc.tolerate(ctx, rc.click(ctx, KeyAccountMenu, waits.Short), "No account menu."); err != nil {
		return err
	}
	if err := rc.tolerate(ctx, rc.click(ctx, KeyAccountSettings, waits.Medium), "No settings entry."); err != nil {
		return err
	}
	if err := rc.click(ctx, KeyAccountDelete, waits.Medium); err != nil {
		return fmt.Errorf("failed to find account deletion: %w", err)
	}
	if err := rc.tolerate(ctx, rc.click(ctx, KeyAccountConfirm, waits.Medium), "No deletion confirmation asked."); err != nil {
		return err
	}
	rc.Logger.Info("Account deleted.")
	return nil
}
