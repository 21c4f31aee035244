// internal/pipeline/catalog.go
package pipeline

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// Catalog keys. Each names one logical UI action.
const (
	KeyLoginMarker = "login.marker"

	KeyOnboardingEmail    = "onboarding.email"
	KeyOnboardingPassword = "onboarding.password"
	KeyOnboardingFullName = "onboarding.full_name"
	KeyOnboardingCompany  = "onboarding.company"
	KeyOnboardingSubmit   = "onboarding.submit"

	KeyBillingStartTrial = "billing.start_trial"
	KeyBillingCardNumber = "billing.card_number"
	KeyBillingExpiry     = "billing.card_expiry"
	KeyBillingCVC        = "billing.card_cvc"
	KeyBillingName       = "billing.cardholder_name"
	KeyBillingCountry    = "billing.country"
	KeyBillingPostalCode = "billing.postal_code"
	KeyBillingSave       = "billing.save"

	KeyTemplateAdd = "template.add"

	KeyWebhookTrigger      = "webhook.trigger"
	KeyWebhookURLField     = "webhook.url_field"
	KeyWebhookSelect       = "webhook.select"
	KeyWebhookCreate       = "webhook.create"
	KeyWebhookName         = "webhook.name"
	KeyWebhookSecretButton = "webhook.secret_button"
	KeyWebhookSecretField  = "webhook.secret_field"
	KeyWebhookSecretCopy   = "webhook.secret_copy"

	KeyDeployButton  = "deploy.button"
	KeyDeployConfirm = "deploy.confirmation"

	KeyExternalWebhookURL = "external.webhook_url"
	KeyExternalToken      = "external.token"
	KeyExternalAPIToken   = "external.api_token"
	KeyExternalSave       = "external.save"
	KeyExternalStart      = "external.start"

	KeyAccountMenu     = "account.menu"
	KeyAccountSettings = "account.settings"
	KeyAccountDelete   = "account.delete"
	KeyAccountConfirm  = "account.confirm"
)

var defaultLocators = map[string][]string{
	KeyLoginMarker: {
		"role=button[name='New Agent']",
		"button:contains-text='New Agent'",
	},

	KeyOnboardingEmail: {
		"input:placeholder='email'",
		"css=input[type='email']",
	},
	KeyOnboardingPassword: {
		"css=input[type='password']",
	},
	KeyOnboardingFullName: {
		"input:placeholder='full name'",
		"input:placeholder='your name'",
		"css=input[name='name']",
	},
	KeyOnboardingCompany: {
		"input:placeholder='company'",
		"css=input[name='company']",
	},
	KeyOnboardingSubmit: {
		"button:exact-text='Continue'",
		"button:exact-text='Next'",
		"button:exact-text='Get Started'",
		"button:exact-text='Submit'",
		"css=button[type='submit']",
	},

	KeyBillingStartTrial: {
		"button:contains-text='Start Free Trial'",
		"button:contains-text='Free Trial'",
		"button:contains-text='Start Trial'",
	},
	KeyBillingCardNumber: {
		"input:placeholder='card number'",
		"css=input[autocomplete='cc-number']",
		"css=input[name='cardnumber']",
	},
	KeyBillingExpiry: {
		"input:placeholder='MM'",
		"input:placeholder='expir'",
		"css=input[autocomplete='cc-exp']",
	},
	KeyBillingCVC: {
		"input:placeholder='CVC'",
		"input:placeholder='CVV'",
		"css=input[autocomplete='cc-csc']",
	},
	KeyBillingName: {
		"input:placeholder='name on card'",
		"input:placeholder='cardholder'",
		"css=input[autocomplete='cc-name']",
	},
	KeyBillingCountry: {
		"css=select[name='country']",
		"css=select[autocomplete='country']",
		"input:placeholder='country'",
	},
	KeyBillingPostalCode: {
		"input:placeholder='postal'",
		"input:placeholder='ZIP'",
		"css=input[autocomplete='postal-code']",
	},
	KeyBillingSave: {
		"button:exact-text='Save Card'",
		"button:exact-text='Add Card'",
		"button:exact-text='Save'",
		"button:exact-text='Submit'",
	},

	// The top navigation carries its own "Add" button.
	KeyTemplateAdd: {
		"button:exact-text='Add' @y>150",
		"button:contains-text='Add' @y>150",
		"button:exact-text='Use template'",
		"button:contains-text='Use this template'",
		"button:contains-text='Add to workspace'",
	},

	KeyWebhookTrigger: {
		"*:exact-text='Webhook Received'",
		"button:contains-text='Webhook Received'",
		"*:exact-text='Webhook'",
	},
	KeyWebhookURLField: {
		"css=input[value^='https://']",
		"css=input[readonly][value*='://']",
	},
	KeyWebhookSelect: {
		"*:exact-text='Select an option'",
		"role=combobox",
	},
	KeyWebhookCreate: {
		"*:exact-text='Create Webhook'",
		"*:exact-text='Create webhook'",
		"*:contains-text='New webhook'",
	},
	KeyWebhookName: {
		"input:placeholder='name'",
		"css=input[type='text']:not([readonly])",
	},
	KeyWebhookSecretButton: {
		"button:contains-text='secret'",
		"button:contains-text='Generate'",
	},
	KeyWebhookSecretField: {
		"css=[role='dialog'] input[readonly]",
		"css=input[readonly]:not([value^='https://'])",
	},
	KeyWebhookSecretCopy: {
		"css=[role='dialog'] button[aria-label*='opy']",
		"button:contains-text='Copy'",
	},

	KeyDeployButton: {
		"button:exact-text='Deploy'",
		"button:contains-text='Deploy'",
	},
	KeyDeployConfirm: {
		"*:contains-text='Deployed'",
		"*:contains-text='is live'",
	},

	KeyExternalWebhookURL: {
		"input:placeholder='Lindy URL'",
		"input:placeholder='webhook url'",
		"css=input[name*='lindy']",
	},
	KeyExternalToken: {
		"input:placeholder='authorization'",
		"input:placeholder='auth token'",
		"input:placeholder='secret'",
	},
	KeyExternalAPIToken: {
		"input:placeholder='api key'",
		"input:placeholder='github token'",
		"css=input[name*='api']",
	},
	KeyExternalSave: {
		"button:exact-text='Save Configuration'",
		"button:exact-text='Save'",
	},
	KeyExternalStart: {
		"button:exact-text='Start Processing'",
		"button:exact-text='Start'",
	},

	KeyAccountMenu: {
		"css=button[aria-label*='menu']",
		"css=button[aria-label*='account']",
		"css=[class*='avatar']",
	},
	KeyAccountSettings: {
		"*:exact-text='Settings'",
		"role=menuitem[name='Settings']",
	},
	KeyAccountDelete: {
		"button:exact-text='Delete Account'",
		"button:exact-text='Delete account'",
		"button:contains-text='Delete account'",
	},
	KeyAccountConfirm: {
		"button:exact-text='Confirm'",
		"button:exact-text='Delete'",
		"button:exact-text='Yes'",
	},
}

// Catalog maps logical action keys to their ordered candidate locators.
type Catalog struct {
	entries map[string][]locator.Candidate
}

// DefaultCatalog returns the built-in locators.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[string][]locator.Candidate, len(defaultLocators))}
	for key, list := range defaultLocators {
		c.entries[key] = locator.MustParseAll(list...)
	}
	return c
}

// NewCatalog returns the built-in locators with overrides applied. An
// override replaces the whole list for its key; unknown keys are rejected so
// a typo in the configuration does not go unnoticed.
func NewCatalog(overrides map[string][]string) (*Catalog, error) {
	c := DefaultCatalog()
	for key, list := range overrides {
		if _, ok := c.entries[key]; !ok {
			return nil, fmt.Errorf("unknown locator key %q", key)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("locator key %q: empty candidate list", key)
		}
		cands, err := locator.ParseAll(list)
		if err != nil {
			return nil, fmt.Errorf("locator key %q: %w", key, err)
		}
		c.entries[key] = cands
	}
	return c, nil
}

// Candidates returns a copy of the list registered for key, or nil.
func (c *Catalog) Candidates(key string) []locator.Candidate {
	list, ok := c.entries[key]
	if !ok {
		return nil
	}
	return append([]locator.Candidate(nil), list...)
}

// Keys lists every key in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
