package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

const intentPlaceholder = "${INTENT}"

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/seller.txt
	sellerRaw string

	//go:embed template/acquisition.txt
	acquisitionRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Router      string
	Seller      string
	Acquisition string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:      strings.TrimSpace(routerRaw),
		Seller:      strings.TrimSpace(sellerRaw),
		Acquisition: strings.TrimSpace(acquisitionRaw),
	}
}

// Validate fails when any template is empty.
func (p PromptSet) Validate() error {
	for name, body := range map[string]string{
		"router":      p.Router,
		"seller":      p.Seller,
		"acquisition": p.Acquisition,
	} {
		if strings.TrimSpace(body) == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}

// ForIntent selects the specialist instructions for an active intent.
// BUY and RENT share the acquisition template with the label substituted in.
func (p PromptSet) ForIntent(intent statex.Intent) (string, error) {
	switch intent {
	case statex.IntentSell:
		if p.Seller == "" {
			return "", fmt.Errorf("%w: seller", contractx.ErrPromptMissing)
		}
		return p.Seller, nil
	case statex.IntentBuy, statex.IntentRent:
		if p.Acquisition == "" {
			return "", fmt.Errorf("%w: acquisition", contractx.ErrPromptMissing)
		}
		return strings.ReplaceAll(p.Acquisition, intentPlaceholder, intent.String()), nil
	default:
		return "", fmt.Errorf("%w: no specialist prompt for intent %q", contractx.ErrValidation, intent)
	}
}
