package state

import "strings"

// Intent is the caller goal that selects a specialist dialogue.
type Intent string

const (
	IntentNone    Intent = ""
	IntentBuy     Intent = "BUY"
	IntentSell    Intent = "SELL"
	IntentRent    Intent = "RENT"
	IntentGeneral Intent = "GENERAL"
)

// ParseIntent normalizes a model label. Anything that is not an actionable
// label is reported as IntentGeneral.
func ParseIntent(raw string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(raw))) {
	case IntentBuy:
		return IntentBuy
	case IntentSell:
		return IntentSell
	case IntentRent:
		return IntentRent
	default:
		return IntentGeneral
	}
}

// Actionable reports whether the intent routes to a specialist.
func (i Intent) Actionable() bool {
	return i == IntentBuy || i == IntentSell || i == IntentRent
}

func (i Intent) String() string {
	return string(i)
}

var (
	sellerVocabulary = []string{
		"client_name",
		"property_address",
		"bedrooms",
		"bathrooms",
		"condition",
		"reason_for_selling",
		"timeline",
	}
	acquisitionVocabulary = []string{
		"client_name",
		"preferred_locations",
		"property_type",
		"bedrooms",
		"bathrooms",
		"max_price",
		"prequalified",
		"move_in_date",
	}

	vocabularies = map[Intent]map[string]struct{}{
		IntentSell: toSet(sellerVocabulary),
		IntentBuy:  toSet(acquisitionVocabulary),
		IntentRent: toSet(acquisitionVocabulary),
	}
)

// Vocabulary returns the field names an intent may collect, in prompt order.
func Vocabulary(intent Intent) []string {
	switch intent {
	case IntentSell:
		return append([]string(nil), sellerVocabulary...)
	case IntentBuy, IntentRent:
		return append([]string(nil), acquisitionVocabulary...)
	default:
		return nil
	}
}

// AllowsField reports whether key belongs to the intent vocabulary.
func AllowsField(intent Intent, key string) bool {
	set, ok := vocabularies[intent]
	if !ok {
		return false
	}
	_, ok = set[key]
	return ok
}

func toSet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
