package models

// Intent represents a classified user intent for a single turn.
type Intent string

// Intent constants. The classifier step must emit one of these; anything it
// cannot place lands on IntentUnknown.
const (
	IntentGreeting             Intent = "greeting"
	IntentDiscoveryQuestion    Intent = "discovery_question"
	IntentProductQuestion      Intent = "product_question"
	IntentPhotoIdentification  Intent = "photo_identification"
	IntentSizeHelp             Intent = "size_help"
	IntentColorHelp            Intent = "color_help"
	IntentFitQuestion          Intent = "fit_question"
	IntentPriceQuestion        Intent = "price_question"
	IntentPurchaseConfirmation Intent = "purchase_confirmation"
	IntentPaymentMethod        Intent = "payment_method"
	IntentPaymentProof         Intent = "payment_proof"
	IntentDeliveryQuestion     Intent = "delivery_question"
	IntentOrderStatus          Intent = "order_status"
	IntentComplaint            Intent = "complaint"
	IntentThanks               Intent = "thanks"
	IntentSmalltalk            Intent = "smalltalk"
	IntentUpsellAccept         Intent = "upsell_accept"
	IntentUpsellDecline        Intent = "upsell_decline"
	IntentOutOfDomain          Intent = "out_of_domain"
	IntentUnknown              Intent = "unknown"
)

// AllIntents returns the closed intent domain.
func AllIntents() []Intent {
	return []Intent{
		IntentGreeting, IntentDiscoveryQuestion, IntentProductQuestion,
		IntentPhotoIdentification, IntentSizeHelp, IntentColorHelp,
		IntentFitQuestion, IntentPriceQuestion, IntentPurchaseConfirmation,
		IntentPaymentMethod, IntentPaymentProof, IntentDeliveryQuestion,
		IntentOrderStatus, IntentComplaint, IntentThanks, IntentSmalltalk,
		IntentUpsellAccept, IntentUpsellDecline, IntentOutOfDomain, IntentUnknown,
	}
}

// IsValidIntent checks whether i is part of the closed intent domain.
func IsValidIntent(i Intent) bool {
	for _, known := range AllIntents() {
		if i == known {
			return true
		}
	}
	return false
}

// NormalizeIntent maps a raw classifier label onto the closed intent domain.
func NormalizeIntent(raw string) Intent {
	i := Intent(raw)
	if IsValidIntent(i) {
		return i
	}
	return IntentUnknown
}

// IsPaymentIntent reports whether i signals the user is ready to pay or is
// already inside the payment sub-flow.
func (i Intent) IsPaymentIntent() bool {
	switch i {
	case IntentPurchaseConfirmation, IntentPaymentMethod, IntentPaymentProof:
		return true
	default:
		return false
	}
}
