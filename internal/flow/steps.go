package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// TurnInput carries the inbound message facts a step may need beyond the
// session document.
type TurnInput struct {
	UserText string
	HasImage bool
}

// Executor runs one pipeline step and proposes partial state for the turn.
type Executor interface {
	Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error)
}

var registry = make(map[models.Step]Executor)

// Register associates a Step with an Executor implementation.
func Register(step models.Step, exec Executor) {
	registry[step] = exec
}

// Get retrieves the Executor for a given Step.
func Get(step models.Step) (Executor, bool) {
	exec, ok := registry[step]
	return exec, ok
}

// PaymentProvider is the external payment collaborator. Implementations talk
// to the real provider; the core only sees this interface.
type PaymentProvider interface {
	CreatePaymentLink(ctx context.Context, sessionID string, products []models.ProductRef) (string, error)
	VerifyPaymentProof(ctx context.Context, sessionID, reference string) (bool, error)
}

// CRMClient is the external order hand-off collaborator.
type CRMClient interface {
	SubmitOrder(ctx context.Context, st *models.ConversationState) (orderID string, err error)
}

// System prompts for the conversational steps.
const (
	moderationPrompt = "You are a content gatekeeper for a retail clothing store chat. " +
		"Greet the customer briefly and ask what they are looking for. Keep it to two sentences."
	classifierPrompt = "Classify the customer's message into exactly one intent label from this list: %s. " +
		"Reply with the label only."
	generalAgentPrompt = "You are a friendly retail clothing sales assistant. Help the customer with their " +
		"question about products, sizes, colors or fit. Be concise and move the sale forward."
	visionPrompt = "The customer sent a product photo. Acknowledge it, describe what you would look up, " +
		"and ask one clarifying question about size or color."
	offerPrompt = "Make a concrete offer for the selected products, stating price and asking for confirmation. " +
		"Products: %s"
	upsellPrompt = "The customer just completed a purchase. Suggest exactly one complementary item, briefly, " +
		"and accept a no gracefully."
)

// ModerationExecutor opens (or reopens) a conversation.
type ModerationExecutor struct {
	GenAI genai.ClientInterface
}

func (e *ModerationExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	reply, err := e.GenAI.Generate(ctx, moderationPrompt, in.UserText)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Reply:         reply,
		ProposedState: models.StateDiscovery,
		ProposedPhase: models.PhaseWaitingForNeed,
	}, nil
}

// IntentClassificationExecutor labels the turn and proposes no reply; the
// engine re-routes with the detected intent.
type IntentClassificationExecutor struct {
	GenAI genai.ClientInterface
}

func (e *IntentClassificationExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	labels := make([]string, 0, len(models.AllIntents()))
	for _, i := range models.AllIntents() {
		labels = append(labels, string(i))
	}
	raw, err := e.GenAI.Generate(ctx, fmt.Sprintf(classifierPrompt, strings.Join(labels, ", ")), in.UserText)
	if err != nil {
		return nil, err
	}
	intent := models.NormalizeIntent(strings.TrimSpace(strings.ToLower(raw)))
	slog.Debug("IntentClassificationExecutor.Execute: classified", "sessionID", st.SessionID, "intent", intent)
	return &StepResult{DetectedIntent: intent}, nil
}

// GeneralAgentExecutor handles open conversational turns.
type GeneralAgentExecutor struct {
	GenAI genai.ClientInterface
}

func (e *GeneralAgentExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	reply, err := e.GenAI.GenerateWithHistory(ctx, generalAgentPrompt, st.Messages)
	if err != nil {
		return nil, err
	}
	return &StepResult{Reply: reply}, nil
}

// VisionExecutor handles product-photo turns. Catalog lookup is an external
// concern; this step acknowledges the image and steers into size/color.
type VisionExecutor struct {
	GenAI genai.ClientInterface
}

func (e *VisionExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	reply, err := e.GenAI.Generate(ctx, visionPrompt, in.UserText)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Reply:         reply,
		ProposedState: models.StateSizeColor,
		ProposedPhase: models.PhaseWaitingForSize,
	}, nil
}

// OfferExecutor presents the selected products and asks for confirmation.
type OfferExecutor struct {
	GenAI genai.ClientInterface
}

func (e *OfferExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	names := make([]string, 0, len(st.SelectedProducts))
	for _, p := range st.SelectedProducts {
		names = append(names, p.Name)
	}
	reply, err := e.GenAI.Generate(ctx, fmt.Sprintf(offerPrompt, strings.Join(names, ", ")), in.UserText)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Reply:           reply,
		ProposedState:   models.StateOffer,
		ProposedPhase:   models.PhaseOfferMade,
		OfferedProducts: st.SelectedProducts,
	}, nil
}

// PaymentExecutor drives the payment sub-flow. It is on the unsafe-step
// blacklist: a failure here escalates instead of retrying.
type PaymentExecutor struct {
	Provider PaymentProvider
	CRM      CRMClient
}

func (e *PaymentExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	if e.Provider == nil {
		return &StepResult{
			Reply:            "I can't take payments right now. A team member will follow up to complete your order.",
			Escalate:         true,
			EscalationReason: "payment provider unavailable",
		}, nil
	}

	switch st.DialogPhase {
	case models.PhaseWaitingForPaymentProof:
		ok, err := e.Provider.VerifyPaymentProof(ctx, st.SessionID, in.UserText)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &StepResult{
				Reply:         "I couldn't verify that payment yet. Could you send the receipt or reference number again?",
				ProposedState: models.StatePaymentDelivery,
				ProposedPhase: models.PhaseWaitingForPaymentProof,
			}, nil
		}
		if e.CRM != nil {
			orderID, err := e.CRM.SubmitOrder(ctx, st)
			if err != nil {
				// The payment itself succeeded; stamp a sticky marker so the
				// next turns route to crm_error instead of losing the order.
				return &StepResult{
					Reply:         "Payment received! We're finalizing your order, one moment.",
					ProposedState: models.StatePaymentDelivery,
					ProposedPhase: models.PhaseDeliveryPending,
					LastError:     CRMErrorPrefix + err.Error(),
				}, nil
			}
			slog.Info("PaymentExecutor.Execute: order submitted", "sessionID", st.SessionID, "orderID", orderID)
		}
		return &StepResult{
			Reply:         "Payment confirmed, your order is on its way! Anything else I can help with?",
			ProposedState: models.StateUpsell,
			ProposedPhase: models.PhaseUpsellOffered,
		}, nil

	default:
		link, err := e.Provider.CreatePaymentLink(ctx, st.SessionID, st.SelectedProducts)
		if err != nil {
			return nil, err
		}
		return &StepResult{
			Reply:         "Great! You can pay here: " + link + ". Send me the receipt once it's done.",
			ProposedState: models.StatePaymentDelivery,
			ProposedPhase: models.PhaseWaitingForPaymentProof,
		}, nil
	}
}

// UpsellExecutor offers one complementary product after a completed purchase.
type UpsellExecutor struct {
	GenAI genai.ClientInterface
}

func (e *UpsellExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	switch st.DetectedIntent {
	case models.IntentUpsellAccept:
		return &StepResult{
			Reply:         "Perfect, I'll add it to your order!",
			ProposedState: models.StatePaymentDelivery,
			ProposedPhase: models.PhaseWaitingForPaymentMethod,
		}, nil
	case models.IntentUpsellDecline, models.IntentThanks:
		return &StepResult{
			Reply:         "No problem at all. Thanks for shopping with us!",
			ProposedState: models.StateEnd,
			ProposedPhase: models.PhaseCompleted,
		}, nil
	}
	reply, err := e.GenAI.Generate(ctx, upsellPrompt, in.UserText)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Reply:         reply,
		ProposedState: models.StateUpsell,
		ProposedPhase: models.PhaseUpsellOffered,
	}, nil
}

// EscalationExecutor hands the session to a human operator.
type EscalationExecutor struct{}

func (e *EscalationExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	reason := st.Metadata[models.MetadataKeyEscalationReason]
	if reason == "" {
		reason = "customer requested assistance"
	}
	return &StepResult{
		Reply:            EscalationHandoffMessage,
		ProposedState:    models.StateComplaint,
		ProposedPhase:    models.PhaseComplaint,
		Escalate:         true,
		EscalationReason: reason,
	}, nil
}

// CRMErrorExecutor retries the order hand-off while the sticky CRM marker is
// set, clearing it on success.
type CRMErrorExecutor struct {
	CRM CRMClient
}

func (e *CRMErrorExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	if e.CRM == nil {
		return &StepResult{
			Reply:            "We hit a snag finalizing your order. A team member will confirm it shortly.",
			Escalate:         true,
			EscalationReason: "order submission unavailable",
		}, nil
	}
	orderID, err := e.CRM.SubmitOrder(ctx, st)
	if err != nil {
		return nil, err
	}
	slog.Info("CRMErrorExecutor.Execute: order recovered", "sessionID", st.SessionID, "orderID", orderID)
	return &StepResult{
		Reply:         "All sorted, your order " + orderID + " is confirmed!",
		ProposedState: models.StateUpsell,
		ProposedPhase: models.PhaseUpsellOffered,
		LastError:     lastErrorCleared,
	}, nil
}

// EndExecutor closes the conversation politely.
type EndExecutor struct{}

func (e *EndExecutor) Execute(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	return &StepResult{
		Reply:         "Thank you for shopping with us! Message me any time you need something new.",
		ProposedState: models.StateEnd,
		ProposedPhase: models.PhaseCompleted,
	}, nil
}

// RegisterDefaultExecutors wires the full step set. Payment and CRM
// collaborators may be nil in deployments without those integrations.
func RegisterDefaultExecutors(ai genai.ClientInterface, payments PaymentProvider, crm CRMClient) {
	Register(models.StepModeration, &ModerationExecutor{GenAI: ai})
	Register(models.StepIntentClassification, &IntentClassificationExecutor{GenAI: ai})
	Register(models.StepGeneralAgent, &GeneralAgentExecutor{GenAI: ai})
	Register(models.StepVision, &VisionExecutor{GenAI: ai})
	Register(models.StepOffer, &OfferExecutor{GenAI: ai})
	Register(models.StepPayment, &PaymentExecutor{Provider: payments, CRM: crm})
	Register(models.StepUpsell, &UpsellExecutor{GenAI: ai})
	Register(models.StepEscalation, &EscalationExecutor{})
	Register(models.StepCRMError, &CRMErrorExecutor{CRM: crm})
	Register(models.StepEnd, &EndExecutor{})
}
