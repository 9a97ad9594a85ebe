package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/utils"
)

// Planner tool names
const (
	ToolRetrieve          = "retrieve"
	ToolTranslateAndQuery = "translate_and_query"
	ToolNone              = "none"
)

// Planner suggests which branches a turn needs. Its output is a suggestion:
// callers still validate everything downstream.
type Planner interface {
	Plan(ctx context.Context, utt model.Utterance, history string) (model.Intent, error)
}

var (
	bookingCues = []string{"book", "booking", "reserve", "reservation for", "i'll take", "hold a room", "make a reservation"}
	checkCues   = []string{
		"available", "availability", "vacancy", "vacancies", "any rooms", "free rooms",
		"open rooms", "how much", "rate for", "rates for", "price for", "cost for",
	}
	knowledgeCues = []string{
		"pool", "gym", "fitness", "spa", "breakfast", "restaurant", "dining", "bar",
		"wifi", "wi fi", "internet", "parking", "pet", "pets", "dog", "dogs",
		"cancellation", "policy", "policies", "check in time", "check out time",
		"checkout time", "late checkout", "early check in", "shuttle", "airport",
		"recommend", "nearby", "amenities", "amenity", "hours",
	}
	stayCues      = []string{"room", "rooms", "suite", "suites", "stay", "night", "nights", "accommodation", "accommodations"}
	questionWords = []string{"what", "when", "where", "how", "do you", "is there", "are there", "can i", "does"}
)

// RulePlanner classifies turns with keyword cues
type RulePlanner struct {
	catalog *catalog.Catalog
	clock   Clock
}

// NewRulePlanner creates the deterministic planner
func NewRulePlanner(c *catalog.Catalog, clock Clock) *RulePlanner {
	if clock == nil {
		clock = SystemClock
	}
	return &RulePlanner{catalog: c, clock: clock}
}

// Plan implements Planner
func (p *RulePlanner) Plan(_ context.Context, utt model.Utterance, _ string) (model.Intent, error) {
	text := utils.NormalizeTerm(utt.Text)
	padded := " " + text + " "

	book := hasCue(padded, bookingCues)
	check := !book && hasCue(padded, checkCues)
	if !book && !check && len(p.catalog.FindInText(utt.Text)) > 0 && len(findDates(utt.Text, model.Day(p.clock()))) > 0 {
		check = true
	}
	retrieve := hasCue(padded, knowledgeCues)
	// booking the spa or pricing parking is a hotel question, not a stay
	if (book || check) && retrieve && !p.mentionsStay(utt.Text, padded) {
		book, check = false, false
	}
	structure := book || check

	if !structure && !retrieve && (strings.Contains(utt.Text, "?") || hasCue(padded, questionWords)) {
		retrieve = true
	}

	var action model.StructuredAction
	switch {
	case book:
		action = model.ActionBook
	case check:
		action = model.ActionCheck
	}
	return newIntent(retrieve, action), nil
}

func (p *RulePlanner) mentionsStay(text, padded string) bool {
	return hasCue(padded, stayCues) ||
		len(p.catalog.FindInText(text)) > 0 ||
		len(findDates(text, model.Day(p.clock()))) > 0
}

func hasCue(padded string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(padded, " "+utils.NormalizeTerm(c)+" ") {
			return true
		}
	}
	return false
}

// newIntent derives the intent tag from the branches a turn needs
func newIntent(retrieve bool, action model.StructuredAction) model.Intent {
	intent := model.Intent{Retrieve: retrieve, Action: action, Structure: action != ""}
	switch {
	case intent.Retrieve && intent.Structure:
		intent.Tag = model.IntentMixed
	case action == model.ActionBook:
		intent.Tag = model.IntentBookingRequest
	case action == model.ActionCheck:
		intent.Tag = model.IntentAvailabilityCheck
	case retrieve:
		intent.Tag = model.IntentKnowledgeQuery
	default:
		intent.Tag = model.IntentNone
	}
	return intent
}

const plannerPrompt = `You route guest messages for a hotel concierge. Call the tools that the
latest guest message needs and nothing else.

- retrieve: questions about the hotel (amenities, hours, policies, recommendations)
- translate_and_query: room availability checks (action "check_availability") or
  booking requests (action "book")
- none: greetings or anything else

Both retrieve and translate_and_query may be called for one message.
Today is %s.

Conversation so far:
%s`

var plannerTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        ToolRetrieve,
			Description: "Look up hotel knowledge for a question",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	},
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        ToolTranslateAndQuery,
			Description: "Check room availability or book a room",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": []string{string(model.ActionCheck), string(model.ActionBook)},
					},
				},
				"required": []string{"action"},
			},
		},
	},
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        ToolNone,
			Description: "Nothing to look up",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	},
}

// LLMPlanner asks a tool-calling model which branches to run. Unknown tools
// and actions are dropped; when nothing usable comes back the rule planner decides.
type LLMPlanner struct {
	model    llms.Model
	fallback Planner
	clock    Clock
	logger   *zap.Logger
}

// NewLLMPlanner creates a model-backed planner
func NewLLMPlanner(m llms.Model, fallback Planner, clock Clock, logger *zap.Logger) *LLMPlanner {
	if clock == nil {
		clock = SystemClock
	}
	return &LLMPlanner{
		model:    m,
		fallback: fallback,
		clock:    clock,
		logger:   logging.OrNop(logger).Named("planner"),
	}
}

// Plan implements Planner
func (p *LLMPlanner) Plan(ctx context.Context, utt model.Utterance, history string) (model.Intent, error) {
	if history == "" {
		history = "No previous conversation."
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(plannerPrompt, p.clock().Format(model.DateLayout), history)),
		llms.TextParts(llms.ChatMessageTypeHuman, utt.Text),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools(plannerTools), llms.WithTemperature(0))
	if err != nil {
		if ctx.Err() != nil {
			return model.Intent{}, ctx.Err()
		}
		p.logger.Warn("planner model failed, using rules", zap.Error(err))
		return p.fallback.Plan(ctx, utt, history)
	}

	intent, ok := p.interpret(resp)
	if !ok {
		p.logger.Debug("planner returned no usable tool call, using rules")
		return p.fallback.Plan(ctx, utt, history)
	}
	return intent, nil
}

func (p *LLMPlanner) interpret(resp *llms.ContentResponse) (model.Intent, bool) {
	if resp == nil || len(resp.Choices) == 0 {
		return model.Intent{}, false
	}

	valid := 0
	retrieve := false
	var action model.StructuredAction
	for _, call := range resp.Choices[0].ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		switch call.FunctionCall.Name {
		case ToolRetrieve:
			retrieve = true
			valid++
		case ToolTranslateAndQuery:
			var args struct {
				Action string `json:"action"`
			}
			if err := utils.ParseAIJSON(call.FunctionCall.Arguments, &args); err != nil {
				p.logger.Debug("dropping malformed tool call", zap.String("arguments", call.FunctionCall.Arguments))
				continue
			}
			switch model.StructuredAction(args.Action) {
			case model.ActionBook:
				action = model.ActionBook
			case model.ActionCheck:
				if action == "" {
					action = model.ActionCheck
				}
			default:
				p.logger.Debug("dropping unknown action", zap.String("action", args.Action))
				continue
			}
			valid++
		case ToolNone:
			valid++
		default:
			p.logger.Debug("dropping unknown tool", zap.String("tool", call.FunctionCall.Name))
		}
	}
	if valid == 0 {
		return model.Intent{}, false
	}
	return newIntent(retrieve, action), true
}
