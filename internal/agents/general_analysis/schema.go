package general_analysis

import (
	"github.com/tradepsych/insight/internal/agents/sentiment"
	"github.com/tradepsych/insight/internal/schema"
)

// Part names of the composed shape.
const (
	PartCore            = "core_sentiment"
	PartBiases          = "cognitive_biases"
	PartMarketTrade     = "market_trade"
	PartTemporal        = "temporal_analysis"
	PartRecommendations = "recommendations"
)

// Result is the full trading analysis. Fields are flat, one group per part.
type Result struct {
	sentiment.Result

	CognitiveDistortions []CognitiveDistortion `json:"cognitiveDistortions"`
	PsychologyPatterns   []PsychologyPattern   `json:"psychologyPatterns"`

	MarketPerception MarketPerception `json:"marketPerception"`
	TradeAnalysis    []Trade          `json:"tradeAnalysis"`

	TemporalSentiment TemporalSentiment `json:"temporalSentiment"`
	KeyPhrases        []KeyPhrase       `json:"keyPhrases"`
	JournalInsights   JournalInsights   `json:"journalInsights"`

	TradingRecommendations []Recommendation `json:"tradingRecommendations"`
	TradingSummary         string           `json:"tradingSummary"`
}

type CognitiveDistortion struct {
	BiasType             string  `json:"biasType"`
	Confidence           float64 `json:"confidence"`
	Evidence             string  `json:"evidence"`
	PotentialConsequence string  `json:"potentialConsequence"`
}

type PsychologyPattern struct {
	Pattern        string `json:"pattern"`
	Frequency      string `json:"frequency"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

type MarketPerception struct {
	OverallMarketSentiment string          `json:"overallMarketSentiment"`
	SpecificMarkets        []MarketOutlook `json:"specificMarkets"`
}

type MarketOutlook struct {
	Market     string  `json:"market"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

type Trade struct {
	Ticker           *string  `json:"ticker"`
	TradeDirection   string   `json:"tradeDirection"`
	Sentiment        string   `json:"sentiment"`
	Confidence       float64  `json:"confidence"`
	Rationale        []string `json:"rationale"`
	EmotionalDrivers []string `json:"emotionalDrivers"`
}

type TemporalSentiment struct {
	PastTrades        string `json:"pastTrades"`
	CurrentMarket     string `json:"currentMarket"`
	FuturePerspective string `json:"futurePerspective"`
	Comparison        string `json:"comparison"`
}

type KeyPhrase struct {
	Phrase            string  `json:"phrase"`
	SignificanceLevel float64 `json:"significanceLevel"`
	Implication       string  `json:"implication"`
}

type JournalInsights struct {
	SelfAwareness    float64  `json:"selfAwareness"`
	LessonsDerived   []string `json:"lessonsDerived"`
	BlindSpots       []string `json:"blindSpots"`
	DevelopmentAreas []string `json:"developmentAreas"`
	Strengths        []string `json:"strengths"`
}

type Recommendation struct {
	Recommendation      string   `json:"recommendation"`
	Priority            string   `json:"priority"`
	Rationale           string   `json:"rationale"`
	ImplementationSteps []string `json:"implementationSteps"`
}

var (
	marketSentiments   = []string{"very bearish", "bearish", "neutral", "bullish", "very bullish"}
	temporalSentiments = append(append([]string{}, sentiment.Sentiments...), "not discussed")
	tradeDirections    = []string{"long", "short", "considering long", "considering short", "exited long", "exited short", "unclear"}
)

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func number(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func enum(values []string, description string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": description}
}

func stringArray(description string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": description}
}

func nullable(m map[string]any) map[string]any {
	m["type"] = []string{m["type"].(string), "null"}
	return m
}

func object(properties map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": properties, "required": required}
}

func array(items map[string]any, description string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": description}
}

var biasesShape = schema.New(PartBiases, "Cognitive biases and psychology patterns", object(map[string]any{
	"cognitiveDistortions": array(object(map[string]any{
		"biasType":             str("Type of cognitive bias or trading distortion"),
		"confidence":           number("Confidence in bias detection (0-1)"),
		"evidence":             str("Text evidence supporting this bias detection"),
		"potentialConsequence": str("Potential negative outcome of this bias"),
	}, "biasType", "confidence", "evidence", "potentialConsequence"),
		"Cognitive biases and distortions detected in trading thinking"),
	"psychologyPatterns": array(object(map[string]any{
		"pattern":        str("Trading psychology pattern identified"),
		"frequency":      enum([]string{"one-time", "occasional", "frequent", "persistent"}, "Frequency of this pattern in the journal entry"),
		"impact":         enum([]string{"minimal", "moderate", "significant", "severe"}, "Potential impact on trading performance"),
		"recommendation": str("Suggestion for addressing this pattern"),
	}, "pattern", "frequency", "impact", "recommendation"),
		"Trading psychology patterns identified in journal entry"),
}, "cognitiveDistortions", "psychologyPatterns"))

var marketTradeShape = schema.New(PartMarketTrade, "Market perception and trade analysis", object(map[string]any{
	"marketPerception": object(map[string]any{
		"overallMarketSentiment": enum(marketSentiments, "Trader's perception of overall market conditions"),
		"specificMarkets": nullable(array(object(map[string]any{
			"market":     str("Specific market or sector mentioned"),
			"sentiment":  enum(marketSentiments, "Sentiment toward this specific market"),
			"confidence": number("Confidence in this market sentiment assessment (0-1)"),
		}, "market", "sentiment", "confidence"),
			"Sentiment toward specific markets or sectors mentioned")),
	}, "overallMarketSentiment", "specificMarkets"),
	"tradeAnalysis": array(object(map[string]any{
		"ticker":           nullable(str("Stock or asset ticker symbol")),
		"tradeDirection":   enum(tradeDirections, "Direction of trade or potential trade"),
		"sentiment":        enum(sentiment.Sentiments, "Sentiment toward this specific trade"),
		"confidence":       number("Trader's confidence level in this trade or analysis (0-1)"),
		"rationale":        stringArray("Trading rationales mentioned for this trade"),
		"emotionalDrivers": nullable(stringArray("Emotional factors potentially driving this trade decision")),
	}, "ticker", "tradeDirection", "sentiment", "confidence", "rationale", "emotionalDrivers"),
		"Analysis of sentiment toward specific trades or potential trades"),
}, "marketPerception", "tradeAnalysis"))

var temporalShape = schema.New(PartTemporal, "Sentiment across timeframes, key phrases and journal insights", object(map[string]any{
	"temporalSentiment": object(map[string]any{
		"pastTrades":        enum(temporalSentiments, "Sentiment toward past trading results"),
		"currentMarket":     enum(temporalSentiments, "Sentiment toward current market conditions"),
		"futurePerspective": enum(temporalSentiments, "Outlook on future trading performance"),
		"comparison":        str("Brief analysis of sentiment change from past to future"),
	}, "pastTrades", "currentMarket", "futurePerspective", "comparison"),
	"keyPhrases": array(object(map[string]any{
		"phrase":            str("Important trading-related phrase from the journal"),
		"significanceLevel": number("Significance of this phrase to trading psychology (0-1)"),
		"implication":       str("Psychological implication of this phrase"),
	}, "phrase", "significanceLevel", "implication"),
		"Key phrases with significance to trading psychology"),
	"journalInsights": object(map[string]any{
		"selfAwareness":    number("Level of trading self-awareness demonstrated (0-1)"),
		"lessonsDerived":   stringArray("Trading lessons the trader appears to be learning"),
		"blindSpots":       stringArray("Psychological blind spots apparent in journal"),
		"developmentAreas": stringArray("Suggested areas for psychological development"),
		"strengths":        stringArray("Psychological trading strengths demonstrated"),
	}, "selfAwareness", "lessonsDerived", "blindSpots", "developmentAreas", "strengths"),
}, "temporalSentiment", "keyPhrases", "journalInsights"))

var recommendationsShape = schema.New(PartRecommendations, "Actionable recommendations and summary", object(map[string]any{
	"tradingRecommendations": array(object(map[string]any{
		"recommendation":      str("Actionable recommendation for improving trading psychology"),
		"priority":            enum([]string{"low", "medium", "high", "critical"}, "Priority of this recommendation"),
		"rationale":           str("Psychological rationale for this recommendation"),
		"implementationSteps": nullable(stringArray("Suggested steps for implementing this recommendation")),
	}, "recommendation", "priority", "rationale", "implementationSteps"),
		"Actionable recommendations based on trading sentiment analysis"),
	"tradingSummary": str("Brief, human-readable summary of trading psychology analysis"),
}, "tradingRecommendations", "tradingSummary"))

var shape = schema.MustCompose("general_trading_analysis", "Comprehensive trading psychology analysis",
	schema.Part{Name: PartCore, Shape: sentiment.Shape()},
	schema.Part{Name: PartBiases, Shape: biasesShape},
	schema.Part{Name: PartMarketTrade, Shape: marketTradeShape},
	schema.Part{Name: PartTemporal, Shape: temporalShape},
	schema.Part{Name: PartRecommendations, Shape: recommendationsShape},
)

// Shape returns the composed shape.
func Shape() *schema.Shape { return shape }
