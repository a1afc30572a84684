package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for LLM and turn observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrSearchMaxResults  = attribute.Key("websearch.max_results")
	AttrSearchResultCount = attribute.Key("websearch.result_count")
)
