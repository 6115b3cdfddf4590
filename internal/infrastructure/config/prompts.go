package config

// defaultPrompts 内置提示词
// 知识库可以在自身配置中逐项覆盖
func defaultPrompts() PromptsConfig {
	return PromptsConfig{
		SummarySystemPrompt: "You are a technical documentation assistant. You write faithful, self-contained summaries of source documents.",
		SummaryPrompt: `Summarize the following document. Preserve all key facts, names, numbers
and procedures. The summary must be understandable without the original text.

Document:
%s`,
		QASystemPrompt: "You are a knowledge extraction assistant. You generate question/answer pairs that are fully answerable from the given text alone.",
		QAPrompt: `Read the following text and generate 5-10 question/answer pairs covering its
key facts. Return a pure JSON array, each element an object with "question"
and "answer" string fields. Do not include any other text.

Text:
%s`,
		ReducePrompt: `The following JSON array contains question/answer pairs extracted from one
document. Merge duplicates and near-duplicates, keeping the clearest wording
of each. Return the deduplicated pure JSON array in the same format.

Pairs:
%s`,
		EvaluatePrompt: `Rate each question/answer pair below for factual usefulness on a 1-5 scale.
Return the same JSON array with an added integer field "self_eval" on every
element. Return pure JSON only.

Pairs:
%s`,
	}
}
