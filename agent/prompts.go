package agent

import (
	"fmt"
	"slices"
	"strings"
)

// 内置 agent 类型
const (
	TypeGeneral       = "general"
	TypeCodeAssistant = "code_assistant"
	TypeResearch      = "research_agent"
	TypeDocumentQA    = "document_qa"
)

// DefaultSystemPrompts 未配置 system_prompt 时使用的基础提示词
var DefaultSystemPrompts = map[string]string{
	TypeGeneral:       "You are a helpful AI assistant that can answer questions and help with various tasks.",
	TypeCodeAssistant: "You are an expert code assistant that helps developers write clean, efficient code following best practices.",
	TypeResearch:      "You are a research assistant that finds credible sources, summarizes complex topics, and provides citations.",
	TypeDocumentQA:    "You are a document analysis assistant that answers questions based on provided documents with accurate citations.",
}

// PromptInput 构建系统提示词所需的全部输入
type PromptInput struct {
	Base    string
	Context string
	Sources []Source
	Tools   []string
	// Request 调用方透传的上下文，内置构建器不使用
	Request map[string]any
}

// PromptBuilder 根据检索结果与可用工具生成系统提示词
type PromptBuilder func(in PromptInput) string

var promptBuilders = map[string]PromptBuilder{
	TypeGeneral:       generalPrompt,
	TypeCodeAssistant: codeAssistantPrompt,
	TypeResearch:      researchPrompt,
	TypeDocumentQA:    documentQAPrompt,
}

// PromptBuilderFor 返回 agent 类型对应的构建器，未知类型使用 general
func PromptBuilderFor(agentType string) PromptBuilder {
	if b, ok := promptBuilders[agentType]; ok {
		return b
	}
	return generalPrompt
}

// BasePrompt 返回配置的提示词，为空时回退到内置默认值
func BasePrompt(agentType, configured string) string {
	if configured != "" {
		return configured
	}
	if p, ok := DefaultSystemPrompts[agentType]; ok {
		return p
	}
	return DefaultSystemPrompts[TypeGeneral]
}

func generalPrompt(in PromptInput) string {
	parts := []string{in.Base}
	if in.Context != "" {
		parts = append(parts, "\nRelevant information from knowledge base:\n"+in.Context)
	}
	if len(in.Sources) > 0 {
		parts = append(parts, "\nWhen referencing information from the knowledge base, please cite your sources appropriately.")
	}
	if len(in.Tools) > 0 {
		parts = append(parts, fmt.Sprintf(
			"\nYou have access to the following tools: %s. Use them when they would be helpful for answering the user's question.",
			strings.Join(in.Tools, ", ")))
	}
	parts = append(parts, "\nGuidelines:\n"+
		"- Be helpful, accurate, and concise\n"+
		"- If you're unsure about something, say so\n"+
		"- Use the provided context when relevant\n"+
		"- Cite sources when using external information")
	return strings.Join(parts, "\n")
}

func codeAssistantPrompt(in PromptInput) string {
	parts := []string{in.Base}
	if in.Context != "" {
		parts = append(parts, "\nRelevant code documentation and examples:\n"+in.Context)
	}
	parts = append(parts, "\nCode Assistant Guidelines:\n"+
		"- Provide clear, well-commented code examples\n"+
		"- Explain the reasoning behind your solutions\n"+
		"- Suggest best practices and common patterns\n"+
		"- Include error handling where appropriate\n"+
		"- Mention potential pitfalls or edge cases\n"+
		"- Provide alternative approaches when relevant")

	var hints []string
	if slices.Contains(in.Tools, "file_operations") {
		hints = append(hints, "- Use file_operations to read/write code files when needed")
	}
	if slices.Contains(in.Tools, "code_execution") {
		hints = append(hints, "- Use code_execution to run and test code examples")
	}
	if slices.Contains(in.Tools, "web_search") {
		hints = append(hints, "- Use web_search to find up-to-date documentation or examples")
	}
	if len(hints) > 0 {
		parts = append(parts, fmt.Sprintf("\nAvailable tools: %s\n", strings.Join(in.Tools, ", "))+strings.Join(hints, "\n"))
	}

	parts = append(parts,
		"\nLanguage-Specific Considerations:\n"+
			"- Python: Follow PEP 8, use type hints, prefer list comprehensions\n"+
			"- JavaScript: Use modern ES6+ features, prefer const/let over var\n"+
			"- Java: Follow naming conventions, use appropriate design patterns\n"+
			"- Always specify the programming language in code blocks",
		"\nFormatting:\n"+
			"- Use markdown code blocks with language specification\n"+
			"- Include brief explanations before and after code\n"+
			"- Highlight important parts of the code\n"+
			"- Provide usage examples when applicable")
	if len(in.Sources) > 0 {
		parts = append(parts, "\nWhen using information from documentation or examples, cite the relevant sources.")
	}
	return strings.Join(parts, "\n")
}

func researchPrompt(in PromptInput) string {
	parts := []string{in.Base}
	if in.Context != "" {
		parts = append(parts, "\nRelevant research and information from knowledge base:\n"+in.Context)
	}
	parts = append(parts, "\nResearch Guidelines:\n"+
		"- Prioritize credible, authoritative sources\n"+
		"- Provide balanced perspectives on controversial topics\n"+
		"- Distinguish between facts, opinions, and speculation\n"+
		"- Note the date and relevance of information\n"+
		"- Acknowledge limitations in available data\n"+
		"- Suggest additional research directions when appropriate")
	if slices.Contains(in.Tools, "web_search") {
		parts = append(parts, "\nWeb Search Usage:\n"+
			"- Use web search to find current, credible information\n"+
			"- Look for academic papers, government sources, and reputable organizations\n"+
			"- Cross-reference information from multiple sources\n"+
			"- Note the publication date and source credibility")
	}
	parts = append(parts,
		"\nSource Evaluation Criteria:\n"+
			"- Authority: Who is the author/organization?\n"+
			"- Accuracy: Is the information verifiable?\n"+
			"- Objectivity: Is there potential bias?\n"+
			"- Currency: How recent is the information?\n"+
			"- Coverage: Is the topic treated comprehensively?",
		"\nCitation Requirements:\n"+
			"- Always provide sources for factual claims\n"+
			"- Include publication dates when available\n"+
			"- Use a consistent citation format\n"+
			"- Distinguish between primary and secondary sources\n"+
			"- Note when information is preliminary or disputed",
		"\nResponse Structure:\n"+
			"- Begin with a clear summary of key findings\n"+
			"- Organize information logically by topic or theme\n"+
			"- Use headings and bullet points for clarity\n"+
			"- Include a 'Sources' section at the end\n"+
			"- Note any gaps in available information")
	if len(in.Sources) > 0 {
		parts = append(parts, "\nAvailable Sources from Knowledge Base:\n"+
			"Use and cite the provided sources appropriately. Supplement with additional research as needed.")
	}
	return strings.Join(parts, "\n")
}

func documentQAPrompt(in PromptInput) string {
	parts := []string{in.Base}
	if in.Context != "" {
		parts = append(parts, "\nRelevant document content:\n"+in.Context)
	} else {
		parts = append(parts, "\nNo relevant documents found in the knowledge base for this query.")
	}
	parts = append(parts,
		"\nDocument Analysis Guidelines:\n"+
			"- Base your answers strictly on the provided document content\n"+
			"- Quote directly from documents when making specific claims\n"+
			"- Provide page numbers, section headings, or other location references when available\n"+
			"- Clearly distinguish between what is explicitly stated vs. inferred\n"+
			"- If information is not in the documents, clearly state this\n"+
			"- Summarize multiple relevant sections when they relate to the question",
		"\nCitation Requirements:\n"+
			"- Always cite the specific document and location for each claim\n"+
			"- Use quotation marks for direct quotes\n"+
			"- Provide context around quoted material\n"+
			"- Reference multiple documents if they contain relevant information\n"+
			"- Note any contradictions between different documents",
		"\nResponse Format:\n"+
			"- Provide a direct answer to the question first\n"+
			"- Support the answer with relevant quotes and citations\n"+
			"- Use clear paragraph breaks for different points\n"+
			"- Include a summary if the answer is complex\n"+
			"- List all referenced documents at the end",
		"\nHandling Uncertainty:\n"+
			"- If the question cannot be answered from the documents, say so clearly\n"+
			"- Distinguish between 'not mentioned' and 'explicitly contradicted'\n"+
			"- Suggest what additional documents might be needed\n"+
			"- Note if documents are incomplete or unclear on the topic\n"+
			"- Indicate confidence level when interpreting ambiguous content")

	if len(in.Sources) > 0 {
		lines := make([]string, 0, len(in.Sources))
		for i, s := range in.Sources {
			lines = append(lines, fmt.Sprintf("Document %d: %s", i+1, documentLabel(s.Metadata)))
		}
		parts = append(parts, "\nAvailable Documents:\n"+strings.Join(lines, "\n"))
	}

	parts = append(parts,
		"\nDocument Analysis Features:\n"+
			"- Identify key themes and topics\n"+
			"- Extract definitions and explanations\n"+
			"- Note relationships between concepts\n"+
			"- Highlight important dates, numbers, and facts\n"+
			"- Recognize document structure and organization\n"+
			"- Compare information across multiple documents",
		"\nQuality Assurance:\n"+
			"- Double-check all citations for accuracy\n"+
			"- Ensure quotes are exact and properly attributed\n"+
			"- Verify that interpretations are well-supported\n"+
			"- Maintain objectivity and avoid adding personal opinions\n"+
			"- Focus on what the documents actually say, not external knowledge")
	return strings.Join(parts, "\n")
}

// documentLabel file_path > source_url > title
func documentLabel(meta map[string]any) string {
	for _, key := range []string{"file_path", "source_url"} {
		if v, ok := meta[key]; ok {
			return fmt.Sprint(v)
		}
	}
	if v, ok := meta["title"]; ok {
		return fmt.Sprint(v)
	}
	return "Unknown source"
}
