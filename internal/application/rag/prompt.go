package rag

import "strings"

// DefaultSystemPrompt 默认系统提示词
const DefaultSystemPrompt = `You are an AI assistant helping users find information from their documents.
Use the provided context to answer questions accurately and helpfully.

Guidelines:
1. Base your answers primarily on the provided context
2. If the context doesn't contain enough information, clearly state this
3. Be concise but comprehensive in your responses
4. Cite specific information from the context when relevant
5. If asked about something not in the context, politely explain the limitation`

const ragPromptTemplate = `Context Information:
{context}

User Question: {question}

Please provide a helpful answer based on the context above. If the context doesn't contain
sufficient information to fully answer the question, please say so clearly.`

const noContextPlaceholder = "No relevant context available."

// EmptyResponseText 检索无结果时的回答
const EmptyResponseText = "I couldn't find any relevant information to answer your question. " +
	"Please try rephrasing your query or check if the relevant documents have been uploaded."

// BuildPrompt 用上下文和问题填充 RAG 模板
func BuildPrompt(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		contextText = noContextPlaceholder
	}
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(ragPromptTemplate)
}

// FailureText FAILED 响应在流中输出的文本
func FailureText(errMsg string) string {
	return "Error: " + errMsg
}
