package models

const (
	// NoDocumentsFound is the context placeholder handed to the chat
	// model when retrieval produced no chunks.
	NoDocumentsFound = "No relevant documents found."

	// NoContextResponse is returned to the user without calling the
	// chat model when nothing relevant was retrieved.
	NoContextResponse = "I couldn't find any relevant information in the uploaded documents to answer your question."
)

var (
	SystemPrompt = `You are a helpful assistant that answers questions based on the provided PDF documents.
Always cite your sources by mentioning the document name and page number when possible.
If you cannot find relevant information in the provided context, say so clearly.
Be concise but thorough in your responses.`

	AnswerPromptTemplate = `%s

Based on the following documents, please answer the user's question. If the information is not available in the provided context, please say so clearly.

Documents:
%s

Question: %s

Answer:`
)
