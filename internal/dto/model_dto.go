package dto

type ModelResponse struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities"`
	Size         int64    `json:"size,omitempty"`
}

type ProviderResponse struct {
	Name               string `json:"name"`
	ChatModel          string `json:"chat_model"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	Dimension          int    `json:"dimension,omitempty"`
	SupportsEmbeddings bool   `json:"supports_embeddings"`
}
